// README: Chat handler; HTTP surface over the conversation orchestrator.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"routebot/internal/modules/conversation"
	"routebot/internal/types"
)

type ChatHandler struct {
	chat *conversation.Service
}

func NewChatHandler(chat *conversation.Service) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type messageReq struct {
	Text string `json:"text"`
}

type eventReq struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Choice int    `json:"choice"`
}

// Message handles POST /api/chat/:uid/messages. Conversation-level errors are
// reported in the body with 200; only malformed requests get 4xx.
func (h *ChatHandler) Message(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req messageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	resp := h.chat.HandleText(c.Request.Context(), uid, req.Text)
	writeJSON(c, http.StatusOK, toChatResponse(resp))
}

// Event handles POST /api/chat/:uid/events for clients with structured buttons.
func (h *ChatHandler) Event(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req eventReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	kind, ok := conversation.ParseEventKind(strings.ToLower(strings.TrimSpace(req.Type)))
	if !ok {
		writeError(c, http.StatusBadRequest, "unknown event type")
		return
	}
	ev := conversation.Event{Kind: kind}
	switch kind {
	case conversation.EventText:
		ev.Text = req.Text
	case conversation.EventSelect:
		ev.Choice = req.Choice
	}
	resp := h.chat.Handle(c.Request.Context(), uid, ev)
	writeJSON(c, http.StatusOK, toChatResponse(resp))
}

// Session handles GET /api/chat/:uid/session.
func (h *ChatHandler) Session(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	sess, found := h.chat.Snapshot(uid)
	if !found {
		writeError(c, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(c, http.StatusOK, toSessionResponse(sess))
}

func userID(c *gin.Context) (types.UserID, bool) {
	uid := types.UserID(strings.TrimSpace(c.Param("uid")))
	if !uid.Valid() {
		writeError(c, http.StatusBadRequest, "invalid uid")
		return "", false
	}
	return uid, true
}
