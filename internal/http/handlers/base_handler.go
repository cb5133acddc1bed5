// README: Base handler utilities (JSON helpers, user id validation, DTO mapping).
package handlers

import (
	"github.com/gin-gonic/gin"

	"routebot/internal/maps"
	"routebot/internal/modules/conversation"
	"routebot/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

type chatResponse struct {
	Text      string                    `json:"text"`
	Options   []conversation.QuickReply `json:"options"`
	State     conversation.State        `json:"state"`
	ErrorKind conversation.ErrorKind    `json:"error_kind,omitempty"`
	Route     *maps.RouteResult         `json:"route,omitempty"`
}

type slotResponse struct {
	Kind       string           `json:"kind"`
	Name       string           `json:"name,omitempty"`
	Coordinate *types.Coordinate `json:"coordinate,omitempty"`
	Candidates []maps.Candidate  `json:"candidates,omitempty"`
}

type sessionResponse struct {
	UserID       types.UserID       `json:"user_id"`
	State        conversation.State `json:"state"`
	Origin       slotResponse       `json:"origin"`
	Destination  slotResponse       `json:"destination"`
	LastActivity string             `json:"last_activity"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func toChatResponse(r conversation.Response) chatResponse {
	opts := r.Options
	if opts == nil {
		opts = []conversation.QuickReply{}
	}
	return chatResponse{Text: r.Text, Options: opts, State: r.State, ErrorKind: r.ErrKind, Route: r.Route}
}

func toSlotResponse(s conversation.Slot) slotResponse {
	out := slotResponse{Kind: s.Kind.String()}
	switch s.Kind {
	case conversation.SlotPending:
		out.Candidates = s.Candidates
	case conversation.SlotResolved:
		c := s.Coordinate
		out.Name = s.Name
		out.Coordinate = &c
	}
	return out
}

func toSessionResponse(s conversation.Session) sessionResponse {
	return sessionResponse{
		UserID:       s.UserID,
		State:        s.State,
		Origin:       toSlotResponse(s.Origin),
		Destination:  toSlotResponse(s.Destination),
		LastActivity: s.LastActivity.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
