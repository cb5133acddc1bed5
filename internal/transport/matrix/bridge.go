// README: Matrix chat transport; maps room messages onto conversation turns keyed by sender.
package matrix

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"routebot/internal/config"
	"routebot/internal/modules/conversation"
	"routebot/internal/types"
)

const networkTimeout = 10 * time.Second

type Chat interface {
	HandleText(ctx context.Context, id types.UserID, text string) conversation.Response
	ExpiryNotice() conversation.Response
}

// Sender is the subset of *mautrix.Client used to talk back to rooms.
type Sender interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
	UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error)
}

type Bridge struct {
	client *mautrix.Client
	sender Sender
	chat   Chat
	cfg    config.MatrixConfig
	botID  id.UserID
	logger zerolog.Logger

	mu sync.Mutex
	// lastRoom is where each user last spoke; expiry notices go there.
	lastRoom map[types.UserID]id.RoomID
	// pending holds each user's queued turns; a user has a worker while the entry exists.
	pending map[types.UserID][]turn
	wg      sync.WaitGroup
}

type turn struct {
	room id.RoomID
	text string
}

func NewBridge(cfg config.MatrixConfig, chat Chat, logger zerolog.Logger) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	b := newBridge(client, chat, cfg, logger)
	b.client = client
	return b, nil
}

func newBridge(sender Sender, chat Chat, cfg config.MatrixConfig, logger zerolog.Logger) *Bridge {
	return &Bridge{
		sender:   sender,
		chat:     chat,
		cfg:      cfg,
		botID:    id.UserID(cfg.UserID),
		logger:   logger.With().Str("component", "matrix").Logger(),
		lastRoom: make(map[types.UserID]id.RoomID),
		pending:  make(map[types.UserID][]turn),
	}
}

// Run syncs until ctx is done, then waits for in-flight turns.
func (b *Bridge) Run(ctx context.Context) error {
	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		b.handleEvent(ctx, evt)
	})

	b.logger.Info().Str("homeserver", b.cfg.Homeserver).Str("user_id", b.cfg.UserID).Msg("matrix bridge running")
	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.client.SyncWithContext(ctx)
	}()

	select {
	case <-ctx.Done():
		b.client.StopSync()
		b.wg.Wait()
		return nil
	case err := <-syncErr:
		b.wg.Wait()
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

func (b *Bridge) handleEvent(ctx context.Context, evt *event.Event) {
	room, user, text, ok := b.incoming(evt)
	if !ok {
		return
	}
	b.enqueue(ctx, user, turn{room: room, text: text})
}

// enqueue runs turns for one user in arrival order; different users proceed in parallel.
func (b *Bridge) enqueue(ctx context.Context, user types.UserID, t turn) {
	b.mu.Lock()
	queue, running := b.pending[user]
	b.pending[user] = append(queue, t)
	b.mu.Unlock()
	if running {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.drain(ctx, user)
	}()
}

func (b *Bridge) drain(ctx context.Context, user types.UserID) {
	for {
		b.mu.Lock()
		queue := b.pending[user]
		if len(queue) == 0 {
			delete(b.pending, user)
			b.mu.Unlock()
			return
		}
		next := queue[0]
		b.pending[user] = queue[1:]
		b.mu.Unlock()

		b.process(ctx, next.room, user, next.text)
	}
}

// incoming filters an event down to a chat turn: text messages from other
// users in allowed rooms, with the command prefix (if any) stripped.
func (b *Bridge) incoming(evt *event.Event) (id.RoomID, types.UserID, string, bool) {
	if evt.Sender == b.botID {
		return "", "", "", false
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return "", "", "", false
	}
	if !b.roomAllowed(evt.RoomID) {
		return "", "", "", false
	}
	body := content.Body
	if b.cfg.CommandPrefix != "" {
		if !strings.HasPrefix(body, b.cfg.CommandPrefix) {
			return "", "", "", false
		}
		body = strings.TrimPrefix(body, b.cfg.CommandPrefix)
	}
	body = strings.TrimSpace(body)
	user := types.UserID(evt.Sender.String())
	if body == "" || !user.Valid() {
		return "", "", "", false
	}
	return evt.RoomID, user, body, true
}

func (b *Bridge) process(ctx context.Context, room id.RoomID, user types.UserID, text string) {
	b.mu.Lock()
	b.lastRoom[user] = room
	b.mu.Unlock()

	b.setTyping(room, true)
	resp := b.chat.HandleText(ctx, user, text)
	b.setTyping(room, false)

	if resp.State == conversation.StateIdle || resp.State == conversation.StateCancelled {
		b.forget(user, room)
	}
	b.send(room, conversation.Render(resp))
}

// OnExpire is the sweeper hook; it tells the user where they last spoke.
func (b *Bridge) OnExpire(user types.UserID) {
	b.mu.Lock()
	room, ok := b.lastRoom[user]
	delete(b.lastRoom, user)
	b.mu.Unlock()
	if !ok {
		return
	}
	b.send(room, conversation.Render(b.chat.ExpiryNotice()))
}

func (b *Bridge) forget(user types.UserID, room id.RoomID) {
	b.mu.Lock()
	if b.lastRoom[user] == room {
		delete(b.lastRoom, user)
	}
	b.mu.Unlock()
}

func (b *Bridge) roomAllowed(room id.RoomID) bool {
	if len(b.cfg.AllowedRooms) == 0 {
		return true
	}
	for _, allowed := range b.cfg.AllowedRooms {
		if allowed == room.String() {
			return true
		}
	}
	return false
}

func (b *Bridge) setTyping(room id.RoomID, typing bool) {
	var timeout time.Duration
	if typing {
		timeout = b.cfg.TypingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	if _, err := b.sender.UserTyping(ctx, room, typing, timeout); err != nil {
		b.logger.Debug().Err(err).Str("room", room.String()).Msg("typing indicator failed")
	}
}

func (b *Bridge) send(room id.RoomID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	if _, err := b.sender.SendText(ctx, room, text); err != nil {
		b.logger.Error().Err(err).Str("room", room.String()).Msg("send failed")
	}
}
