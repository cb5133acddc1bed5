// README: Conversation session aggregate, FSM states and location slots.
package conversation

import (
	"time"

	"routebot/internal/maps"
	"routebot/internal/types"
)

type State string

const (
	StateIdle                      State = "idle"
	StateAwaitingOrigin            State = "awaiting_origin"
	StateAwaitingOriginChoice      State = "awaiting_origin_choice"
	StateAwaitingDestination       State = "awaiting_destination"
	StateAwaitingDestinationChoice State = "awaiting_destination_choice"
	StateReady                     State = "ready"
	StateCancelled                 State = "cancelled"
)

// IsChoice reports whether the state is waiting for a numbered pick.
func (s State) IsChoice() bool {
	return s == StateAwaitingOriginChoice || s == StateAwaitingDestinationChoice
}

type SlotKind int

const (
	SlotUnset SlotKind = iota
	SlotPending
	SlotResolved
)

func (k SlotKind) String() string {
	switch k {
	case SlotPending:
		return "pending"
	case SlotResolved:
		return "resolved"
	default:
		return "unset"
	}
}

// Slot holds origin or destination. Candidates is only meaningful when Pending;
// Name and Coordinate only when Resolved.
type Slot struct {
	Kind       SlotKind
	Candidates []maps.Candidate
	Name       string
	Coordinate types.Coordinate
}

func Unset() Slot {
	return Slot{Kind: SlotUnset}
}

func Pending(cands []maps.Candidate) Slot {
	return Slot{Kind: SlotPending, Candidates: append([]maps.Candidate(nil), cands...)}
}

func Resolved(name string, c types.Coordinate) Slot {
	return Slot{Kind: SlotResolved, Name: name, Coordinate: c}
}

type Session struct {
	UserID       types.UserID
	State        State
	Origin       Slot
	Destination  Slot
	LastActivity time.Time
}

func newSession(id types.UserID, now time.Time) Session {
	return Session{UserID: id, State: StateIdle, Origin: Unset(), Destination: Unset(), LastActivity: now}
}

func (s *Session) clearSlots() {
	s.Origin = Unset()
	s.Destination = Unset()
}

func (s Session) clone() Session {
	s.Origin.Candidates = append([]maps.Candidate(nil), s.Origin.Candidates...)
	s.Destination.Candidates = append([]maps.Candidate(nil), s.Destination.Candidates...)
	return s
}
