package conversation

import (
	"errors"
	"testing"

	"routebot/internal/maps"
	"routebot/internal/types"
)

var allStates = []State{
	StateIdle, StateAwaitingOrigin, StateAwaitingOriginChoice, StateAwaitingDestination,
	StateAwaitingDestinationChoice, StateReady, StateCancelled,
}

func slotOf(kind SlotKind) Slot {
	switch kind {
	case SlotPending:
		return Pending([]maps.Candidate{{Name: "A", Rank: 1}, {Name: "B", Rank: 2}})
	case SlotResolved:
		return Resolved("A", types.Coordinate{Lat: 10, Lng: 106})
	default:
		return Unset()
	}
}

// Every (state, origin kind, destination kind) combination is legal exactly when it matches LegalSlots.
func TestSessionValidateEnumeratesShapes(t *testing.T) {
	kinds := []SlotKind{SlotUnset, SlotPending, SlotResolved}
	for _, st := range allStates {
		wantO, wantD, ok := LegalSlots(st)
		if !ok {
			t.Fatalf("state %s has no slot shape", st)
		}
		legal := 0
		for _, o := range kinds {
			for _, d := range kinds {
				sess := Session{State: st, Origin: slotOf(o), Destination: slotOf(d)}
				err := sess.Validate()
				if o == wantO && d == wantD {
					legal++
					if err != nil {
						t.Errorf("state=%s origin=%s dest=%s: unexpected error %v", st, o, d, err)
					}
					continue
				}
				if !errors.Is(err, ErrInconsistentSession) {
					t.Errorf("state=%s origin=%s dest=%s: expected inconsistency, got %v", st, o, d, err)
				}
			}
		}
		if legal != 1 {
			t.Errorf("state %s: %d legal shapes, want exactly 1", st, legal)
		}
	}
}

func TestSessionValidatePendingSize(t *testing.T) {
	sess := Session{State: StateAwaitingOriginChoice, Origin: Pending(nil), Destination: Unset()}
	if err := sess.Validate(); !errors.Is(err, ErrInconsistentSession) {
		t.Fatalf("expected error for empty pending slot, got %v", err)
	}
	four := make([]maps.Candidate, 4)
	sess.Origin = Pending(four)
	if err := sess.Validate(); !errors.Is(err, ErrInconsistentSession) {
		t.Fatalf("expected error for oversized pending slot, got %v", err)
	}
	sess.Origin = Pending(four[:1])
	if err := sess.Validate(); err != nil {
		t.Fatalf("single pending candidate should be legal, got %v", err)
	}
	if err := (Session{State: "bogus"}).Validate(); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateAwaitingOrigin, true},
		{StateAwaitingOrigin, StateAwaitingOriginChoice, true},
		{StateAwaitingOrigin, StateAwaitingDestination, true},
		{StateAwaitingOriginChoice, StateAwaitingDestination, true},
		{StateAwaitingDestination, StateReady, true},
		{StateAwaitingDestinationChoice, StateReady, true},
		{StateReady, StateIdle, true},
		{StateReady, StateAwaitingOrigin, true},
		{StateAwaitingOrigin, StateAwaitingOrigin, true},
		{StateIdle, StateReady, false},
		{StateAwaitingOrigin, StateReady, false},
		{StateAwaitingDestination, StateIdle, false},
		{StateCancelled, StateAwaitingOrigin, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	for _, st := range allStates {
		if st == StateCancelled {
			continue
		}
		if !CanTransition(st, StateCancelled) {
			t.Errorf("%s must be cancellable", st)
		}
	}
}
