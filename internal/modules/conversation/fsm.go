// README: Allowed state transitions and the state/slot consistency rules.
package conversation

import (
	"errors"
	"fmt"

	"routebot/internal/maps"
)

// AllowedTransitions represents the conversation flow as code. Staying in the same state is always allowed.
var AllowedTransitions = map[State][]State{
	StateIdle:                      {StateAwaitingOrigin, StateCancelled},
	StateAwaitingOrigin:            {StateAwaitingOriginChoice, StateAwaitingDestination, StateCancelled},
	StateAwaitingOriginChoice:      {StateAwaitingDestination, StateAwaitingOrigin, StateCancelled},
	StateAwaitingDestination:       {StateAwaitingDestinationChoice, StateReady, StateAwaitingOrigin, StateCancelled},
	StateAwaitingDestinationChoice: {StateReady, StateAwaitingDestination, StateAwaitingOrigin, StateCancelled},
	StateReady:                     {StateIdle, StateAwaitingOrigin, StateCancelled},
}

func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// slotShapes lists the only legal (origin, destination) slot kinds per state.
var slotShapes = map[State][2]SlotKind{
	StateIdle:                      {SlotUnset, SlotUnset},
	StateAwaitingOrigin:            {SlotUnset, SlotUnset},
	StateAwaitingOriginChoice:      {SlotPending, SlotUnset},
	StateAwaitingDestination:       {SlotResolved, SlotUnset},
	StateAwaitingDestinationChoice: {SlotResolved, SlotPending},
	StateReady:                     {SlotResolved, SlotResolved},
	StateCancelled:                 {SlotUnset, SlotUnset},
}

var ErrInconsistentSession = errors.New("session slots inconsistent with state")

// LegalSlots returns the slot kinds a state requires.
func LegalSlots(state State) (origin, destination SlotKind, ok bool) {
	shape, ok := slotShapes[state]
	return shape[0], shape[1], ok
}

// Validate checks the session against slotShapes. Pending slots must carry 1..MaxCandidates candidates.
func (s Session) Validate() error {
	shape, ok := slotShapes[s.State]
	if !ok {
		return fmt.Errorf("%w: unknown state %q", ErrInconsistentSession, s.State)
	}
	for i, slot := range []Slot{s.Origin, s.Destination} {
		if slot.Kind != shape[i] {
			return fmt.Errorf("%w: state=%s origin=%s destination=%s",
				ErrInconsistentSession, s.State, s.Origin.Kind, s.Destination.Kind)
		}
		if slot.Kind == SlotPending && (len(slot.Candidates) == 0 || len(slot.Candidates) > maps.MaxCandidates) {
			return fmt.Errorf("%w: %d pending candidates", ErrInconsistentSession, len(slot.Candidates))
		}
	}
	return nil
}
