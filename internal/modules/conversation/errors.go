// README: User-facing error taxonomy for the conversation flow.
package conversation

import (
	"errors"

	"routebot/internal/maps"
	"routebot/internal/types"
)

var (
	ErrInvalidSelection = errors.New("selection out of range")
	ErrEmptyQuery       = errors.New("empty location query")
	ErrUnexpectedInput  = errors.New("input not expected in this state")
	ErrNoActiveSession  = errors.New("no active session")
	ErrSessionExpired   = errors.New("session expired")
)

type ErrorKind string

const (
	KindNone     ErrorKind = ""
	KindInput    ErrorKind = "input"
	KindProvider ErrorKind = "provider"
	KindRoute    ErrorKind = "route"
	KindSession  ErrorKind = "session"
)

// Classify places err in the taxonomy. Anything unrecognised counts as a provider failure.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidSelection), errors.Is(err, ErrEmptyQuery), errors.Is(err, ErrUnexpectedInput):
		return KindInput
	case errors.Is(err, ErrNoActiveSession), errors.Is(err, ErrSessionExpired):
		return KindSession
	case errors.Is(err, maps.ErrNoRouteFound), errors.Is(err, maps.ErrDegenerateRoute), errors.Is(err, types.ErrInvalidCoordinate):
		return KindRoute
	default:
		return KindProvider
	}
}
