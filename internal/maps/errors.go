// README: Provider error taxonomy shared by geocoding and routing clients.
package maps

import (
	"errors"
	"fmt"
)

var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderRateLimited = errors.New("provider rate limited")
	ErrNoRouteFound        = errors.New("no route found")
	ErrDegenerateRoute     = errors.New("origin and destination are the same point")
)

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func rateLimited(err error) error {
	return fmt.Errorf("%w: %v", ErrProviderRateLimited, err)
}

// classify keeps known taxonomy errors and folds everything else into ErrProviderUnavailable.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrProviderRateLimited),
		errors.Is(err, ErrNoRouteFound),
		errors.Is(err, ErrDegenerateRoute):
		return err
	default:
		return unavailable(err)
	}
}

// Outcome is the metrics label for a classified provider result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrProviderRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNoRouteFound):
		return "no_route"
	case errors.Is(err, ErrDegenerateRoute):
		return "degenerate"
	default:
		return "unavailable"
	}
}
