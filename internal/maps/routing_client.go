// README: RoutingClient guards provider routing calls (degenerate pairs, timeout, sanity) and attaches the map link.
package maps

import (
	"context"
	"fmt"
	"math"
	"time"

	"routebot/internal/infra"
	"routebot/internal/types"
)

// DefaultMinSeparationMeters is the distance at or below which two points count as the same place.
const DefaultMinSeparationMeters = 1.0

type RoutingClient struct {
	provider      Router
	link          LinkFunc
	timeout       time.Duration
	minSeparation float64
	metrics       *infra.Metrics
}

func NewRoutingClient(provider Router, link LinkFunc, timeout time.Duration, minSeparationMeters float64, metrics *infra.Metrics) *RoutingClient {
	if minSeparationMeters <= 0 {
		minSeparationMeters = DefaultMinSeparationMeters
	}
	if link == nil {
		link = OSMDirectionsLink
	}
	return &RoutingClient{
		provider:      provider,
		link:          link,
		timeout:       timeout,
		minSeparation: minSeparationMeters,
		metrics:       metrics,
	}
}

// Route fails with ErrDegenerateRoute without calling the provider when the points coincide.
func (c *RoutingClient) Route(ctx context.Context, origin, destination types.Coordinate) (_ RouteResult, err error) {
	if err := origin.Validate(); err != nil {
		return RouteResult{}, fmt.Errorf("origin: %w", err)
	}
	if err := destination.Validate(); err != nil {
		return RouteResult{}, fmt.Errorf("destination: %w", err)
	}
	if HaversineMeters(origin, destination) <= c.minSeparation {
		return RouteResult{}, ErrDegenerateRoute
	}
	defer infra.Time(ctx, "route")(&err)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	leg, err := c.provider.Route(ctx, origin, destination)
	if err == nil && !validLeg(leg) {
		err = unavailable(fmt.Errorf("implausible leg %+v", leg))
	}
	err = classify(err)
	c.metrics.ObserveProvider("route", Outcome(err), time.Since(start))
	if err != nil {
		return RouteResult{}, err
	}

	return RouteResult{
		DistanceMeters:  leg.DistanceMeters,
		DurationSeconds: leg.DurationSeconds,
		MapLink:         c.link(origin, destination),
	}, nil
}

func validLeg(l Leg) bool {
	for _, v := range []float64{l.DistanceMeters, l.DurationSeconds} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
