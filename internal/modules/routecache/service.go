// README: Read-through route cache around a maps.Router; only successful legs are cached.
package routecache

import (
	"context"

	"github.com/rs/zerolog"

	"routebot/internal/infra"
	"routebot/internal/maps"
	"routebot/internal/types"
)

type Cache interface {
	Get(ctx context.Context, origin, destination types.Coordinate) (maps.Leg, bool, error)
	Put(ctx context.Context, origin, destination types.Coordinate, leg maps.Leg) error
}

type Router struct {
	next    maps.Router
	cache   Cache
	logger  zerolog.Logger
	metrics *infra.Metrics
}

func NewRouter(next maps.Router, cache Cache, logger zerolog.Logger, metrics *infra.Metrics) *Router {
	return &Router{
		next:    next,
		cache:   cache,
		logger:  logger.With().Str("component", "routecache").Logger(),
		metrics: metrics,
	}
}

func (r *Router) Route(ctx context.Context, origin, destination types.Coordinate) (maps.Leg, error) {
	leg, ok, err := r.cache.Get(ctx, origin, destination)
	switch {
	case err != nil:
		r.metrics.IncCache("route", "error")
		r.logger.Warn().Err(err).Msg("route cache read failed")
	case ok:
		r.metrics.IncCache("route", "hit")
		return leg, nil
	default:
		r.metrics.IncCache("route", "miss")
	}

	leg, err = r.next.Route(ctx, origin, destination)
	if err != nil {
		return maps.Leg{}, err
	}
	if err := r.cache.Put(ctx, origin, destination, leg); err != nil {
		r.logger.Warn().Err(err).Msg("route cache write failed")
	}
	return leg, nil
}
