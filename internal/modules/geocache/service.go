// README: Read-through geocode cache that coalesces concurrent identical lookups.
package geocache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"routebot/internal/infra"
	"routebot/internal/maps"
)

// sharedLookupTimeout bounds a coalesced provider call, which outlives any single caller.
const sharedLookupTimeout = 30 * time.Second

type Cache interface {
	Get(ctx context.Context, key string, maxAge time.Duration) ([]maps.Place, bool, error)
	Put(ctx context.Context, key string, places []maps.Place) error
}

// Geocoder wraps a provider Geocoder. Cache failures are logged and never returned.
type Geocoder struct {
	next      maps.Geocoder
	cache     Cache
	ttl       time.Duration
	namespace string
	group     singleflight.Group
	timeout   time.Duration
	logger    zerolog.Logger
	metrics   *infra.Metrics
}

func NewGeocoder(next maps.Geocoder, cache Cache, ttl time.Duration, namespace string, logger zerolog.Logger, metrics *infra.Metrics) *Geocoder {
	return &Geocoder{
		next:      next,
		cache:     cache,
		ttl:       ttl,
		namespace: namespace,
		timeout:   sharedLookupTimeout,
		logger:    logger.With().Str("component", "geocache").Logger(),
		metrics:   metrics,
	}
}

func (g *Geocoder) Geocode(ctx context.Context, query string, limit int) ([]maps.Place, error) {
	key := cacheKey(g.namespace, query, limit)

	places, ok, err := g.cache.Get(ctx, key, g.ttl)
	switch {
	case err != nil:
		g.metrics.IncCache("geocode", "error")
		g.logger.Warn().Err(err).Str("key", key).Msg("geocode cache read failed")
	case ok:
		g.metrics.IncCache("geocode", "hit")
		return places, nil
	default:
		g.metrics.IncCache("geocode", "miss")
	}

	// The shared call runs detached so one caller giving up does not fail the others.
	ch := g.group.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()
		places, err := g.next.Geocode(sctx, query, limit)
		if err != nil {
			return nil, err
		}
		if err := g.cache.Put(sctx, key, places); err != nil {
			g.logger.Warn().Err(err).Str("key", key).Msg("geocode cache write failed")
		}
		return places, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]maps.Place), nil
	}
}

func cacheKey(namespace, query string, limit int) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return fmt.Sprintf("%s:%d:%s", namespace, limit, norm)
}
