// README: Route leg cache backed by Redis string keys with TTL.
package routecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"routebot/internal/maps"
	"routebot/internal/types"
)

const keyFormat = "routebot:route:%s:%.5f,%.5f;%.5f,%.5f"

type Store struct {
	redis     *redis.Client
	namespace string
	ttl       time.Duration
}

func NewStore(redis *redis.Client, namespace string, ttl time.Duration) *Store {
	return &Store{redis: redis, namespace: namespace, ttl: ttl}
}

// Key rounds to five decimals (about a metre), so nearby duplicates share an entry.
func (s *Store) Key(origin, destination types.Coordinate) string {
	return fmt.Sprintf(keyFormat, s.namespace, origin.Lat, origin.Lng, destination.Lat, destination.Lng)
}

func (s *Store) Get(ctx context.Context, origin, destination types.Coordinate) (maps.Leg, bool, error) {
	raw, err := s.redis.Get(ctx, s.Key(origin, destination)).Bytes()
	if errors.Is(err, redis.Nil) {
		return maps.Leg{}, false, nil
	}
	if err != nil {
		return maps.Leg{}, false, err
	}
	var leg maps.Leg
	if err := json.Unmarshal(raw, &leg); err != nil {
		return maps.Leg{}, false, fmt.Errorf("decode cached leg: %w", err)
	}
	return leg, true, nil
}

func (s *Store) Put(ctx context.Context, origin, destination types.Coordinate, leg maps.Leg) error {
	raw, err := json.Marshal(leg)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, s.Key(origin, destination), raw, s.ttl).Err()
}
