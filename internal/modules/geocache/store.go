// README: Geocode cache store backed by PostgreSQL (JSONB places keyed by normalised query).
package geocache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"routebot/internal/maps"
)

// Schema mirrors migrations/0001_geocode_cache.sql.
const Schema = `
CREATE TABLE IF NOT EXISTS geocode_cache (
    query_key  TEXT PRIMARY KEY,
    places     JSONB NOT NULL,
    fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS geocode_cache_fetched_at_idx ON geocode_cache (fetched_at)`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure geocode_cache schema: %w", err)
	}
	return nil
}

// Get returns the cached places for key when they are younger than maxAge.
func (s *Store) Get(ctx context.Context, key string, maxAge time.Duration) ([]maps.Place, bool, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `
        SELECT places
        FROM geocode_cache
        WHERE query_key = $1 AND fetched_at > $2`,
		key, time.Now().Add(-maxAge),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var places []maps.Place
	if err := json.Unmarshal(raw, &places); err != nil {
		return nil, false, fmt.Errorf("decode cached places: %w", err)
	}
	return places, true, nil
}

func (s *Store) Put(ctx context.Context, key string, places []maps.Place) error {
	if places == nil {
		places = []maps.Place{}
	}
	raw, err := json.Marshal(places)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO geocode_cache (query_key, places, fetched_at)
        VALUES ($1, $2, now())
        ON CONFLICT (query_key) DO UPDATE
        SET places = EXCLUDED.places, fetched_at = EXCLUDED.fetched_at`,
		key, raw,
	)
	return err
}

// Prune deletes entries fetched before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM geocode_cache WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
