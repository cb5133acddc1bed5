// README: Provider-neutral geocoding and routing types plus the provider interfaces.
package maps

import (
	"context"

	"routebot/internal/types"
)

// Place is one raw provider match. Confidence is provider-specific but higher is better.
type Place struct {
	Name       string           `json:"name"`
	Coordinate types.Coordinate `json:"coordinate"`
	Confidence float64          `json:"confidence"`
}

// Candidate is a validated Place with its 1-based rank in provider order.
type Candidate struct {
	Name       string           `json:"name"`
	Coordinate types.Coordinate `json:"coordinate"`
	Confidence float64          `json:"confidence"`
	Rank       int              `json:"rank"`
}

// Leg is the distance and duration a Router reports for a coordinate pair.
type Leg struct {
	DistanceMeters  float64 `json:"distance_m"`
	DurationSeconds float64 `json:"duration_s"`
}

type RouteResult struct {
	DistanceMeters  float64 `json:"distance_m"`
	DurationSeconds float64 `json:"duration_s"`
	MapLink         string  `json:"map_link"`
}

// Geocoder is a text to coordinates provider. Results are in provider relevance order.
type Geocoder interface {
	Geocode(ctx context.Context, query string, limit int) ([]Place, error)
}

// Router is a coordinate pair to driving leg provider.
type Router interface {
	Route(ctx context.Context, origin, destination types.Coordinate) (Leg, error)
}

// LinkFunc renders an external directions link for a coordinate pair.
type LinkFunc func(origin, destination types.Coordinate) string
