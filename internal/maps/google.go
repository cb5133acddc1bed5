// README: Google Maps geocoder and router backed by googlemaps.github.io/maps.
package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"routebot/internal/types"
)

type GoogleConfig struct {
	APIKey   string
	BaseURL  string
	Region   string
	Language string
	// Bounds biases geocoding toward a "minLon,minLat,maxLon,maxLat" box when set.
	Bounds string
}

// NewGoogleClient creates the shared Maps client. BaseURL overrides the API host (tests, proxies).
func NewGoogleClient(cfg GoogleConfig) (*maps.Client, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

type GoogleGeocoder struct {
	client   *maps.Client
	region   string
	language string
	bounds   *maps.LatLngBounds
}

func NewGoogleGeocoder(client *maps.Client, cfg GoogleConfig) (*GoogleGeocoder, error) {
	g := &GoogleGeocoder{client: client, region: cfg.Region, language: cfg.Language}
	if cfg.Bounds != "" {
		b, err := parseViewBox(cfg.Bounds)
		if err != nil {
			return nil, err
		}
		g.bounds = b
	}
	return g, nil
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, query string, limit int) ([]Place, error) {
	r := &maps.GeocodingRequest{
		Address:  query,
		Region:   g.region,
		Language: g.language,
		Bounds:   g.bounds,
	}
	results, err := g.client.Geocode(ctx, r)
	if err != nil {
		if isGoogleStatus(err, "ZERO_RESULTS") {
			return nil, nil
		}
		return nil, googleError(err)
	}

	places := make([]Place, 0, len(results))
	for _, res := range results {
		if limit > 0 && len(places) == limit {
			break
		}
		places = append(places, Place{
			Name:       res.FormattedAddress,
			Coordinate: coordinate(res.Geometry.Location.Lat, res.Geometry.Location.Lng),
			Confidence: googleConfidence(res.Geometry.LocationType, res.PartialMatch),
		})
	}
	return places, nil
}

type GoogleRouter struct {
	client   *maps.Client
	region   string
	language string
}

func NewGoogleRouter(client *maps.Client, cfg GoogleConfig) *GoogleRouter {
	return &GoogleRouter{client: client, region: cfg.Region, language: cfg.Language}
}

func (g *GoogleRouter) Route(ctx context.Context, origin, destination types.Coordinate) (Leg, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin.String(),
		Destination: destination.String(),
		Mode:        maps.TravelModeDriving,
		Language:    g.language,
		Region:      g.region,
	}

	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		if isGoogleStatus(err, "ZERO_RESULTS") || isGoogleStatus(err, "NOT_FOUND") {
			return Leg{}, fmt.Errorf("%w: %v", ErrNoRouteFound, err)
		}
		return Leg{}, googleError(err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Leg{}, ErrNoRouteFound
	}

	leg := routes[0].Legs[0]
	return Leg{
		DistanceMeters:  float64(leg.Distance.Meters),
		DurationSeconds: leg.Duration.Seconds(),
	}, nil
}

// googleConfidence maps location precision to [0,1]; partial matches are halved.
func googleConfidence(locationType string, partial bool) float64 {
	var c float64
	switch locationType {
	case "ROOFTOP":
		c = 1.0
	case "RANGE_INTERPOLATED":
		c = 0.8
	case "GEOMETRIC_CENTER":
		c = 0.6
	default:
		c = 0.4
	}
	if partial {
		c /= 2
	}
	return c
}

// The client reports API statuses as "maps: STATUS - message".
func isGoogleStatus(err error, status string) bool {
	return err != nil && strings.Contains(err.Error(), status)
}

func googleError(err error) error {
	if isGoogleStatus(err, "OVER_QUERY_LIMIT") || isGoogleStatus(err, "OVER_DAILY_LIMIT") {
		return rateLimited(err)
	}
	return unavailable(err)
}

func coordinate(lat, lng float64) types.Coordinate {
	return types.Coordinate{Lat: lat, Lng: lng}
}

func parseViewBox(s string) (*maps.LatLngBounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("viewbox %q: want minLon,minLat,maxLon,maxLat", s)
	}
	var v [4]float64
	for i, p := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%g", &v[i]); err != nil {
			return nil, fmt.Errorf("viewbox %q: %w", s, err)
		}
	}
	return &maps.LatLngBounds{
		SouthWest: maps.LatLng{Lat: v[1], Lng: v[0]},
		NorthEast: maps.LatLng{Lat: v[3], Lng: v[2]},
	}, nil
}
