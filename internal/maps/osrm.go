// README: OSRM router over HTTP (route service, no geometry).
package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"routebot/internal/types"
)

type OSRMConfig struct {
	BaseURL    string
	Profile    string
	UserAgent  string
	MaxRetries int
	HTTPClient *http.Client
}

type OSRMRouter struct {
	baseURL string
	profile string
	fetch   *fetcher
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func NewOSRMRouter(cfg OSRMConfig) *OSRMRouter {
	profile := cfg.Profile
	if profile == "" {
		profile = "driving"
	}
	return &OSRMRouter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		profile: profile,
		fetch:   newFetcher(cfg.HTTPClient, cfg.UserAgent, cfg.MaxRetries),
	}
}

func (r *OSRMRouter) Route(ctx context.Context, origin, destination types.Coordinate) (Leg, error) {
	// OSRM takes lon,lat pairs.
	endpoint := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=false",
		r.baseURL, r.profile, origin.Lng, origin.Lat, destination.Lng, destination.Lat)

	body, status, err := r.fetch.get(ctx, endpoint)
	if err != nil {
		return Leg{}, err
	}

	var resp osrmResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Leg{}, unavailable(fmt.Errorf("decode osrm response (status %d): %w", status, err))
	}
	switch resp.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return Leg{}, fmt.Errorf("%w: %s", ErrNoRouteFound, resp.Message)
	default:
		return Leg{}, unavailable(fmt.Errorf("osrm code %q (status %d): %s", resp.Code, status, resp.Message))
	}
	if len(resp.Routes) == 0 {
		return Leg{}, ErrNoRouteFound
	}
	return Leg{DistanceMeters: resp.Routes[0].Distance, DurationSeconds: resp.Routes[0].Duration}, nil
}
