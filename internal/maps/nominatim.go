// README: Nominatim (OpenStreetMap) geocoder over HTTP.
package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type NominatimConfig struct {
	BaseURL      string
	UserAgent    string
	CountryCodes string
	Language     string
	// ViewBox is "minLon,minLat,maxLon,maxLat"; results are bounded to it when set.
	ViewBox      string
	Replacements []Replacement
	MaxRetries   int
	HTTPClient   *http.Client
}

type NominatimGeocoder struct {
	cfg   NominatimConfig
	fetch *fetcher
}

type nominatimPlace struct {
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Importance  float64           `json:"importance"`
	Address     map[string]string `json:"address"`
}

func NewNominatimGeocoder(cfg NominatimConfig) *NominatimGeocoder {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &NominatimGeocoder{cfg: cfg, fetch: newFetcher(cfg.HTTPClient, cfg.UserAgent, cfg.MaxRetries)}
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, query string, limit int) ([]Place, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("addressdetails", "1")
	if g.cfg.CountryCodes != "" {
		params.Set("countrycodes", g.cfg.CountryCodes)
	}
	if g.cfg.Language != "" {
		params.Set("accept-language", g.cfg.Language)
	}
	if g.cfg.ViewBox != "" {
		params.Set("viewbox", g.cfg.ViewBox)
		params.Set("bounded", "1")
	}

	body, status, err := g.fetch.get(ctx, g.cfg.BaseURL+"/search?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, unavailable(fmt.Errorf("nominatim status %d", status))
	}

	var raw []nominatimPlace
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, unavailable(fmt.Errorf("decode nominatim response: %w", err))
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		lat, err := strconv.ParseFloat(r.Lat, 64)
		if err != nil {
			continue
		}
		lng, err := strconv.ParseFloat(r.Lon, 64)
		if err != nil {
			continue
		}
		places = append(places, Place{
			Name:       nominatimLabel(r, g.cfg.Replacements),
			Coordinate: coordinate(lat, lng),
			Confidence: r.Importance,
		})
	}
	return places, nil
}
