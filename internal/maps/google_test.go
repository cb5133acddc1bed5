package maps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoogleServer(t *testing.T, handler http.HandlerFunc) GoogleConfig {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return GoogleConfig{APIKey: "AIzaTestKey", BaseURL: srv.URL, Region: "vn", Language: "vi"}
}

func TestGoogleGeocode(t *testing.T) {
	cfg := newGoogleServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		assert.Equal(t, "Ben Thanh", r.URL.Query().Get("address"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","results":[
			{"formatted_address":"Ben Thanh Market","geometry":{"location":{"lat":10.7725,"lng":106.698},"location_type":"ROOFTOP"}},
			{"formatted_address":"Ben Thanh Ward","geometry":{"location":{"lat":10.77,"lng":106.69},"location_type":"APPROXIMATE"},"partial_match":true}
		]}`))
	})
	client, err := NewGoogleClient(cfg)
	require.NoError(t, err)
	g, err := NewGoogleGeocoder(client, cfg)
	require.NoError(t, err)

	places, err := g.Geocode(context.Background(), "Ben Thanh", 3)
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, "Ben Thanh Market", places[0].Name)
	assert.Equal(t, 1.0, places[0].Confidence)
	assert.Equal(t, 0.2, places[1].Confidence)
}

func TestGoogleGeocodeStatuses(t *testing.T) {
	tests := []struct {
		status  string
		wantErr error
	}{
		{status: "ZERO_RESULTS"},
		{status: "OVER_QUERY_LIMIT", wantErr: ErrProviderRateLimited},
		{status: "REQUEST_DENIED", wantErr: ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			cfg := newGoogleServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"` + tt.status + `","results":[]}`))
			})
			client, err := NewGoogleClient(cfg)
			require.NoError(t, err)
			g, err := NewGoogleGeocoder(client, cfg)
			require.NoError(t, err)

			places, err := g.Geocode(context.Background(), "nowhere", 3)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Empty(t, places)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGoogleRoute(t *testing.T) {
	cfg := newGoogleServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/api/directions/json", r.URL.Path)
		assert.Equal(t, "10.772500,106.698000", r.URL.Query().Get("origin"))
		_, _ = w.Write([]byte(`{"status":"OK","routes":[{"legs":[
			{"distance":{"text":"7.4 km","value":7412},"duration":{"text":"21 mins","value":1265}}
		]}]}`))
	})
	client, err := NewGoogleClient(cfg)
	require.NoError(t, err)

	leg, err := NewGoogleRouter(client, cfg).Route(context.Background(), benThanh, tanSonNhat)
	require.NoError(t, err)
	assert.Equal(t, 7412.0, leg.DistanceMeters)
	assert.Equal(t, 1265.0, leg.DurationSeconds)
}

func TestGoogleRouteZeroResults(t *testing.T) {
	cfg := newGoogleServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","routes":[]}`))
	})
	client, err := NewGoogleClient(cfg)
	require.NoError(t, err)

	_, err = NewGoogleRouter(client, cfg).Route(context.Background(), benThanh, tanSonNhat)
	assert.ErrorIs(t, err, ErrNoRouteFound)
}

func TestParseViewBox(t *testing.T) {
	b, err := parseViewBox("106.35,10.13,107.02,11.16")
	require.NoError(t, err)
	assert.Equal(t, 10.13, b.SouthWest.Lat)
	assert.Equal(t, 107.02, b.NorthEast.Lng)

	_, err = parseViewBox("1,2,3")
	assert.Error(t, err)
}
