package maps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nominatimBody = `[
  {"lat":"10.7725","lon":"106.6980","name":"Chợ Bến Thành","display_name":"Chợ Bến Thành, Phường Bến Thành, Quận 1",
   "importance":0.62,"address":{"road":"Đường Lê Lợi","suburb":"Phường Bến Thành"}},
  {"lat":"oops","lon":"106.7","name":"broken"},
  {"lat":"10.7800","lon":"106.7000","name":"","display_name":"Ben Thanh Bus Station, Quan 1","importance":0.41,"address":{}}
]`

func newTestNominatim(url string) *NominatimGeocoder {
	g := NewNominatimGeocoder(NominatimConfig{
		BaseURL:      url + "/",
		UserAgent:    "routebot-test/1.0",
		CountryCodes: "vn",
		Language:     "vi",
		ViewBox:      "106.3567007,10.1399458,107.0276712,11.1603083",
		Replacements: DefaultLabelReplacements,
		MaxRetries:   2,
	})
	g.fetch.initialBackoff = time.Millisecond
	return g
}

func TestNominatimGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "ben thanh", q.Get("q"))
		assert.Equal(t, "jsonv2", q.Get("format"))
		assert.Equal(t, "3", q.Get("limit"))
		assert.Equal(t, "1", q.Get("addressdetails"))
		assert.Equal(t, "vn", q.Get("countrycodes"))
		assert.Equal(t, "vi", q.Get("accept-language"))
		assert.Equal(t, "1", q.Get("bounded"))
		assert.Equal(t, "routebot-test/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(nominatimBody))
	}))
	defer srv.Close()

	places, err := newTestNominatim(srv.URL).Geocode(context.Background(), "ben thanh", 3)
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, "Chợ Bến Thành — Lê Lợi, P. Bến Thành", places[0].Name)
	assert.InDelta(t, 10.7725, places[0].Coordinate.Lat, 1e-9)
	assert.InDelta(t, 0.62, places[0].Confidence, 1e-9)
	assert.Equal(t, "Ben Thanh Bus Station", places[1].Name)
}

func TestNominatimRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	places, err := newTestNominatim(srv.URL).Geocode(context.Background(), "x", 3)
	require.NoError(t, err)
	assert.Empty(t, places)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestNominatimErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "throttled", status: http.StatusTooManyRequests, want: ErrProviderRateLimited},
		{name: "server error", status: http.StatusServiceUnavailable, want: ErrProviderUnavailable},
		{name: "forbidden", status: http.StatusForbidden, want: ErrProviderUnavailable},
		{name: "garbage", status: http.StatusOK, body: "<html>", want: ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestNominatim(srv.URL).Geocode(context.Background(), "x", 3)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
