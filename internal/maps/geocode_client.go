// README: GeocodeClient bounds provider lookups with a timeout and normalises results into ranked candidates.
package maps

import (
	"context"
	"strings"
	"time"

	"routebot/internal/infra"
)

// MaxCandidates caps how many matches are ever offered to a user.
const MaxCandidates = 3

type GeocodeClient struct {
	provider Geocoder
	timeout  time.Duration
	limit    int
	metrics  *infra.Metrics
}

func NewGeocodeClient(provider Geocoder, timeout time.Duration, metrics *infra.Metrics) *GeocodeClient {
	return &GeocodeClient{provider: provider, timeout: timeout, limit: MaxCandidates, metrics: metrics}
}

// Search returns at most MaxCandidates candidates ranked 1..N in provider order.
// Matches with out-of-range coordinates are dropped before ranking.
// Failures are always one of ErrProviderUnavailable or ErrProviderRateLimited.
func (c *GeocodeClient) Search(ctx context.Context, query string) (_ []Candidate, err error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	defer infra.Time(ctx, "geocode")(&err)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	places, err := c.provider.Geocode(ctx, q, c.limit)
	err = classifyLookup(err)
	c.metrics.ObserveProvider("geocode", Outcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, c.limit)
	for _, p := range places {
		if len(out) == c.limit {
			break
		}
		if p.Coordinate.Validate() != nil {
			continue
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = p.Coordinate.String()
		}
		out = append(out, Candidate{
			Name:       name,
			Coordinate: p.Coordinate,
			Confidence: p.Confidence,
			Rank:       len(out) + 1,
		})
	}
	return out, nil
}

// classifyLookup narrows classify to the two errors a lookup may report.
func classifyLookup(err error) error {
	err = classify(err)
	switch Outcome(err) {
	case "ok", "rate_limited", "unavailable":
		return err
	default:
		return unavailable(err)
	}
}
