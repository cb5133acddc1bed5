// README: Shared HTTP GET with exponential backoff for the OSM providers (Nominatim, OSRM).
package maps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxResponseBytes = 1 << 20

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// fetcher retries 429, 5xx and transport errors; other statuses are returned to the caller.
type fetcher struct {
	client         *http.Client
	userAgent      string
	maxRetries     uint64
	initialBackoff time.Duration
}

func newFetcher(client *http.Client, userAgent string, maxRetries int) *fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &fetcher{
		client:         client,
		userAgent:      userAgent,
		maxRetries:     uint64(maxRetries),
		initialBackoff: 200 * time.Millisecond,
	}
}

func (f *fetcher) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	var (
		body   []byte
		status int
	)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &httpStatusError{StatusCode: resp.StatusCode, Body: truncate(string(b), 200)}
		}
		body, status = b, resp.StatusCode
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.initialBackoff
	eb.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, f.maxRetries), ctx)

	// last keeps the provider's answer when the context expires during a backoff wait.
	var last error
	notify := func(err error, _ time.Duration) { last = err }

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if last != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			err = last
		}
		var se *httpStatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
			return nil, 0, rateLimited(err)
		}
		return nil, 0, unavailable(err)
	}
	return body, status, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
