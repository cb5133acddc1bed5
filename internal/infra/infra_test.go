package infra

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	logger = newLogger(&buf, "bogus", "json")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestTimeLogsError(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := logger.WithContext(context.Background())

	err := errors.New("boom")
	Time(ctx, "geocode")(&err)
	out := buf.String()
	assert.Contains(t, out, `"op":"geocode"`)
	assert.Contains(t, out, "boom")
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	m.IncEvent("text")
	m.IncEvent("text")
	m.IncTransition("awaiting_origin", "awaiting_destination")
	m.IncTransition("ready", "ready")
	m.ObserveProvider("geocode", "ok", 120*time.Millisecond)
	m.SetActiveSessions(3)
	m.IncExpired()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("awaiting_origin", "awaiting_destination")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsExpired))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	assert.Contains(t, joined, "routebot_provider_duration_seconds")
	assert.Equal(t, 1, testutil.CollectAndCount(m.transitions))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncEvent("start")
	m.ObserveProvider("route", "ok", time.Second)
	m.SetActiveSessions(1)
	assert.Nil(t, m.Registry())
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedis(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = NewRedis(context.Background(), mr.Addr())
	require.Error(t, err)
}
