package data

import (
	"context"
	"io"
	"testing"
	"time"

	"DocketWatch/pkg/registry"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestTelemetrySink_BumpsDailyCounters(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	sink := NewTelemetrySink(nil, rdb, log.NewStdLogger(io.Discard))

	at := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	sink.Record(registry.CallRecord{
		Group:     "requests",
		Operation: "submit_search",
		CaseKey:   "case-1",
		Success:   true,
		Duration:  120 * time.Millisecond,
		At:        at,
	})
	sink.Record(registry.CallRecord{
		Group:     "requests",
		Operation: "poll_job",
		Success:   false,
		ErrorKind: "server",
		At:        at,
	})
	sink.Record(registry.CallRecord{
		Group:   "tracking",
		Success: true,
		At:      at,
	})

	ctx := context.Background()
	assert.Equal(t, "1", rdb.Get(ctx, "telemetry:2024-06-15:requests:success").Val())
	assert.Equal(t, "1", rdb.Get(ctx, "telemetry:2024-06-15:requests:failure").Val())
	assert.Equal(t, "1", rdb.Get(ctx, "telemetry:2024-06-15:tracking:success").Val())

	// Counters carry an expiry so stale days age out
	ttl := mr.TTL("telemetry:2024-06-15:requests:success")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 48*time.Hour)
}

func TestTelemetrySink_CountersAccumulate(t *testing.T) {
	_, rdb := newMiniredisClient(t)
	sink := NewTelemetrySink(nil, rdb, log.NewStdLogger(io.Discard))

	at := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		sink.Record(registry.CallRecord{Group: "requests", Success: true, At: at})
	}

	assert.Equal(t, "5", rdb.Get(context.Background(), "telemetry:2024-06-15:requests:success").Val())
}

func TestTelemetrySink_SurvivesRedisDown(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	sink := NewTelemetrySink(nil, rdb, log.NewStdLogger(io.Discard))
	mr.Close()

	// Must not panic or block
	require.NotPanics(t, func() {
		sink.Record(registry.CallRecord{Group: "requests", Success: true, At: time.Now()})
	})
}

func TestTelemetrySink_NilBackends(t *testing.T) {
	sink := NewTelemetrySink(nil, nil, log.NewStdLogger(io.Discard))

	require.NotPanics(t, func() {
		sink.Record(registry.CallRecord{Group: "requests", Success: true, At: time.Now()})
	})
}
