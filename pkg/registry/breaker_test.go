package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(t *testing.T) (*CircuitBreaker, *time.Time) {
	t.Helper()
	current := time.Now()
	cb := NewCircuitBreaker("requests", BreakerConfig{
		ErrorThreshold: 0.1,
		Window:         5 * time.Minute,
		Cooldown:       10 * time.Minute,
		MinRequests:    10,
	})
	cb.now = func() time.Time { return current }
	return cb, &current
}

func execN(t *testing.T, cb *CircuitBreaker, succeed, fail int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < succeed; i++ {
		require.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	}
	for i := 0; i < fail; i++ {
		require.Error(t, cb.Execute(ctx, func(context.Context) error { return errBoom }))
	}
}

func TestCircuitBreaker_TripsOnHighErrorRate(t *testing.T) {
	cb, _ := newTestBreaker(t)

	// 2 successes, 9 failures: rate 9/11 well above 10%
	execN(t, cb, 2, 9)

	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_TripsAtExactThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t)

	// 1 failure in 10 is exactly 10%: threshold is inclusive
	execN(t, cb, 9, 1)

	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HoldsBelowMinRequests(t *testing.T) {
	cb, _ := newTestBreaker(t)

	// 1 failure in 9 samples: 11% error rate but below the sample floor
	execN(t, cb, 8, 1)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OpenShedsWithoutInvoking(t *testing.T) {
	cb, _ := newTestBreaker(t)
	execN(t, cb, 0, 10)
	require.Equal(t, StateOpen, cb.State())

	invoked := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.False(t, invoked)
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	cb, current := newTestBreaker(t)
	execN(t, cb, 0, 10)
	require.Equal(t, StateOpen, cb.State())

	*current = current.Add(10*time.Minute + time.Second)

	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())

	// The bad history is discarded after recovery
	assert.Equal(t, 0, cb.Stats().Samples)
}

func TestCircuitBreaker_HalfOpenProbeReopens(t *testing.T) {
	cb, current := newTestBreaker(t)
	execN(t, cb, 0, 10)
	require.Equal(t, StateOpen, cb.State())

	*current = current.Add(10*time.Minute + time.Second)

	err := cb.Execute(context.Background(), func(context.Context) error { return errBoom })
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, cb.State())

	// The cooldown restarts from the failed probe
	*current = current.Add(9 * time.Minute)
	err = cb.Execute(context.Background(), func(context.Context) error { return nil })
	assert.True(t, IsCircuitOpen(err))
}

func TestCircuitBreaker_WindowPrunesOldOutcomes(t *testing.T) {
	cb, current := newTestBreaker(t)

	// 9 old failures fall out of the window; were they retained, the next
	// batch would trip the breaker at 9/19 errors
	execN(t, cb, 0, 9)
	*current = current.Add(6 * time.Minute)
	execN(t, cb, 10, 0)

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 10, cb.Stats().Samples)
}

func TestCircuitBreaker_StatsSnapshot(t *testing.T) {
	cb, _ := newTestBreaker(t)
	execN(t, cb, 3, 1)

	stats := cb.Stats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, 4, stats.Samples)
	assert.InDelta(t, 0.25, stats.ErrorRate, 0.001)
}
