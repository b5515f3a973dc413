package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy(cfg RetryConfig) (*RetryPolicy, *[]time.Duration) {
	p := NewRetryPolicy(cfg)
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return p, &slept
}

func TestRetryPolicy_ExhaustsExactlyMaxAttempts(t *testing.T) {
	p, slept := newTestPolicy(RetryConfig{MaxAttempts: 5, JitterFactor: -1})

	attempts := 0
	err := p.Run(context.Background(), func(context.Context) error {
		attempts++
		return &Error{Kind: KindServer, StatusCode: 500, Message: "oops"}
	})

	require.Error(t, err)
	assert.Equal(t, 5, attempts)
	// One sleep between each pair of attempts, none after the last
	assert.Len(t, *slept, 4)
}

func TestRetryPolicy_TerminalStopsImmediately(t *testing.T) {
	p, slept := newTestPolicy(RetryConfig{MaxAttempts: 5})

	attempts := 0
	err := p.Run(context.Background(), func(context.Context) error {
		attempts++
		return &Error{Kind: KindClient, StatusCode: 404, Message: "no such case"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *slept)
}

func TestRetryPolicy_SucceedsMidway(t *testing.T) {
	p, slept := newTestPolicy(RetryConfig{MaxAttempts: 5})

	attempts := 0
	err := p.Run(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &Error{Kind: KindNetwork, Message: "connection reset"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, *slept, 2)
}

func TestRetryPolicy_RetryAfterOverridesBackoff(t *testing.T) {
	p, slept := newTestPolicy(RetryConfig{MaxAttempts: 2})

	err := p.Run(context.Background(), func(context.Context) error {
		return &Error{Kind: KindRateLimited, StatusCode: 429, RetryAfter: 7 * time.Second}
	})

	require.Error(t, err)
	require.Len(t, *slept, 1)
	assert.Equal(t, 7*time.Second, (*slept)[0])
}

func TestRetryPolicy_RateLimitHookFires(t *testing.T) {
	p, _ := newTestPolicy(RetryConfig{MaxAttempts: 3})
	hits := 0
	p.SetRateLimitHook(func() { hits++ })

	_ = p.Run(context.Background(), func(context.Context) error {
		return &Error{Kind: KindRateLimited, StatusCode: 429, RetryAfter: time.Millisecond}
	})

	assert.Equal(t, 3, hits)
}

func TestRetryPolicy_SleepErrorAborts(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{MaxAttempts: 5})
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	attempts := 0
	err := p.Run(context.Background(), func(context.Context) error {
		attempts++
		return &Error{Kind: KindTimeout, Message: "deadline"}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicy_DelayGrowsAndCaps(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{
		MaxAttempts:  8,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: -1, // normalized to 0: deterministic delays
	})
	cause := &Error{Kind: KindServer, StatusCode: 500}

	var prev time.Duration
	for attempt := 1; attempt <= 8; attempt++ {
		d := p.Delay(attempt, cause)
		assert.GreaterOrEqual(t, d, prev, "delay must be non-decreasing")
		assert.LessOrEqual(t, d, 30*time.Second)
		prev = d
	}
	assert.Equal(t, time.Second, p.Delay(1, cause))
	assert.Equal(t, 2*time.Second, p.Delay(2, cause))
	assert.Equal(t, 30*time.Second, p.Delay(8, cause))
}

func TestRetryPolicy_CategoryAdjustedBase(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{
		MaxAttempts:  5,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: -1,
	})

	assert.Equal(t, 2*time.Second, p.Delay(1, &Error{Kind: KindTimeout}))
	assert.Equal(t, 1500*time.Millisecond, p.Delay(1, &Error{Kind: KindNetwork}))
	assert.Equal(t, 3*time.Second, p.Delay(1, &Error{Kind: KindServer, StatusCode: 503}))
	assert.Equal(t, time.Second, p.Delay(1, &Error{Kind: KindServer, StatusCode: 500}))
	// A hintless 429 gets the plain base, not the overload adjustment
	assert.Equal(t, time.Second, p.Delay(1, &Error{Kind: KindRateLimited, StatusCode: 429}))
}

func TestRetryPolicy_JitterStaysWithinBounds(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{
		MaxAttempts:  5,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	})
	cause := &Error{Kind: KindServer, StatusCode: 500}

	for i := 0; i < 100; i++ {
		d := p.Delay(1, cause)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
