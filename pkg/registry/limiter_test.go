package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_StartsFull(t *testing.T) {
	b := NewTokenBucket(60)

	for i := 0; i < 60; i++ {
		assert.True(t, b.Acquire(1), "acquire %d should succeed", i+1)
	}
	assert.False(t, b.Acquire(1), "bucket should be empty after capacity grants")
}

func TestTokenBucket_RefillRate(t *testing.T) {
	current := time.Now()
	b := NewTokenBucket(60) // 1 token per second
	b.now = func() time.Time { return current }
	b.lastRefill = current

	// Drain completely
	require.True(t, b.Acquire(60))
	require.False(t, b.Acquire(1))

	// 5 elapsed seconds refill ~5 tokens
	current = current.Add(5 * time.Second)
	assert.True(t, b.Acquire(5))
	assert.False(t, b.Acquire(1))
}

func TestTokenBucket_RefillCappedAtCapacity(t *testing.T) {
	current := time.Now()
	b := NewTokenBucket(10)
	b.now = func() time.Time { return current }
	b.lastRefill = current

	require.True(t, b.Acquire(10))

	// A very long idle period must not overfill the bucket
	current = current.Add(time.Hour)
	assert.InDelta(t, 10.0, b.Available(), 0.001)
	assert.True(t, b.Acquire(10))
	assert.False(t, b.Acquire(1))
}

// Conservation: within any rolling 60s window the number of granted tokens
// never exceeds capacity.
func TestTokenBucket_Conservation(t *testing.T) {
	current := time.Now()
	b := NewTokenBucket(10)
	b.now = func() time.Time { return current }
	b.lastRefill = current

	granted := 0
	// Hammer the bucket every second for one minute
	for i := 0; i < 60; i++ {
		for b.Acquire(1) {
			granted++
		}
		current = current.Add(time.Second)
	}

	// 10 initial + at most 10 refilled over the 59 elapsed seconds
	assert.LessOrEqual(t, granted, 20)
	assert.GreaterOrEqual(t, granted, 19)
}

func TestTokenBucket_WaitForTokens_ExceedsCapacity(t *testing.T) {
	b := NewTokenBucket(10)

	err := b.WaitForTokens(context.Background(), 11)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds bucket capacity")
}

func TestTokenBucket_WaitForTokens_ContextCancelled(t *testing.T) {
	current := time.Now()
	b := NewTokenBucket(10)
	b.now = func() time.Time { return current } // frozen clock: no refill
	b.lastRefill = current
	require.True(t, b.Acquire(10))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := b.WaitForTokens(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucket_WaitForTokens_SucceedsAfterRefill(t *testing.T) {
	b := NewTokenBucket(600) // 10 tokens per second
	require.True(t, b.Acquire(600))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := b.WaitForTokens(ctx, 1)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
