package registry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// waitPollInterval is how long WaitForTokens sleeps between acquire attempts.
const waitPollInterval = 100 * time.Millisecond

// TokenBucket enforces a global requests-per-minute ceiling against the
// registry. Refill is computed lazily on each access, so no background timer is
// needed; the bucket is shared by every worker of the batch sweep and guards its
// counter with a single mutex.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	ratePerSec float64 // requestsPerMinute / 60
	lastRefill time.Time

	now func() time.Time // injectable for tests
}

// NewTokenBucket creates a bucket allowing requestsPerMinute calls per minute.
// The bucket starts full.
func NewTokenBucket(requestsPerMinute int) *TokenBucket {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	b := &TokenBucket{
		capacity:   float64(requestsPerMinute),
		tokens:     float64(requestsPerMinute),
		ratePerSec: float64(requestsPerMinute) / 60.0,
		now:        time.Now,
	}
	b.lastRefill = b.now()
	return b
}

// refillLocked tops the bucket up for the elapsed wall clock, capped at
// capacity. Caller must hold mu.
func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.ratePerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// Acquire consumes n tokens if available and reports whether it did.
// Non-blocking.
func (b *TokenBucket) Acquire(n int) bool {
	if n <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// WaitForTokens blocks until n tokens have been acquired or ctx is done.
// A request for more tokens than the bucket can ever hold fails immediately,
// since it could never be satisfied.
func (b *TokenBucket) WaitForTokens(ctx context.Context, n int) error {
	if float64(n) > b.capacity {
		return fmt.Errorf("requested %d tokens exceeds bucket capacity %.0f", n, b.capacity)
	}

	for {
		if b.Acquire(n) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
}

// Available returns the current token count after refill, for observability.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}
