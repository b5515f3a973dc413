package registry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig controls the retry policy for a single HTTP-level operation.
type RetryConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // symmetric jitter, e.g. 0.2 for ±20%
}

// DefaultRetryConfig matches the configuration guidance: up to 5 attempts with
// exponential backoff between 1s and 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// RetryPolicy retries retryable failures with category-adjusted exponential
// backoff. It never retries terminal errors and it honors a server-supplied
// Retry-After hint verbatim over the computed delay.
type RetryPolicy struct {
	cfg RetryConfig

	// sleep is injectable for tests; it must honor ctx cancellation.
	sleep func(ctx context.Context, d time.Duration) error
	// onRateLimited is invoked once per observed 429, for observability.
	onRateLimited func()
}

// NewRetryPolicy creates a policy from cfg, filling zero fields with defaults.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = 0
	}
	return &RetryPolicy{cfg: cfg, sleep: sleepCtx}
}

// SetRateLimitHook registers a callback fired whenever a 429 is observed.
func (p *RetryPolicy) SetRateLimitHook(fn func()) {
	p.onRateLimited = fn
}

// Run invokes op up to MaxAttempts times. Terminal errors stop immediately.
// Between retryable failures it sleeps the computed backoff, or the server's
// Retry-After hint when one was supplied.
func (p *RetryPolicy) Run(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		re := AsError(lastErr)
		if re != nil && re.Kind == KindRateLimited && p.onRateLimited != nil {
			p.onRateLimited()
		}
		if !IsRetryable(lastErr) || attempt == p.cfg.MaxAttempts {
			return lastErr
		}

		delay := p.Delay(attempt, lastErr)
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// Delay computes the backoff before the retry that follows attempt number
// attempt (1-based). A Retry-After hint on the error overrides the computation.
func (p *RetryPolicy) Delay(attempt int, cause error) time.Duration {
	if re := AsError(cause); re != nil && re.RetryAfter > 0 {
		return re.RetryAfter
	}

	base := p.cfg.BaseDelay
	// Some failure categories deserve a longer leash before the exponential
	// term is applied: the registry takes longer to recover from overload than
	// from a flaky connection.
	if re := AsError(cause); re != nil {
		switch re.Kind {
		case KindTimeout:
			base = time.Duration(float64(base) * 2.0)
		case KindNetwork:
			base = time.Duration(float64(base) * 1.5)
		case KindServer:
			// 503 means the registry is shedding load on purpose. A 429
			// without a Retry-After hint keeps the plain base; with a hint it
			// never reaches this computation at all.
			if re.StatusCode == 503 {
				base = time.Duration(float64(base) * 3.0)
			}
		}
	}

	delay := float64(base) * math.Pow(p.cfg.Multiplier, float64(attempt-1))
	if delay > float64(p.cfg.MaxDelay) {
		delay = float64(p.cfg.MaxDelay)
	}

	if p.cfg.JitterFactor > 0 {
		jitter := (rand.Float64()*2 - 1) * p.cfg.JitterFactor * delay
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
