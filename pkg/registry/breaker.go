package registry

import (
	"context"
	"sync"
	"time"
)

// CircuitState is the breaker state for one logical service group.
type CircuitState int

const (
	// StateClosed indicates normal operation.
	StateClosed CircuitState = iota
	// StateOpen indicates the breaker is shedding calls.
	StateOpen
	// StateHalfOpen indicates a single probe call is permitted.
	StateHalfOpen
)

// String returns the state name used in stats and logs.
func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig controls trip and recovery thresholds.
type BreakerConfig struct {
	// ErrorThreshold is the error rate (0..1) at or above which the breaker
	// opens, provided MinRequests outcomes are in the window.
	ErrorThreshold float64
	// Window is the sliding window duration over which outcomes are counted.
	Window time.Duration
	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration
	// MinRequests is the minimum sample size before the breaker may trip.
	MinRequests int
}

// BreakerStats is an observability snapshot.
type BreakerStats struct {
	State     CircuitState
	ErrorRate float64
	Samples   int
}

type callOutcome struct {
	at      time.Time
	success bool
}

// CircuitBreaker tracks a sliding window of call outcomes for one service group
// and sheds load when the error rate crosses the threshold. It never retries;
// it is a fast-fail gate composed around retryable operations.
type CircuitBreaker struct {
	group string
	cfg   BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	outcomes []callOutcome
	openedAt time.Time

	now func() time.Time // injectable for tests
}

// NewCircuitBreaker creates a closed breaker for the named service group.
func NewCircuitBreaker(group string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = 0.1
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 10
	}
	return &CircuitBreaker{
		group: group,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Execute runs op through the breaker. When the breaker is open and the
// cooldown has not elapsed, op is not invoked and a circuit-open error is
// returned immediately. When the cooldown has elapsed the breaker moves to
// half-open and lets op through as a probe: success closes the breaker and
// resets the window, failure reopens it and restarts the cooldown.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := op(ctx)
	cb.record(err == nil)
	return err
}

// admit decides whether a call may proceed, advancing open -> half-open when
// the cooldown has elapsed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return CircuitOpenError(cb.group)
		}
		cb.state = StateHalfOpen
	}
	return nil
}

// record adds the outcome to the window and applies the transition rules.
func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.state == StateHalfOpen {
		if success {
			// Probe succeeded: close and forget the bad history.
			cb.state = StateClosed
			cb.outcomes = cb.outcomes[:0]
			return
		}
		cb.state = StateOpen
		cb.openedAt = now
		return
	}

	cb.outcomes = append(cb.outcomes, callOutcome{at: now, success: success})
	cb.pruneLocked(now)

	total := len(cb.outcomes)
	if total < cb.cfg.MinRequests {
		return
	}
	failures := 0
	for _, o := range cb.outcomes {
		if !o.success {
			failures++
		}
	}
	rate := float64(failures) / float64(total)
	if rate >= cb.cfg.ErrorThreshold {
		cb.state = StateOpen
		cb.openedAt = now
	}
}

// pruneLocked drops outcomes older than the window. Caller must hold mu.
func (cb *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-cb.cfg.Window)
	keep := cb.outcomes[:0]
	for _, o := range cb.outcomes {
		if o.at.After(cutoff) {
			keep = append(keep, o)
		}
	}
	cb.outcomes = keep
}

// State returns the current breaker state, advancing open -> half-open is NOT
// done here; only Execute moves the state machine.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of state, error rate and sample count.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.pruneLocked(cb.now())
	total := len(cb.outcomes)
	failures := 0
	for _, o := range cb.outcomes {
		if !o.success {
			failures++
		}
	}
	rate := 0.0
	if total > 0 {
		rate = float64(failures) / float64(total)
	}
	return BreakerStats{State: cb.state, ErrorRate: rate, Samples: total}
}
