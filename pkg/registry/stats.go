package registry

import (
	"sync"
	"time"
)

// statsCounter accumulates gateway call counters under a single mutex.
type statsCounter struct {
	mu            sync.Mutex
	total         int64
	successes     int64
	failures      int64
	rateLimitHits int64
	avgLatencyMs  float64
}

// observe records one terminal call outcome. The running latency average is
// updated incrementally over successful calls only.
func (s *statsCounter) observe(d time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if success {
		s.successes++
		n := float64(s.successes)
		sample := float64(d.Milliseconds())
		s.avgLatencyMs = (s.avgLatencyMs*(n-1) + sample) / n
	} else {
		s.failures++
	}
}

// rateLimitHit counts one observed 429.
func (s *statsCounter) rateLimitHit() {
	s.mu.Lock()
	s.rateLimitHits++
	s.mu.Unlock()
}

func (s *statsCounter) snapshot() ClientStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ClientStats{
		TotalCalls:    s.total,
		Successes:     s.successes,
		Failures:      s.failures,
		RateLimitHits: s.rateLimitHits,
		AvgLatencyMs:  s.avgLatencyMs,
	}
}
