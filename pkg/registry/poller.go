package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// PollerConfig bounds the synchronous wrapper around the async job protocol.
type PollerConfig struct {
	// Interval is the fixed delay between polls.
	Interval time.Duration
	// Timeout caps the total wall-clock wait for one job.
	Timeout time.Duration
	// MaxAttempts caps the number of polls. Whichever of Timeout and
	// MaxAttempts is hit first ends the wait.
	MaxAttempts int
}

// Poller converts the registry's submit-then-poll protocol into a single
// synchronous call with bounded wall-clock time. Its loop retries because the
// job is still running, not because a call failed: poll calls go through the
// gateway and inherit rate limiting, circuit breaking and HTTP-level retry.
type Poller struct {
	client *Client
	cfg    PollerConfig
	logger *log.Helper

	sleep func(ctx context.Context, d time.Duration) error // injectable for tests
}

// NewPoller creates a poller over the gateway with sensible defaults.
func NewPoller(client *Client, cfg PollerConfig, logger log.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 100
	}
	return &Poller{
		client: client,
		cfg:    cfg,
		logger: log.NewHelper(logger),
		sleep:  sleepCtx,
	}
}

// WaitForResult polls jobID until it completes, fails, or the polling budget
// runs out. A completed job is returned as-is. A failed job raises a job_failed
// error immediately with no further polling; the job itself failed, not the
// poll call, so retrying the poll cannot help.
func (p *Poller) WaitForResult(ctx context.Context, jobID string) (*Job, error) {
	deadline := time.Now().Add(p.cfg.Timeout)

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		job, err := p.client.PollJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch job.Status {
		case JobCompleted:
			return job, nil
		case JobFailed:
			msg := job.ErrMessage
			if msg == "" {
				msg = "job reported failure"
			}
			return nil, &Error{
				Kind:    KindJobFailed,
				Message: fmt.Sprintf("job %s: %s", jobID, msg),
			}
		}

		if time.Now().Add(p.cfg.Interval).After(deadline) {
			break
		}
		p.logger.Debugw("job still running",
			"job_id", jobID,
			"status", job.Status,
			"attempt", attempt)
		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			return nil, err
		}
	}

	return nil, &Error{
		Kind:    KindJobTimeout,
		Message: fmt.Sprintf("job %s did not finish within %s (%d polls max)", jobID, p.cfg.Timeout, p.cfg.MaxAttempts),
	}
}
