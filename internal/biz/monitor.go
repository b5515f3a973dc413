package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"DocketWatch/internal/model"
	"DocketWatch/pkg/registry"

	"github.com/go-kratos/kratos/v2/log"
)

// ErrRunInProgress is returned when a sweep is requested while one is already
// in flight. The task is not re-entrant; overlapping triggers are skipped.
var ErrRunInProgress = errors.New("daily check already running")

// MonitorConfig tunes the batch sweep.
//
// Note on retry stacking: CaseAttempts and the gateway's HTTP-level retry are
// independent layers guarding different failure classes (surrounding
// persistence/escalation logic vs. individual HTTP calls). They multiply in the
// worst case: 2 case attempts x 5 HTTP attempts = up to 10 HTTP tries for one
// case. Size the registry rate limit with that in mind.
type MonitorConfig struct {
	// BatchSize partitions the population (default 50).
	BatchSize int
	// Concurrency bounds the worker pool within one batch (default 5).
	Concurrency int
	// InterBatchDelay is slept between batches, not after the last one. It
	// smooths registry load independently of the token bucket.
	InterBatchDelay time.Duration
	// Lookback is subtracted from now to form the "since" filter (default 24h).
	Lookback time.Duration
	// CaseAttempts is how many times one case check is attempted end to end
	// (default 2), with CaseRetryDelay between attempts.
	CaseAttempts   int
	CaseRetryDelay time.Duration
	// TriggerKeywords gate the expensive escalation: only a case whose new
	// movements match one of these gets an attachment search.
	TriggerKeywords []string
}

// withDefaults fills zero fields.
func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.InterBatchDelay <= 0 {
		c.InterBatchDelay = 2 * time.Second
	}
	if c.Lookback <= 0 {
		c.Lookback = 24 * time.Hour
	}
	if c.CaseAttempts <= 0 {
		c.CaseAttempts = 2
	}
	if c.CaseRetryDelay <= 0 {
		c.CaseRetryDelay = 5 * time.Second
	}
	return c
}

// DailyCheckTask sweeps every monitored case once: cheap update check first,
// expensive attachment retrieval only for cases whose new movements match a
// trigger keyword. One case's failure never aborts the batch or the run.
type DailyCheckTask struct {
	repo     CaseRepo
	gateway  Gateway
	poller   JobWaiter
	notifier Notifier
	cfg      MonitorConfig
	logger   *log.Helper

	running atomic.Bool

	// sleep is injectable for tests; it must honor ctx cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDailyCheckTask creates the sweep task.
func NewDailyCheckTask(
	repo CaseRepo,
	gateway Gateway,
	poller JobWaiter,
	notifier Notifier,
	cfg MonitorConfig,
	logger log.Logger,
) *DailyCheckTask {
	return &DailyCheckTask{
		repo:     repo,
		gateway:  gateway,
		poller:   poller,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   log.NewHelper(logger),
		sleep:    sleepCtx,
	}
}

// Running reports whether a sweep is currently in flight.
func (t *DailyCheckTask) Running() bool {
	return t.running.Load()
}

// Run executes one full sweep and returns its summary. A concurrent call while
// a run is in flight returns ErrRunInProgress without doing any work. A
// run-level failure (the population source itself unreachable) aborts the run
// and is surfaced through the failure notification channel.
func (t *DailyCheckTask) Run(ctx context.Context) (*model.BatchSummary, error) {
	if !t.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer t.running.Store(false)

	start := time.Now()
	summary := &model.BatchSummary{StartedAt: start}

	cases, err := t.repo.ListActive(ctx)
	if err != nil {
		runErr := fmt.Errorf("failed to load monitored cases: %w", err)
		if nerr := t.notifier.PublishFailure(ctx, runErr); nerr != nil {
			t.logger.Warnw("failed to publish run failure", "error", nerr)
		}
		return nil, runErr
	}

	if len(cases) == 0 {
		t.logger.Info("no active cases to check")
		summary.Duration = time.Since(start)
		t.publishSummary(ctx, summary)
		return summary, nil
	}

	since := start.Add(-t.cfg.Lookback)
	batches := chunkCases(cases, t.cfg.BatchSize)

	t.logger.Infow("daily check starting",
		"total_cases", len(cases),
		"batches", len(batches),
		"batch_size", t.cfg.BatchSize,
		"concurrency", t.cfg.Concurrency,
		"since", since)

	for i, batch := range batches {
		if ctx.Err() != nil {
			t.logger.Warnw("run cancelled, stopping before next batch",
				"completed_batches", i,
				"total_batches", len(batches))
			break
		}

		for _, res := range t.runBatch(ctx, batch, since) {
			summary.Add(res)
		}

		t.logger.Infow("batch completed",
			"batch", i+1,
			"batches", len(batches),
			"checked", summary.Total,
			"failed", summary.Failed)

		if i < len(batches)-1 {
			if err := t.sleep(ctx, t.cfg.InterBatchDelay); err != nil {
				t.logger.Warnw("run cancelled during inter-batch delay", "batch", i+1)
				break
			}
		}
	}

	summary.Duration = time.Since(start)
	t.logger.Infow("daily check completed",
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"with_new_data", summary.WithNewData,
		"with_escalation", summary.WithEscalation,
		"duration", summary.Duration)

	t.publishSummary(ctx, summary)
	return summary, nil
}

// publishSummary delivers the run summary, logging rather than failing on a
// notification error.
func (t *DailyCheckTask) publishSummary(ctx context.Context, summary *model.BatchSummary) {
	if err := t.notifier.PublishSummary(ctx, summary); err != nil {
		t.logger.Warnw("failed to publish run summary", "error", err)
	}
}

// runBatch checks one batch on a bounded worker pool and joins every outcome,
// success or failure, into the returned slice before returning.
func (t *DailyCheckTask) runBatch(ctx context.Context, batch []*model.MonitoredCase, since time.Time) []model.CheckResult {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]model.CheckResult, 0, len(batch))
		sem     = make(chan struct{}, t.cfg.Concurrency)
	)

	for _, mc := range batch {
		wg.Add(1)
		sem <- struct{}{}

		go func(mc *model.MonitoredCase) {
			defer wg.Done()
			defer func() { <-sem }()

			res := t.checkWithRetry(ctx, mc, since)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(mc)
	}

	wg.Wait()
	return results
}

// checkWithRetry runs the whole case check up to CaseAttempts times. This layer
// covers failures in the surrounding persistence and escalation logic, on top
// of the gateway's own HTTP-level retry.
func (t *DailyCheckTask) checkWithRetry(ctx context.Context, mc *model.MonitoredCase, since time.Time) model.CheckResult {
	var res model.CheckResult

	for attempt := 1; attempt <= t.cfg.CaseAttempts; attempt++ {
		res = t.checkOnce(ctx, mc, since)
		if res.Success {
			return res
		}
		t.logger.Warnw("case check failed",
			"case_key", mc.ExternalKey,
			"attempt", attempt,
			"attempts", t.cfg.CaseAttempts,
			"error", res.Err)
		if attempt < t.cfg.CaseAttempts {
			if err := t.sleep(ctx, t.cfg.CaseRetryDelay); err != nil {
				return res
			}
		}
	}
	return res
}

// checkOnce performs one end-to-end check of a single case. Panics are caught
// at this boundary and converted into a failed result so a programmer error in
// one case can never abort the batch loop.
func (t *DailyCheckTask) checkOnce(ctx context.Context, mc *model.MonitoredCase, since time.Time) (res model.CheckResult) {
	res = model.CheckResult{CaseID: mc.ID, ExternalKey: mc.ExternalKey}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Err = fmt.Errorf("panic during case check: %v", r)
			t.logger.Errorw("recovered panic in case check",
				"case_key", mc.ExternalKey,
				"panic", r)
		}
	}()

	updates, err := t.gateway.FetchTrackedUpdates(ctx, mc.TrackingID, since)
	if err != nil {
		res.Err = err
		return res
	}

	if !updates.HasNewData || len(updates.Items) == 0 {
		res.Success = true
		t.touchChecked(ctx, mc)
		return res
	}

	res.HasNewData = true
	res.DataCount = len(updates.Items)

	if err := t.repo.PersistUpdates(ctx, mc.ID, updates.Items); err != nil {
		res.Err = fmt.Errorf("failed to persist updates: %w", err)
		return res
	}

	if t.shouldEscalate(updates.Items) {
		res.EscalationRequired = true
		if err := t.escalate(ctx, mc); err != nil {
			res.Err = fmt.Errorf("escalation failed: %w", err)
			return res
		}
	}

	res.Success = true
	t.touchChecked(ctx, mc)
	return res
}

// touchChecked records the check time, best effort.
func (t *DailyCheckTask) touchChecked(ctx context.Context, mc *model.MonitoredCase) {
	if err := t.repo.TouchChecked(ctx, mc.ID, time.Now()); err != nil {
		t.logger.Warnw("failed to record check time",
			"case_key", mc.ExternalKey,
			"error", err)
	}
}

// shouldEscalate reports whether any new movement matches a trigger keyword.
// The attachment retrieval is materially more expensive than the update check,
// so it is gated rather than always invoked.
func (t *DailyCheckTask) shouldEscalate(items []registry.UpdateItem) bool {
	if len(t.cfg.TriggerKeywords) == 0 {
		return false
	}
	for _, item := range items {
		content := strings.ToLower(item.Content + " " + item.Type)
		for _, kw := range t.cfg.TriggerKeywords {
			if kw != "" && strings.Contains(content, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

// escalate performs the expensive secondary fetch: submit an attachment search,
// wait for the job, download each attachment within the size bound. An
// oversized attachment is skipped with a warning rather than failing the case.
func (t *DailyCheckTask) escalate(ctx context.Context, mc *model.MonitoredCase) error {
	jobID, err := t.gateway.SubmitSearch(ctx, mc.ExternalKey, true)
	if err != nil {
		return err
	}

	job, err := t.poller.WaitForResult(ctx, jobID)
	if err != nil {
		return err
	}

	for _, att := range job.Attachments {
		data, err := t.gateway.DownloadAttachment(ctx, mc.ExternalKey, att.Instance, att.ID)
		if err != nil {
			if re := registry.AsError(err); re != nil && re.Kind == registry.KindAttachmentTooLarge {
				t.logger.Warnw("skipping oversized attachment",
					"case_key", mc.ExternalKey,
					"attachment_id", att.ID,
					"declared_bytes", att.SizeBytes)
				continue
			}
			return err
		}
		if err := t.repo.PersistAttachment(ctx, mc.ID, att, data); err != nil {
			return fmt.Errorf("failed to persist attachment %s: %w", att.ID, err)
		}
	}
	return nil
}

// chunkCases partitions the population into fixed-size batches.
func chunkCases(cases []*model.MonitoredCase, size int) [][]*model.MonitoredCase {
	var batches [][]*model.MonitoredCase
	for start := 0; start < len(cases); start += size {
		end := start + size
		if end > len(cases) {
			end = len(cases)
		}
		batches = append(batches, cases[start:end])
	}
	return batches
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
