// Package biz contains business logic layer implementations.
// This layer holds the core business rules and domain models.
package biz

import (
	"context"
	"time"

	"DocketWatch/internal/data"
	"DocketWatch/internal/model"
	"DocketWatch/pkg/registry"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewDailyCheckTask,
	NewCaseEnroller,
	// Import data layer providers
	data.NewCaseRepo,
	data.NewTelemetrySink,
	data.NewWebhookNotifier,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(CaseRepo), new(*data.CaseRepo)),
	wire.Bind(new(Notifier), new(*data.WebhookNotifier)),
	wire.Bind(new(registry.TelemetrySink), new(*data.TelemetrySink)),
	// Bind the gateway package to the interfaces the sweep consumes
	wire.Bind(new(Gateway), new(*registry.Client)),
	wire.Bind(new(JobWaiter), new(*registry.Poller)),
)

// CaseRepo is the persistence collaborator for monitored cases. Implemented by
// the data layer.
type CaseRepo interface {
	// ListActive returns the full population of cases under monitoring.
	ListActive(ctx context.Context) ([]*model.MonitoredCase, error)
	// Insert stores a newly enrolled case and fills its ID.
	Insert(ctx context.Context, mc *model.MonitoredCase) error
	// PersistUpdates stores newly fetched movements for a case.
	PersistUpdates(ctx context.Context, caseID int64, items []registry.UpdateItem) error
	// PersistAttachment stores one downloaded attachment.
	PersistAttachment(ctx context.Context, caseID int64, ref registry.AttachmentRef, data []byte) error
	// TouchChecked records when a case was last successfully checked.
	TouchChecked(ctx context.Context, caseID int64, at time.Time) error
}

// Gateway is the slice of the registry client the sweep needs. Satisfied by
// *registry.Client.
type Gateway interface {
	FetchTrackedUpdates(ctx context.Context, trackingID string, since time.Time) (*registry.TrackedUpdates, error)
	SubmitSearch(ctx context.Context, caseKey string, withAttachments bool) (string, error)
	DownloadAttachment(ctx context.Context, caseKey string, instance int, attachmentID string) ([]byte, error)
	CreateTracking(ctx context.Context, caseKey, recurrence, callbackURL string) (string, error)
}

// JobWaiter blocks until an async registry job reaches a terminal state.
// Satisfied by *registry.Poller.
type JobWaiter interface {
	WaitForResult(ctx context.Context, jobID string) (*registry.Job, error)
}

// Notifier publishes run-level outcomes. Implemented by the data layer webhook.
type Notifier interface {
	// PublishSummary is invoked exactly once per completed run.
	PublishSummary(ctx context.Context, summary *model.BatchSummary) error
	// PublishFailure is invoked on a run-level crash, distinct from a summary
	// with failures.
	PublishFailure(ctx context.Context, runErr error) error
}
