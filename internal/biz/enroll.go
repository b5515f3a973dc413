package biz

import (
	"context"
	"fmt"

	"DocketWatch/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// trackingRecurrence is the subscription cadence requested at the registry.
// The daily sweep is the consumer, so daily it is.
const trackingRecurrence = "daily"

// CaseEnroller brings a new docket under monitoring: it registers a tracking
// subscription at the registry first, then persists the case, so a stored case
// always carries a usable tracking ID.
type CaseEnroller struct {
	repo    CaseRepo
	gateway Gateway
	logger  *log.Helper
}

// NewCaseEnroller creates the enrollment use case.
func NewCaseEnroller(repo CaseRepo, gateway Gateway, logger log.Logger) *CaseEnroller {
	return &CaseEnroller{
		repo:    repo,
		gateway: gateway,
		logger:  log.NewHelper(logger),
	}
}

// Enroll registers externalKey for monitoring and returns the stored case.
func (e *CaseEnroller) Enroll(ctx context.Context, externalKey string) (*model.MonitoredCase, error) {
	if externalKey == "" {
		return nil, fmt.Errorf("external key cannot be empty")
	}

	trackingID, err := e.gateway.CreateTracking(ctx, externalKey, trackingRecurrence, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create tracking for %s: %w", externalKey, err)
	}

	mc := &model.MonitoredCase{
		ExternalKey: externalKey,
		TrackingID:  trackingID,
		Active:      true,
	}
	if err := e.repo.Insert(ctx, mc); err != nil {
		// The registry-side subscription survives; re-enrolling the same key
		// later just creates another one.
		return nil, fmt.Errorf("failed to store case %s: %w", externalKey, err)
	}

	e.logger.Infow("case enrolled",
		"case_key", externalKey,
		"case_id", mc.ID,
		"tracking_id", trackingID)
	return mc, nil
}
