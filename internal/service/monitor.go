// Package service exposes the monitoring core over the admin HTTP surface.
package service

import (
	"context"
	"time"

	"DocketWatch/internal/biz"
	"DocketWatch/internal/model"
	"DocketWatch/pkg/registry"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewMonitorService)

// manualRunTimeout bounds an operator-triggered sweep.
const manualRunTimeout = 2 * time.Hour

// MonitorService mediates between the admin HTTP server and the core.
type MonitorService struct {
	gateway  *registry.Client
	task     *biz.DailyCheckTask
	enroller *biz.CaseEnroller
	logger   *log.Helper
}

// NewMonitorService creates the admin service.
func NewMonitorService(gateway *registry.Client, task *biz.DailyCheckTask, enroller *biz.CaseEnroller, logger log.Logger) *MonitorService {
	return &MonitorService{
		gateway:  gateway,
		task:     task,
		enroller: enroller,
		logger:   log.NewHelper(logger),
	}
}

// StatusReply is the GET /api/v1/stats response.
type StatusReply struct {
	Running bool                 `json:"running"`
	Gateway registry.ClientStats `json:"gateway"`
}

// Stats returns a snapshot of the gateway and sweep state.
func (s *MonitorService) Stats() StatusReply {
	return StatusReply{
		Running: s.task.Running(),
		Gateway: s.gateway.Stats(),
	}
}

// TriggerRun starts a sweep in the background. It returns ErrRunInProgress
// when one is already in flight; the sweep itself runs detached from the
// request context so an operator disconnect does not cancel it.
func (s *MonitorService) TriggerRun() error {
	if s.task.Running() {
		return biz.ErrRunInProgress
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), manualRunTimeout)
		defer cancel()

		summary, err := s.task.Run(ctx)
		if err != nil {
			s.logger.Errorw("manually triggered run failed", "error", err)
			return
		}
		s.logSummary(summary)
	}()

	return nil
}

// EnrollRequest is the POST /api/v1/cases request body.
type EnrollRequest struct {
	ExternalKey string `json:"external_key"`
}

// EnrollReply describes the newly enrolled case.
type EnrollReply struct {
	ID          int64  `json:"id"`
	ExternalKey string `json:"external_key"`
	TrackingID  string `json:"tracking_id"`
}

// Enroll brings one docket under monitoring.
func (s *MonitorService) Enroll(ctx context.Context, req *EnrollRequest) (*EnrollReply, error) {
	mc, err := s.enroller.Enroll(ctx, req.ExternalKey)
	if err != nil {
		return nil, err
	}
	return &EnrollReply{
		ID:          mc.ID,
		ExternalKey: mc.ExternalKey,
		TrackingID:  mc.TrackingID,
	}, nil
}

func (s *MonitorService) logSummary(summary *model.BatchSummary) {
	s.logger.Infow("manually triggered run completed",
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed)
}
