package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"DocketWatch/internal/conf"
	"DocketWatch/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// WebhookNotifier implements biz.Notifier by POSTing run outcomes as JSON to a
// configured webhook URL. With no URL configured it degrades to logging only.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *log.Helper
}

// NewWebhookNotifier creates the notifier from configuration.
func NewWebhookNotifier(c *conf.Notify, logger log.Logger) *WebhookNotifier {
	timeout := 10 * time.Second
	if c != nil && c.Timeout != nil && c.Timeout.AsDuration() > 0 {
		timeout = c.Timeout.AsDuration()
	}
	url := ""
	if c != nil {
		url = c.WebhookUrl
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: log.NewHelper(logger),
	}
}

// summaryPayload is the wire shape of a run summary notification.
type summaryPayload struct {
	Event       string              `json:"event"`
	Summary     *model.BatchSummary `json:"summary"`
	SuccessRate float64             `json:"success_rate"`
	SentAt      time.Time           `json:"sent_at"`
}

// failurePayload is the wire shape of a run-level failure notification.
type failurePayload struct {
	Event  string    `json:"event"`
	Error  string    `json:"error"`
	SentAt time.Time `json:"sent_at"`
}

// PublishSummary delivers the run summary once per completed run.
func (n *WebhookNotifier) PublishSummary(ctx context.Context, summary *model.BatchSummary) error {
	if n.url == "" {
		n.logger.Infow("run summary (webhook not configured)",
			"total", summary.Total,
			"successful", summary.Successful,
			"failed", summary.Failed,
			"with_new_data", summary.WithNewData,
			"with_escalation", summary.WithEscalation,
			"duration", summary.Duration)
		return nil
	}

	return n.post(ctx, summaryPayload{
		Event:       "daily_check_completed",
		Summary:     summary,
		SuccessRate: summary.SuccessRate(),
		SentAt:      time.Now().UTC(),
	})
}

// PublishFailure delivers a run-level crash, distinct from a summary with
// failed > 0.
func (n *WebhookNotifier) PublishFailure(ctx context.Context, runErr error) error {
	if n.url == "" {
		n.logger.Errorw("run failed (webhook not configured)", "error", runErr)
		return nil
	}

	return n.post(ctx, failurePayload{
		Event:  "daily_check_failed",
		Error:  runErr.Error(),
		SentAt: time.Now().UTC(),
	})
}

// post sends one JSON payload to the webhook URL.
func (n *WebhookNotifier) post(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}

	n.logger.Debugw("webhook delivered", "status", resp.StatusCode)
	return nil
}
