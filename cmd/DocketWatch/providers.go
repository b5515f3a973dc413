package main

import (
	"DocketWatch/internal/biz"
	"DocketWatch/internal/conf"
	"DocketWatch/pkg/registry"

	"github.com/go-kratos/kratos/v2/log"
)

// newRegistryClient builds the gateway from configuration. The breaker
// threshold is configured in percent and converted to a fraction here.
func newRegistryClient(c *conf.Registry, sink registry.TelemetrySink, logger log.Logger) (*registry.Client, func(), error) {
	cfg := registry.ClientConfig{
		RequestsURL:        c.RequestsUrl,
		TrackingURL:        c.TrackingUrl,
		APIKey:             c.ApiKey,
		ProxyURL:           c.ProxyUrl,
		RequestsPerMinute:  int(c.RateLimitRpm),
		MaxAttachmentBytes: c.MaxAttachmentBytes,
		Timeout:            c.Timeout.AsDuration(),
		Retry: registry.RetryConfig{
			MaxAttempts: int(c.MaxRetries),
		},
	}
	if c.Breaker != nil {
		cfg.Breaker = registry.BreakerConfig{
			ErrorThreshold: c.Breaker.Threshold / 100.0,
			Window:         c.Breaker.Window.AsDuration(),
			Cooldown:       c.Breaker.Cooldown.AsDuration(),
			MinRequests:    int(c.Breaker.MinRequests),
		}
	}
	return registry.NewClient(cfg, sink, logger)
}

// newPoller builds the polling orchestrator over the gateway.
func newPoller(c *conf.Registry, client *registry.Client, logger log.Logger) *registry.Poller {
	cfg := registry.PollerConfig{}
	if c.Poll != nil {
		cfg.Interval = c.Poll.Interval.AsDuration()
		cfg.Timeout = c.Poll.Timeout.AsDuration()
		cfg.MaxAttempts = int(c.Poll.MaxAttempts)
	}
	return registry.NewPoller(client, cfg, logger)
}

// newMonitorConfig maps the monitor configuration onto the sweep settings.
func newMonitorConfig(c *conf.Monitor) biz.MonitorConfig {
	return biz.MonitorConfig{
		BatchSize:       int(c.BatchSize),
		Concurrency:     int(c.Concurrency),
		InterBatchDelay: c.InterBatchDelay.AsDuration(),
		Lookback:        c.Lookback.AsDuration(),
		CaseAttempts:    int(c.CaseAttempts),
		CaseRetryDelay:  c.CaseRetryDelay.AsDuration(),
		TriggerKeywords: c.TriggerKeywords,
	}
}
