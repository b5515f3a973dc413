package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/proxy"
)

const (
	// groupRequests is the breaker group for the synchronous requests service.
	groupRequests = "requests"
	// groupTracking is the breaker group for the async tracking service.
	groupTracking = "tracking"

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// jobMemoSize and jobMemoTTL bound the completed-job memo. Re-polling a
	// finished job after an at-least-once re-submission is answered from the
	// memo instead of spending registry quota.
	jobMemoSize = 256
	jobMemoTTL  = 10 * time.Minute

	// telemetryBuffer bounds the fire-and-forget side channel.
	telemetryBuffer = 1000
)

// ClientConfig configures the gateway.
type ClientConfig struct {
	// RequestsURL is the base URL of the synchronous requests service.
	RequestsURL string
	// TrackingURL is the base URL of the async tracking service.
	TrackingURL string
	// APIKey is the registry credential, sent as a bearer token.
	APIKey string
	// ProxyURL optionally routes outbound calls through a SOCKS5 or HTTP proxy.
	ProxyURL string
	// RequestsPerMinute is the global admission ceiling (default 180).
	RequestsPerMinute int
	// MaxAttachmentBytes bounds attachment downloads (default 10 MiB).
	MaxAttachmentBytes int64
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	Retry   RetryConfig
	Breaker BreakerConfig
}

// ClientStats is an observability snapshot of the gateway.
type ClientStats struct {
	TotalCalls    int64   `json:"total_calls"`
	Successes     int64   `json:"successes"`
	Failures      int64   `json:"failures"`
	RateLimitHits int64   `json:"rate_limit_hits"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`

	RequestsCircuit BreakerStats `json:"requests_circuit"`
	TrackingCircuit BreakerStats `json:"tracking_circuit"`
	TokensAvailable float64      `json:"tokens_available"`
}

// Client is the registry gateway. Every public operation acquires a limiter
// token, routes through the service group's circuit breaker and retries
// retryable failures, in that order. Construct one Client at process start and
// pass it by reference; it is safe for concurrent use.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *TokenBucket
	retry      *RetryPolicy
	breakers   map[string]*CircuitBreaker
	jobMemo    *expirable.LRU[string, *Job]
	logger     *log.Helper

	stats     statsCounter
	telemCh   chan CallRecord
	telemQuit chan struct{}
}

// NewClient builds a gateway from cfg. The telemetry sink may be nil, in which
// case records are dropped. The returned cleanup stops the telemetry writer.
func NewClient(cfg ClientConfig, sink TelemetrySink, logger log.Logger) (*Client, func(), error) {
	if cfg.RequestsURL == "" || cfg.TrackingURL == "" {
		return nil, nil, fmt.Errorf("registry base URLs are required")
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 180
	}
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = 10 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient, err := newHTTPClient(cfg.ProxyURL, cfg.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	c := &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    NewTokenBucket(cfg.RequestsPerMinute),
		retry:      NewRetryPolicy(cfg.Retry),
		breakers: map[string]*CircuitBreaker{
			groupRequests: NewCircuitBreaker(groupRequests, cfg.Breaker),
			groupTracking: NewCircuitBreaker(groupTracking, cfg.Breaker),
		},
		jobMemo:   expirable.NewLRU[string, *Job](jobMemoSize, nil, jobMemoTTL),
		logger:    log.NewHelper(logger),
		telemCh:   make(chan CallRecord, telemetryBuffer),
		telemQuit: make(chan struct{}),
	}
	c.retry.SetRateLimitHook(c.stats.rateLimitHit)

	done := make(chan struct{})
	go c.telemetryLoop(sink, done)
	// The record channel is never closed: a straggler call racing shutdown
	// (a detached manual sweep, for instance) must still be able to dispatch
	// into the buffer instead of panicking. The loop is stopped via telemQuit
	// and drains what is buffered before exiting.
	cleanup := func() {
		close(c.telemQuit)
		<-done
	}
	return c, cleanup, nil
}

// SubmitSearch submits an async search job for caseKey and returns the
// registry-issued job ID. The result is retrieved later via PollJob.
func (c *Client) SubmitSearch(ctx context.Context, caseKey string, withAttachments bool) (string, error) {
	if caseKey == "" {
		return "", fmt.Errorf("case key cannot be empty")
	}

	body := searchRequest{
		SearchType: "case",
		SearchKey:  caseKey,
		Options:    searchOptions{WithAttachments: withAttachments},
	}

	var resp submitResponse
	err := c.call(ctx, groupRequests, "submit_search", caseKey, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, c.cfg.RequestsURL+"/api/v1/requests", body, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", &Error{Kind: KindDecode, Message: "submit response missing jobId"}
	}
	return resp.JobID, nil
}

// PollJob fetches the current state of one job. This is a single poll, not the
// loop; use Poller.WaitForResult for the bounded synchronous wrapper.
func (c *Client) PollJob(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID cannot be empty")
	}
	if job, ok := c.jobMemo.Get(jobID); ok {
		// Hand out a copy: the memo entry is shared across callers.
		return job.clone(), nil
	}

	var job Job
	err := c.call(ctx, groupRequests, "poll_job", jobID, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet,
			c.cfg.RequestsURL+"/api/v1/requests/"+url.PathEscape(jobID), nil, &job)
	})
	if err != nil {
		return nil, err
	}
	if job.JobID == "" {
		job.JobID = jobID
	}
	if job.Status == JobCompleted {
		c.jobMemo.Add(jobID, job.clone())
	}
	return &job, nil
}

// CreateTracking registers a push-style subscription for caseKey at the
// registry and returns the tracking ID used by FetchTrackedUpdates.
func (c *Client) CreateTracking(ctx context.Context, caseKey, recurrence, callbackURL string) (string, error) {
	if caseKey == "" {
		return "", fmt.Errorf("case key cannot be empty")
	}

	body := trackingRequest{
		CaseKey:     caseKey,
		Recurrence:  recurrence,
		CallbackURL: callbackURL,
	}

	var resp trackingResponse
	err := c.call(ctx, groupTracking, "create_tracking", caseKey, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, c.cfg.TrackingURL+"/api/v1/trackings", body, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.TrackingID == "" {
		return "", &Error{Kind: KindDecode, Message: "tracking response missing trackingId"}
	}
	return resp.TrackingID, nil
}

// FetchTrackedUpdates retrieves movements recorded for a tracked case since the
// given timestamp. This is the cheap check of the two-tier design.
func (c *Client) FetchTrackedUpdates(ctx context.Context, trackingID string, since time.Time) (*TrackedUpdates, error) {
	if trackingID == "" {
		return nil, fmt.Errorf("tracking ID cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/api/v1/trackings/%s/updates?since=%s",
		c.cfg.TrackingURL, url.PathEscape(trackingID), url.QueryEscape(since.UTC().Format(time.RFC3339)))

	var updates TrackedUpdates
	err := c.call(ctx, groupTracking, "fetch_updates", trackingID, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, endpoint, nil, &updates)
	})
	if err != nil {
		return nil, err
	}
	return &updates, nil
}

// DownloadAttachment fetches one attachment by its registry-issued ID. The
// download is the expensive escalation operation and is bounded by
// MaxAttachmentBytes; a declared size over the bound is rejected with a
// distinct error before any bytes are read.
func (c *Client) DownloadAttachment(ctx context.Context, caseKey string, instance int, attachmentID string) ([]byte, error) {
	if attachmentID == "" {
		return nil, fmt.Errorf("attachment ID cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/api/v1/attachments/%s?searchKey=%s&instance=%d",
		c.cfg.RequestsURL, url.PathEscape(attachmentID), url.QueryEscape(caseKey), instance)

	var data []byte
	err := c.call(ctx, groupRequests, "download_attachment", caseKey, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return classifyTransport(err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return newStatusError(resp.StatusCode, parseRetryAfter(resp.Header), body)
		}

		if resp.ContentLength > c.cfg.MaxAttachmentBytes {
			return &Error{
				Kind:    KindAttachmentTooLarge,
				Message: fmt.Sprintf("attachment %s declares %d bytes, limit is %d", attachmentID, resp.ContentLength, c.cfg.MaxAttachmentBytes),
			}
		}

		// LimitReader with one extra byte detects bodies that lie about
		// (or omit) their Content-Length.
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxAttachmentBytes+1))
		if err != nil {
			return classifyTransport(err)
		}
		if int64(len(body)) > c.cfg.MaxAttachmentBytes {
			return &Error{
				Kind:    KindAttachmentTooLarge,
				Message: fmt.Sprintf("attachment %s exceeds %d byte limit", attachmentID, c.cfg.MaxAttachmentBytes),
			}
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Stats returns a snapshot of gateway counters and circuit states.
func (c *Client) Stats() ClientStats {
	s := c.stats.snapshot()
	s.RequestsCircuit = c.breakers[groupRequests].Stats()
	s.TrackingCircuit = c.breakers[groupTracking].Stats()
	s.TokensAvailable = c.limiter.Available()
	return s
}

// call composes admission control around one logical operation:
// limiter -> breaker -> retry -> HTTP. Every terminal outcome updates the
// stats and is dispatched to telemetry fire-and-forget.
func (c *Client) call(ctx context.Context, group, op, caseKey string, fn func(context.Context) error) error {
	start := time.Now()

	if err := c.limiter.WaitForTokens(ctx, 1); err != nil {
		c.finish(group, op, caseKey, start, err)
		return err
	}

	err := c.breakers[group].Execute(ctx, func(ctx context.Context) error {
		return c.retry.Run(ctx, fn)
	})
	c.finish(group, op, caseKey, start, err)
	return err
}

// finish records the terminal outcome of one gateway call.
func (c *Client) finish(group, op, caseKey string, start time.Time, err error) {
	elapsed := time.Since(start)
	c.stats.observe(elapsed, err == nil)

	rec := CallRecord{
		Group:     group,
		Operation: op,
		CaseKey:   caseKey,
		Success:   err == nil,
		Duration:  elapsed,
		At:        start,
	}
	if re := AsError(err); re != nil {
		rec.ErrorKind = re.Kind.String()
	} else if err != nil {
		rec.ErrorKind = KindUnknown.String()
	}

	// Non-blocking dispatch: a full channel drops the record rather than
	// stalling the critical path.
	select {
	case c.telemCh <- rec:
	default:
		c.logger.Warnw("telemetry channel full, dropping record",
			"operation", op,
			"case_key", caseKey)
	}
}

// telemetryLoop forwards records to the sink off the critical path. On quit it
// flushes the buffered backlog before exiting; records dispatched after that
// stay in the buffer and are dropped with the process.
func (c *Client) telemetryLoop(sink TelemetrySink, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case rec := <-c.telemCh:
			if sink != nil {
				sink.Record(rec)
			}
		case <-c.telemQuit:
			for {
				select {
				case rec := <-c.telemCh:
					if sink != nil {
						sink.Record(rec)
					}
				default:
					return
				}
			}
		}
	}
}

// doJSON performs one HTTP request with a JSON body and decodes the response.
// The response body is read exactly once; a decode failure degrades to a
// decode-kind error with the raw body length logged, since a second read of a
// consumed stream would silently return nothing.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return classifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(resp.StatusCode, parseRetryAfter(resp.Header), body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			c.logger.Warnw("failed to decode registry response",
				"endpoint", endpoint,
				"body_len", len(body),
				"error", err)
			return &Error{
				Kind:    KindDecode,
				Message: fmt.Sprintf("unparseable response body (%d bytes)", len(body)),
				Err:     err,
			}
		}
	}
	return nil
}

// setHeaders applies the shared headers for registry calls.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
}

// classifyTransport tags a transport-level failure as timeout or network.
func classifyTransport(err error) *Error {
	kind := KindNetwork
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = KindTimeout
	} else if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Message: "request failed", Err: err}
}

// parseRetryAfter reads a Retry-After header, honoring the value verbatim.
// Both delta-seconds and HTTP-date forms are accepted.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// newHTTPClient builds the outbound HTTP client, optionally routed through a
// SOCKS5 or HTTP proxy. Registry access is often gated behind one.
func newHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}

		switch parsed.Scheme {
		case "socks5", "socks5h":
			var auth *proxy.Auth
			if parsed.User != nil {
				password, _ := parsed.User.Password()
				auth = &proxy.Auth{User: parsed.User.Username(), Password: password}
			}
			host := parsed.Host
			if !strings.Contains(host, ":") {
				host += ":1080"
			}
			dialer, err := proxy.SOCKS5("tcp", host, auth, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
			}
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}

		case "http", "https":
			transport.Proxy = func(req *http.Request) (*url.URL, error) {
				return parsed, nil
			}

		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s (supported: socks5, http, https)", parsed.Scheme)
		}
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
