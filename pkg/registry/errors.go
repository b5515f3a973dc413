package registry

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a registry call failure. The kind is decided once at the
// HTTP boundary and carried through; downstream code must switch on Kind instead
// of matching error strings.
type ErrorKind int

const (
	// KindUnknown is a failure that could not be classified.
	KindUnknown ErrorKind = iota
	// KindTimeout is a request that exceeded its deadline.
	KindTimeout
	// KindNetwork is a transport-level failure (DNS, connection reset, ...).
	KindNetwork
	// KindRateLimited is an HTTP 429 from the registry.
	KindRateLimited
	// KindServer is a retryable 5xx-class registry failure.
	KindServer
	// KindClient is a terminal 4xx-class failure (bad request, auth, not found).
	KindClient
	// KindCircuitOpen means the call was rejected without being attempted
	// because the circuit breaker considers the registry unhealthy.
	KindCircuitOpen
	// KindJobFailed means the async registry job itself reported failure.
	KindJobFailed
	// KindJobTimeout means an async job did not reach a terminal state within
	// the polling budget.
	KindJobTimeout
	// KindAttachmentTooLarge means a declared attachment size exceeds the
	// configured download bound.
	KindAttachmentTooLarge
	// KindDecode means the response body could not be parsed.
	KindDecode
)

// String returns a stable name for the kind, used in logs and telemetry.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindCircuitOpen:
		return "circuit_open"
	case KindJobFailed:
		return "job_failed"
	case KindJobTimeout:
		return "job_timeout"
	case KindAttachmentTooLarge:
		return "attachment_too_large"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is the tagged error type for every registry failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int           // HTTP status when the failure came from a response
	RetryAfter time.Duration // server-supplied Retry-After hint, 0 when absent
	Message    string
	Err        error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("registry %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("registry %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("registry %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying at the HTTP level.
// Circuit-open and job-level failures are not: the breaker is a fast-fail gate
// and a failed job will not succeed by re-polling.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork, KindRateLimited, KindServer:
		return true
	case KindClient, KindCircuitOpen, KindJobFailed, KindJobTimeout,
		KindAttachmentTooLarge, KindDecode:
		return false
	default:
		return false
	}
}

// retryableStatus is the fixed allow-list of retryable HTTP codes.
var retryableStatus = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// terminalStatus is the fixed deny-list of codes that are never retried.
var terminalStatus = map[int]bool{
	400: true,
	401: true,
	403: true,
	404: true,
}

// ClassifyStatus maps an HTTP status code to an error kind. Codes outside both
// lists are retryable only when >= 500.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return KindRateLimited
	case terminalStatus[status]:
		return KindClient
	case retryableStatus[status] || status >= 500:
		return KindServer
	default:
		return KindClient
	}
}

// newStatusError builds a tagged error from a non-2xx response.
func newStatusError(status int, retryAfter time.Duration, body []byte) *Error {
	msg := string(body)
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return &Error{
		Kind:       ClassifyStatus(status),
		StatusCode: status,
		RetryAfter: retryAfter,
		Message:    msg,
	}
}

// CircuitOpenError builds the distinct error raised when a breaker sheds a call.
func CircuitOpenError(group string) *Error {
	return &Error{
		Kind:    KindCircuitOpen,
		Message: fmt.Sprintf("circuit open for %s service", group),
	}
}

// AsError extracts a *Error from err, returning nil when err carries none.
func AsError(err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return nil
}

// IsCircuitOpen reports whether err is a circuit-open rejection.
func IsCircuitOpen(err error) bool {
	re := AsError(err)
	return re != nil && re.Kind == KindCircuitOpen
}

// IsRetryable reports whether err should be retried at the HTTP level.
// Unclassified errors are treated as retryable network-class failures.
func IsRetryable(err error) bool {
	if re := AsError(err); re != nil {
		return re.Retryable()
	}
	return err != nil
}
