// Package registry implements the outbound gateway to the judicial-records
// registry: token-bucket admission control, per-service circuit breaking,
// retry with category-adjusted backoff, and a polling orchestrator that turns
// the registry's async request/poll protocol into bounded synchronous calls.
package registry

import "time"

// JobStatus is the lifecycle state of an async registry job.
type JobStatus string

const (
	// JobPending means the job is queued at the registry.
	JobPending JobStatus = "pending"
	// JobProcessing means the registry is working on the job.
	JobProcessing JobStatus = "processing"
	// JobCompleted is terminal success.
	JobCompleted JobStatus = "completed"
	// JobFailed is terminal failure of the job itself, not of the poll call.
	JobFailed JobStatus = "failed"
)

// Terminal reports whether the status will never change again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// UpdateItem is one record movement returned by the registry.
type UpdateItem struct {
	Date    time.Time `json:"date"`
	Type    string    `json:"type"`
	Content string    `json:"content"`
}

// AttachmentRef describes a downloadable attachment. Downloads go through a
// separate per-attachment endpoint keyed by the registry-issued ID, not by the
// case key.
type AttachmentRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	Instance  int    `json:"instance"`
}

// Job is one async unit of work at the registry.
type Job struct {
	JobID       string          `json:"jobId"`
	CaseKey     string          `json:"searchKey,omitempty"`
	Status      JobStatus       `json:"status"`
	Data        []UpdateItem    `json:"data,omitempty"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	ErrMessage  string          `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submittedAt,omitempty"`
}

// clone returns a deep-enough copy of the job: slices are duplicated so a
// caller mutating the result cannot corrupt a memoized original.
func (j *Job) clone() *Job {
	cp := *j
	cp.Data = append([]UpdateItem(nil), j.Data...)
	cp.Attachments = append([]AttachmentRef(nil), j.Attachments...)
	return &cp
}

// TrackedUpdates is the result of a cheap tracked-case update check.
type TrackedUpdates struct {
	HasNewData bool         `json:"hasNewData"`
	Items      []UpdateItem `json:"items"`
}

// searchOptions is the options block of a search submission.
type searchOptions struct {
	WithAttachments bool `json:"withAttachments"`
	PageSize        int  `json:"pageSize,omitempty"`
	Page            int  `json:"page,omitempty"`
}

// searchRequest is the wire shape of a search submission.
type searchRequest struct {
	SearchType string        `json:"searchType"`
	SearchKey  string        `json:"searchKey"`
	Options    searchOptions `json:"options"`
}

// trackingRequest is the wire shape of a tracking creation.
type trackingRequest struct {
	CaseKey     string            `json:"entityKey"`
	Recurrence  string            `json:"recurrence"`
	CallbackURL string            `json:"callbackUrl,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}

// trackingResponse carries the registry-issued tracking ID.
type trackingResponse struct {
	TrackingID string `json:"trackingId"`
}

// submitResponse carries the registry-issued job ID.
type submitResponse struct {
	JobID string `json:"jobId"`
}

// CallRecord is the telemetry payload emitted once per terminal call outcome.
type CallRecord struct {
	Group     string
	Operation string
	CaseKey   string
	Success   bool
	ErrorKind string
	Duration  time.Duration
	At        time.Time
}

// TelemetrySink receives call records on a best-effort side channel. A sink
// failure must never fail the call that produced the record.
type TelemetrySink interface {
	Record(rec CallRecord)
}
