// Package model holds the domain types shared across layers.
package model

import "time"

// MonitoredCase is one docket under daily monitoring. Populated by the data
// layer; the batch sweep treats it as read-only apart from LastCheckedAt.
type MonitoredCase struct {
	ID            int64
	ExternalKey   string // case number at the registry
	TrackingID    string // registry-issued tracking subscription ID
	Active        bool
	LastCheckedAt *time.Time
}

// CheckResult is the outcome of one case check within a sweep. Exactly one is
// produced per case fed into the run, success or failure, and it is immutable
// after creation.
type CheckResult struct {
	CaseID             int64
	ExternalKey        string
	Success            bool
	HasNewData         bool
	DataCount          int
	EscalationRequired bool
	Err                error
}

// MaxSummaryErrors caps the per-case error list carried by a summary.
const MaxSummaryErrors = 50

// BatchSummary aggregates one full sweep.
type BatchSummary struct {
	Total          int           `json:"total"`
	Successful     int           `json:"successful"`
	Failed         int           `json:"failed"`
	WithNewData    int           `json:"with_new_data"`
	WithEscalation int           `json:"with_escalation"`
	Errors         []CaseError   `json:"errors"`
	Duration       time.Duration `json:"duration"`
	StartedAt      time.Time     `json:"started_at"`
}

// CaseError is one failed case entry in a summary.
type CaseError struct {
	ExternalKey string `json:"external_key"`
	Message     string `json:"message"`
}

// Add folds one check result into the summary.
func (s *BatchSummary) Add(r CheckResult) {
	s.Total++
	if r.Success {
		s.Successful++
	} else {
		s.Failed++
		if len(s.Errors) < MaxSummaryErrors {
			msg := "unknown error"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			s.Errors = append(s.Errors, CaseError{ExternalKey: r.ExternalKey, Message: msg})
		}
	}
	if r.HasNewData {
		s.WithNewData++
	}
	if r.EscalationRequired {
		s.WithEscalation++
	}
}

// SuccessRate returns successful/total in 0..1, or 1 for an empty run.
func (s *BatchSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Successful) / float64(s.Total)
}
