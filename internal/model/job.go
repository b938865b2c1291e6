package model

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Well-known job statuses reported by the recorder backend.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JobStatus is one observation of a job from GET /api/jobs/{id}.
type JobStatus struct {
	ID     string          `json:"id,omitempty"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"` // present only once the job has finished
	Error  string          `json:"error,omitempty"`
}

// Normalized returns the status lower-cased and trimmed.
func (s JobStatus) Normalized() string {
	return strings.ToLower(strings.TrimSpace(s.Status))
}

// SessionOptions are passed through to the recorder unchanged.
type SessionOptions struct {
	Headless bool `json:"headless"`
}

// SessionRequest is the body of POST /api/recorder/sessions.
type SessionRequest struct {
	URL      string         `json:"url"`
	FlowName string         `json:"flowName"`
	Options  SessionOptions `json:"options"`
}

// Outcome classifies how a smoke run ended.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeFailed         Outcome = "failed"
	OutcomeTimedOut       Outcome = "timed_out"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeEnqueueError   Outcome = "enqueue_error"
	OutcomeInvalidResult  Outcome = "invalid_result"
	OutcomeCancelled      Outcome = "cancelled"
)

// Run is the record of one enqueue-and-wait smoke check.
type Run struct {
	ID        string
	JobID     string // empty when enqueue failed
	FlowName  string
	TargetURL string
	Outcome   Outcome
	Status    string // last job status observed
	SessionID string // from the job result, when the recorder reports one
	Attempts  int
	StartedAt time.Time
	Duration  time.Duration
	Error     string
}

// StatusFetcher fetches the current status of a job.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) (JobStatus, error)
}

// SessionEnqueuer starts a recorder session and returns the new job ID.
type SessionEnqueuer interface {
	EnqueueSession(ctx context.Context, req SessionRequest) (string, error)
}

// RunStore persists smoke run history.
type RunStore interface {
	SaveRun(run Run) error
	RecentRuns(limit int) ([]Run, error)
	Cleanup(olderThan time.Duration) error
}

// Notifier reports finished smoke runs.
type Notifier interface {
	Notify(runs []Run) error
}

// RunFilter decides whether a run should be reported.
type RunFilter interface {
	Match(run Run) bool
}
