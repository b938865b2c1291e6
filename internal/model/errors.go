package model

import (
	"fmt"
	"time"
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// InvalidURLError reports a base URL that is not an absolute http(s) URL.
type InvalidURLError struct {
	URL string
	Err error
}

func (e *InvalidURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid base url %q: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("invalid base url %q", e.URL)
}

func (e *InvalidURLError) Unwrap() error {
	return e.Err
}

// TransportError reports a status fetch that failed or returned a non-success
// response. The poller never retries it.
type TransportError struct {
	JobID   string
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("job %s: status fetch failed on attempt %d: %v", e.JobID, e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PollTimeoutError reports that the attempt budget ran out before the job
// reached a terminal status.
type PollTimeoutError struct {
	JobID      string
	Attempts   int
	LastStatus string
}

func (e *PollTimeoutError) Error() string {
	last := e.LastStatus
	if last == "" {
		last = "<none>"
	}
	return fmt.Sprintf("job %s did not finish in time: %d attempts, last status %s", e.JobID, e.Attempts, last)
}
