// Package jobwait polls a job's status until the job reaches a terminal state
// or the attempt budget runs out.
package jobwait

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/amishk599/recsmoke/internal/model"
)

const (
	DefaultMaxAttempts = 20
	DefaultInterval    = time.Second
)

// DefaultTerminalStates are the statuses after which a recorder job does not change.
var DefaultTerminalStates = []string{model.StatusCompleted, model.StatusFailed}

// Options bound a single wait. Zero values fall back to the defaults.
type Options struct {
	MaxAttempts    int
	Interval       time.Duration
	TerminalStates []string
}

// FetchFunc adapts a plain function into a model.StatusFetcher.
type FetchFunc func(ctx context.Context, jobID string) (model.JobStatus, error)

func (f FetchFunc) FetchStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	return f(ctx, jobID)
}

// AttemptHook is called after every status fetch, successful or not.
type AttemptHook func(jobID string, attempt int, status string, err error)

// Poller waits for jobs to finish. A Poller holds only immutable settings, so
// one instance can serve any number of concurrent waits.
type Poller struct {
	maxAttempts int
	interval    time.Duration
	terminal    map[string]struct{}
	sleep       func(ctx context.Context, d time.Duration) error
	hook        AttemptHook
	logger      *slog.Logger
}

// NewPoller creates a poller with the given options.
func NewPoller(opts Options, logger *slog.Logger) *Poller {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	interval := opts.Interval
	if interval < 0 {
		interval = 0
	} else if interval == 0 {
		interval = DefaultInterval
	}
	states := opts.TerminalStates
	if len(states) == 0 {
		states = DefaultTerminalStates
	}
	terminal := make(map[string]struct{}, len(states))
	for _, s := range states {
		terminal[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	return &Poller{
		maxAttempts: maxAttempts,
		interval:    interval,
		terminal:    terminal,
		sleep:       sleepContext,
		logger:      logger,
	}
}

// SetAttemptHook registers fn to observe every attempt. Must be called before
// the poller is shared.
func (p *Poller) SetAttemptHook(fn AttemptHook) {
	p.hook = fn
}

// MaxAttempts returns the attempt budget per wait.
func (p *Poller) MaxAttempts() int { return p.maxAttempts }

// IsTerminal reports whether status is one of the terminal states (case-insensitive).
func (p *Poller) IsTerminal(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return false
	}
	_, ok := p.terminal[s]
	return ok
}

// WaitForTerminalStatus fetches the job's status until it is terminal and
// returns that response. A terminal status is not necessarily a successful
// one; callers inspect Status themselves.
//
// Fetch failures are returned immediately as *model.TransportError. When the
// attempt budget is used up the error is *model.PollTimeoutError. Cancelling
// ctx stops the wait before the next fetch or during a delay.
func (p *Poller) WaitForTerminalStatus(ctx context.Context, jobID string, fetch model.StatusFetcher) (model.JobStatus, error) {
	var last model.JobStatus

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, fmt.Errorf("waiting for job %s: cancelled after %d attempts: %w", jobID, attempt-1, err)
		}

		status, err := fetch.FetchStatus(ctx, jobID)
		if p.hook != nil {
			p.hook(jobID, attempt, status.Status, err)
		}
		if err != nil {
			return last, &model.TransportError{JobID: jobID, Attempt: attempt, Err: err}
		}
		last = status

		p.logger.Debug("polled job",
			"job_id", jobID,
			"attempt", attempt,
			"max_attempts", p.maxAttempts,
			"status", status.Status,
		)

		if p.IsTerminal(status.Status) {
			return status, nil
		}

		if attempt < p.maxAttempts {
			if err := p.sleep(ctx, p.interval); err != nil {
				return last, fmt.Errorf("waiting for job %s: cancelled after %d attempts: %w", jobID, attempt, err)
			}
		}
	}

	return last, &model.PollTimeoutError{JobID: jobID, Attempts: p.maxAttempts, LastStatus: last.Status}
}

// Result is the outcome of one wait started by WaitAll.
type Result struct {
	JobID  string
	Status model.JobStatus
	Err    error
}

// WaitAll waits for every job concurrently, one goroutine per job, and
// returns once all of them are done. Results keep the order of jobIDs.
func (p *Poller) WaitAll(ctx context.Context, jobIDs []string, fetch model.StatusFetcher) []Result {
	results := make([]Result, len(jobIDs))

	var wg sync.WaitGroup
	for i, id := range jobIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := p.WaitForTerminalStatus(ctx, id, fetch)
			results[i] = Result{JobID: id, Status: status, Err: err}
		}()
	}
	wg.Wait()

	return results
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
