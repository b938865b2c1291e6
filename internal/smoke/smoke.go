// Package smoke runs the end-to-end recorder check: enqueue a session, wait
// for the job to finish and verify its result.
package smoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/recsmoke/internal/jobwait"
	"github.com/amishk599/recsmoke/internal/model"
)

// Settings describe the session a Runner enqueues.
type Settings struct {
	Name             string // identifies the runner in logs; defaults to FlowName
	TargetURL        string
	FlowName         string
	Headless         bool
	RequireSessionID bool
}

// RunObserver receives every finished run, e.g. for metrics.
type RunObserver interface {
	ObserveRun(run model.Run)
}

// Runner owns the full pipeline for one smoke check:
// enqueue → wait → verify → record → notify.
type Runner struct {
	Name     string
	settings Settings
	enqueuer model.SessionEnqueuer
	fetcher  model.StatusFetcher
	poller   *jobwait.Poller
	store    model.RunStore
	notifier model.Notifier
	filter   model.RunFilter
	observer RunObserver
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewRunner creates a runner wired with all its dependencies.
func NewRunner(
	settings Settings,
	enqueuer model.SessionEnqueuer,
	fetcher model.StatusFetcher,
	poller *jobwait.Poller,
	store model.RunStore,
	notifier model.Notifier,
	filter model.RunFilter,
	logger *slog.Logger,
) *Runner {
	name := settings.Name
	if name == "" {
		name = settings.FlowName
	}
	return &Runner{
		Name:     name,
		settings: settings,
		enqueuer: enqueuer,
		fetcher:  fetcher,
		poller:   poller,
		store:    store,
		notifier: notifier,
		filter:   filter,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// SetObserver registers an observer for finished runs.
func (r *Runner) SetObserver(o RunObserver) {
	r.observer = o
}

// Run performs one smoke check. The returned run is always populated; the
// error is nil only when the outcome is completed.
func (r *Runner) Run(ctx context.Context) (model.Run, error) {
	start := r.now()
	run := model.Run{
		ID:        r.newID(),
		FlowName:  r.settings.FlowName,
		TargetURL: r.settings.TargetURL,
		StartedAt: start,
	}

	runErr := r.execute(ctx, &run)
	run.Duration = r.now().Sub(start)
	if runErr != nil {
		run.Error = runErr.Error()
	}

	r.record(run)

	r.logger.Info("smoke run finished",
		"runner", r.Name,
		"run_id", run.ID,
		"job_id", run.JobID,
		"outcome", string(run.Outcome),
		"attempts", run.Attempts,
		"duration", run.Duration.String(),
	)

	return run, runErr
}

func (r *Runner) execute(ctx context.Context, run *model.Run) error {
	jobID, err := r.enqueuer.EnqueueSession(ctx, model.SessionRequest{
		URL:      r.settings.TargetURL,
		FlowName: r.settings.FlowName,
		Options:  model.SessionOptions{Headless: r.settings.Headless},
	})
	if err != nil {
		run.Outcome = classifyCancel(ctx, model.OutcomeEnqueueError)
		return fmt.Errorf("smoke %s: %w", r.Name, err)
	}
	run.JobID = jobID
	r.logger.Debug("enqueued recorder session", "runner", r.Name, "job_id", jobID)

	counter := &countingFetcher{inner: r.fetcher}
	status, err := r.poller.WaitForTerminalStatus(ctx, jobID, counter)
	run.Attempts = int(counter.calls.Load())
	run.Status = status.Status
	if err != nil {
		run.Outcome = classifyWaitError(ctx, err)
		return fmt.Errorf("smoke %s: %w", r.Name, err)
	}

	if status.Normalized() != model.StatusCompleted {
		run.Outcome = model.OutcomeFailed
		if status.Error != "" {
			return fmt.Errorf("smoke %s: job %s finished with status %s: %s", r.Name, jobID, status.Status, status.Error)
		}
		return fmt.Errorf("smoke %s: job %s finished with status %s", r.Name, jobID, status.Status)
	}

	sessionID, err := sessionIDFromResult(status.Result)
	run.SessionID = sessionID
	if r.settings.RequireSessionID && err != nil {
		run.Outcome = model.OutcomeInvalidResult
		return fmt.Errorf("smoke %s: job %s: %w", r.Name, jobID, err)
	}

	run.Outcome = model.OutcomeCompleted
	return nil
}

// record saves and reports a run. Store and notifier failures are only logged.
func (r *Runner) record(run model.Run) {
	if r.observer != nil {
		r.observer.ObserveRun(run)
	}

	if err := r.store.SaveRun(run); err != nil {
		r.logger.Error("saving run failed", "runner", r.Name, "run_id", run.ID, "error", err)
	}

	if r.filter.Match(run) {
		if err := r.notifier.Notify([]model.Run{run}); err != nil {
			r.logger.Error("notifying run failed", "runner", r.Name, "run_id", run.ID, "error", err)
		}
	}
}

func classifyWaitError(ctx context.Context, err error) model.Outcome {
	var timeoutErr *model.PollTimeoutError
	if errors.As(err, &timeoutErr) {
		return model.OutcomeTimedOut
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return model.OutcomeCancelled
	}
	return model.OutcomeTransportError
}

func classifyCancel(ctx context.Context, fallback model.Outcome) model.Outcome {
	if ctx.Err() != nil {
		return model.OutcomeCancelled
	}
	return fallback
}

// sessionIDFromResult extracts result.sessionId. Any non-null value counts;
// numbers and strings are both rendered as text.
func sessionIDFromResult(result json.RawMessage) (string, error) {
	if len(result) == 0 || string(result) == "null" {
		return "", errors.New("result is missing")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(result, &fields); err != nil {
		return "", fmt.Errorf("result is not an object: %w", err)
	}
	raw, ok := fields["sessionId"]
	if !ok || string(raw) == "null" {
		return "", errors.New("result has no sessionId")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return string(raw), nil
}

// countingFetcher counts status fetches for a single run.
type countingFetcher struct {
	inner model.StatusFetcher
	calls atomic.Int32
}

func (c *countingFetcher) FetchStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	c.calls.Add(1)
	return c.inner.FetchStatus(ctx, jobID)
}
