package smoke

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/recsmoke/internal/jobwait"
	"github.com/amishk599/recsmoke/internal/model"
)

// --- Fakes ---

type fakeEnqueuer struct {
	jobID string
	err   error
	got   model.SessionRequest
}

func (f *fakeEnqueuer) EnqueueSession(_ context.Context, req model.SessionRequest) (string, error) {
	f.got = req
	return f.jobID, f.err
}

type scriptedFetcher struct {
	responses []model.JobStatus
	errAt     int // 1-based call that fails; 0 = never
	calls     int
}

func (f *scriptedFetcher) FetchStatus(_ context.Context, jobID string) (model.JobStatus, error) {
	f.calls++
	if f.errAt != 0 && f.calls == f.errAt {
		return model.JobStatus{}, &model.HTTPError{StatusCode: 500, Err: errors.New("boom")}
	}
	i := f.calls - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

type memoryStore struct {
	runs []model.Run
	err  error
}

func (s *memoryStore) SaveRun(run model.Run) error {
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *memoryStore) RecentRuns(limit int) ([]model.Run, error) { return s.runs, nil }

func (s *memoryStore) Cleanup(_ time.Duration) error { return nil }

type recordingNotifier struct {
	notified []model.Run
}

func (n *recordingNotifier) Notify(runs []model.Run) error {
	n.notified = append(n.notified, runs...)
	return nil
}

type acceptAll struct{}

func (acceptAll) Match(model.Run) bool { return true }

type onlyFailures struct{}

func (onlyFailures) Match(r model.Run) bool { return r.Outcome != model.OutcomeCompleted }

type observerFunc func(model.Run)

func (f observerFunc) ObserveRun(r model.Run) { f(r) }

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultSettings() Settings {
	return Settings{
		TargetURL:        "https://example.com",
		FlowName:         "smoke-session",
		Headless:         true,
		RequireSessionID: true,
	}
}

type harness struct {
	runner   *Runner
	enqueuer *fakeEnqueuer
	fetcher  *scriptedFetcher
	store    *memoryStore
	notifier *recordingNotifier
}

func newHarness(settings Settings, filter model.RunFilter, responses ...model.JobStatus) *harness {
	h := &harness{
		enqueuer: &fakeEnqueuer{jobID: "job-1"},
		fetcher:  &scriptedFetcher{responses: responses},
		store:    &memoryStore{},
		notifier: &recordingNotifier{},
	}
	poller := jobwait.NewPoller(jobwait.Options{MaxAttempts: 5, Interval: time.Millisecond}, discardLogger())
	h.runner = NewRunner(settings, h.enqueuer, h.fetcher, poller, h.store, h.notifier, filter, discardLogger())
	h.runner.newID = func() string { return "run-fixed" }
	return h
}

func completed(result string) model.JobStatus {
	return model.JobStatus{Status: "completed", Result: []byte(result)}
}

// --- Tests ---

func TestRun_Completed(t *testing.T) {
	h := newHarness(defaultSettings(), acceptAll{},
		model.JobStatus{Status: "queued"},
		model.JobStatus{Status: "running"},
		completed(`{"sessionId": "sess-42"}`),
	)

	run, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Outcome != model.OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", run.Outcome)
	}
	if run.ID != "run-fixed" || run.JobID != "job-1" || run.SessionID != "sess-42" {
		t.Errorf("run = %+v", run)
	}
	if run.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", run.Attempts)
	}
	if h.enqueuer.got.URL != "https://example.com" || h.enqueuer.got.FlowName != "smoke-session" || !h.enqueuer.got.Options.Headless {
		t.Errorf("enqueue request = %+v", h.enqueuer.got)
	}
	if len(h.store.runs) != 1 {
		t.Errorf("stored runs = %d, want 1", len(h.store.runs))
	}
	if len(h.notifier.notified) != 1 {
		t.Errorf("notified = %d, want 1", len(h.notifier.notified))
	}
}

func TestRun_JobFailed(t *testing.T) {
	h := newHarness(defaultSettings(), acceptAll{},
		model.JobStatus{Status: "running"},
		model.JobStatus{Status: "FAILED", Error: "browser crashed"},
	)

	run, err := h.runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for failed job, got nil")
	}
	if run.Outcome != model.OutcomeFailed {
		t.Errorf("outcome = %s, want failed", run.Outcome)
	}
	if !strings.Contains(run.Error, "browser crashed") {
		t.Errorf("run error = %q, want job error included", run.Error)
	}
}

func TestRun_TimedOut(t *testing.T) {
	h := newHarness(defaultSettings(), acceptAll{}, model.JobStatus{Status: "running"})

	run, err := h.runner.Run(context.Background())
	var timeoutErr *model.PollTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected PollTimeoutError, got %v", err)
	}
	if run.Outcome != model.OutcomeTimedOut || run.Attempts != 5 {
		t.Errorf("outcome = %s after %d attempts, want timed_out after 5", run.Outcome, run.Attempts)
	}
	if run.Status != "running" {
		t.Errorf("status = %q, want running", run.Status)
	}
}

func TestRun_TransportError(t *testing.T) {
	h := newHarness(defaultSettings(), acceptAll{}, model.JobStatus{Status: "running"})
	h.fetcher.errAt = 2

	run, err := h.runner.Run(context.Background())
	var transportErr *model.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if run.Outcome != model.OutcomeTransportError || run.Attempts != 2 {
		t.Errorf("outcome = %s after %d attempts, want transport_error after 2", run.Outcome, run.Attempts)
	}
}

func TestRun_EnqueueError(t *testing.T) {
	h := newHarness(defaultSettings(), acceptAll{}, model.JobStatus{Status: "running"})
	h.enqueuer.err = &model.HTTPError{StatusCode: 422, Err: errors.New("bad url")}

	run, err := h.runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if run.Outcome != model.OutcomeEnqueueError || run.JobID != "" {
		t.Errorf("run = %+v, want enqueue_error with no job", run)
	}
	if h.fetcher.calls != 0 {
		t.Errorf("status fetched %d times after failed enqueue", h.fetcher.calls)
	}
	if len(h.store.runs) != 1 {
		t.Errorf("failed enqueue should still be recorded")
	}
}

func TestRun_MissingSessionID(t *testing.T) {
	h := newHarness(defaultSettings(), acceptAll{}, completed(`{"other": 1}`))

	run, err := h.runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for missing sessionId, got nil")
	}
	if run.Outcome != model.OutcomeInvalidResult {
		t.Errorf("outcome = %s, want invalid_result", run.Outcome)
	}
}

func TestRun_SessionIDNotRequired(t *testing.T) {
	settings := defaultSettings()
	settings.RequireSessionID = false
	h := newHarness(settings, acceptAll{}, model.JobStatus{Status: "Completed"})

	run, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Outcome != model.OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", run.Outcome)
	}
}

func TestRun_FilterSkipsNotification(t *testing.T) {
	h := newHarness(defaultSettings(), onlyFailures{}, completed(`{"sessionId": "s"}`))

	if _, err := h.runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.notifier.notified) != 0 {
		t.Error("notifier should not be called when the filter rejects the run")
	}
	if len(h.store.runs) != 1 {
		t.Error("run should be stored regardless of the filter")
	}
}

func TestRun_StoreErrorDoesNotMaskOutcome(t *testing.T) {
	h := newHarness(defaultSettings(), acceptAll{}, completed(`{"sessionId": "s"}`))
	h.store.err = errors.New("disk full")

	run, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Outcome != model.OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", run.Outcome)
	}
}

func TestRun_Cancelled(t *testing.T) {
	h := newHarness(defaultSettings(), acceptAll{}, model.JobStatus{Status: "running"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := h.runner.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if run.Outcome != model.OutcomeCancelled {
		t.Errorf("outcome = %s, want cancelled", run.Outcome)
	}
}

func TestRun_ObserverSeesRun(t *testing.T) {
	h := newHarness(defaultSettings(), acceptAll{}, completed(`{"sessionId": "s"}`))
	var observed []model.Run
	h.runner.SetObserver(observerFunc(func(r model.Run) { observed = append(observed, r) }))

	if _, err := h.runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(observed) != 1 || observed[0].Outcome != model.OutcomeCompleted {
		t.Errorf("observed = %+v", observed)
	}
}

func TestSessionIDFromResult(t *testing.T) {
	tests := []struct {
		name    string
		result  string
		want    string
		wantErr bool
	}{
		{"string id", `{"sessionId": "abc"}`, "abc", false},
		{"numeric id", `{"sessionId": 17}`, "17", false},
		{"empty string still defined", `{"sessionId": ""}`, "", false},
		{"null id", `{"sessionId": null}`, "", true},
		{"missing key", `{"id": "x"}`, "", true},
		{"no result", ``, "", true},
		{"null result", `null`, "", true},
		{"not an object", `[1,2]`, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sessionIDFromResult([]byte(tc.result))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
