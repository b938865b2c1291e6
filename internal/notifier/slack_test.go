package notifier

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/recsmoke/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRun(outcome model.Outcome) model.Run {
	return model.Run{
		ID:        "run-1",
		JobID:     "job-123",
		FlowName:  "smoke-session",
		TargetURL: "https://example.com",
		Outcome:   outcome,
		Status:    "running",
		Attempts:  20,
		StartedAt: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		Duration:  19 * time.Second,
	}
}

func TestSlackNotifier_EmptyRuns(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, "", srv.Client(), discardLogger())

	if err := n.Notify(nil); err != nil {
		t.Errorf("Notify(nil) = %v, want nil", err)
	}
	if err := n.Notify([]model.Run{}); err != nil {
		t.Errorf("Notify([]) = %v, want nil", err)
	}
	if c := calls.Load(); c != 0 {
		t.Errorf("expected 0 HTTP calls, got %d", c)
	}
}

func TestSlackNotifier_SingleRun(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, "http://localhost:5173", srv.Client(), discardLogger())
	run := sampleRun(model.OutcomeTimedOut)
	run.Error = "job job-123 did not finish in time"

	if err := n.Notify([]model.Run{run}); err != nil {
		t.Fatalf("Notify() = %v, want nil", err)
	}

	var payload slackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if len(payload.Blocks) != 6 {
		t.Fatalf("expected 6 blocks, got %d", len(payload.Blocks))
	}
	if got := payload.Blocks[0].Text.Text; got != "⏱️ smoke-session: timed_out" {
		t.Errorf("header text = %q", got)
	}
	if got := payload.Blocks[1].Fields[0].Text; got != "*Job:*\njob-123" {
		t.Errorf("job field = %q", got)
	}
	if got := payload.Blocks[1].Fields[1].Text; got != "*Attempts:*\n20" {
		t.Errorf("attempts field = %q", got)
	}
	if payload.Blocks[3].Text == nil || payload.Blocks[3].Text.Text != "*Error:*\n```job job-123 did not finish in time```" {
		t.Errorf("error block = %+v", payload.Blocks[3])
	}
	if got := payload.Blocks[4].Elements[0].URL; got != "http://localhost:5173" {
		t.Errorf("action URL = %q", got)
	}
	if payload.Blocks[5].Type != "divider" {
		t.Errorf("last block type = %q, want divider", payload.Blocks[5].Type)
	}
}

func TestSlackNotifier_PayloadWithoutErrorOrApp(t *testing.T) {
	p := buildPayload(model.Run{FlowName: "f", Outcome: model.OutcomeCompleted}, "")
	if len(p.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(p.Blocks))
	}
	if p.Blocks[0].Text.Text != "✅ f: completed" {
		t.Errorf("header = %q", p.Blocks[0].Text.Text)
	}
	if p.Blocks[1].Fields[0].Text != "*Job:*\nn/a" {
		t.Errorf("job field = %q, want n/a for missing job", p.Blocks[1].Fields[0].Text)
	}
	if p.Blocks[2].Fields[0].Text != "*Started:*\nunknown" {
		t.Errorf("started field = %q", p.Blocks[2].Fields[0].Text)
	}
}

func TestSlackNotifier_AllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, "", srv.Client(), discardLogger())
	runs := []model.Run{sampleRun(model.OutcomeFailed), sampleRun(model.OutcomeFailed)}

	if err := n.Notify(runs); err == nil {
		t.Error("expected error when all messages fail, got nil")
	}
}

func TestSlackNotifier_PartialFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, "", srv.Client(), discardLogger())
	runs := []model.Run{sampleRun(model.OutcomeFailed), sampleRun(model.OutcomeCompleted)}

	if err := n.Notify(runs); err != nil {
		t.Errorf("expected nil (partial success), got %v", err)
	}
}

func TestSlackNotifier_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		} else {
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, "", srv.Client(), discardLogger())
	if err := n.Notify([]model.Run{sampleRun(model.OutcomeFailed)}); err != nil {
		t.Fatalf("expected nil after retry, got %v", err)
	}
	if c := calls.Load(); c != 2 {
		t.Errorf("expected 2 HTTP calls (initial + retry), got %d", c)
	}
}

func TestSendTestMessage(t *testing.T) {
	var got []model.Run
	n := notifierFunc(func(runs []model.Run) error {
		got = runs
		return nil
	})
	if err := SendTestMessage(n); err != nil {
		t.Fatalf("SendTestMessage: %v", err)
	}
	if len(got) != 1 || got[0].Outcome != model.OutcomeCompleted {
		t.Errorf("test message runs = %+v", got)
	}
}

type notifierFunc func([]model.Run) error

func (f notifierFunc) Notify(runs []model.Run) error { return f(runs) }
