package progress

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func updateModel(t *testing.T, m waitModel, msg tea.Msg) (waitModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(waitModel)
	if !ok {
		t.Fatalf("Update returned %T, want waitModel", next)
	}
	return wm, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestWaitModel_InitialView(t *testing.T) {
	m := newWaitModel("Waiting for jobs", []string{"job-1", "job-2", "job-1"}, 20, func() {})

	if len(m.jobs) != 2 {
		t.Fatalf("jobs = %d, want 2 (duplicates collapsed)", len(m.jobs))
	}
	view := m.View()
	for _, want := range []string{"Waiting for jobs", "job-1", "job-2", "waiting"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestWaitModel_AttemptUpdatesLine(t *testing.T) {
	m := newWaitModel("wait", []string{"job-1", "job-2"}, 20, func() {})

	m, cmd := updateModel(t, m, attemptMsg{jobID: "job-2", attempt: 3, status: "running"})
	if cmd != nil {
		t.Error("attempt update should not schedule a command")
	}
	if m.jobs[1].attempt != 3 || m.jobs[1].status != "running" {
		t.Errorf("job-2 line = %+v", m.jobs[1])
	}
	if m.jobs[0].attempt != 0 {
		t.Errorf("job-1 line changed: %+v", m.jobs[0])
	}

	view := m.View()
	if !strings.Contains(view, "attempt 3/20") || !strings.Contains(view, "running") {
		t.Errorf("View() missing attempt progress:\n%s", view)
	}
}

func TestWaitModel_UnknownJobIgnored(t *testing.T) {
	m := newWaitModel("wait", []string{"job-1"}, 20, func() {})

	m, _ = updateModel(t, m, attemptMsg{jobID: "other", attempt: 1, status: "queued"})
	if m.jobs[0].attempt != 0 {
		t.Errorf("job-1 line = %+v, want untouched", m.jobs[0])
	}
}

func TestWaitModel_DescribeStates(t *testing.T) {
	m := newWaitModel("wait", nil, 5, func() {})

	tests := []struct {
		line jobLine
		want string
	}{
		{jobLine{attempt: 2, status: "COMPLETED"}, "attempt 2/5  COMPLETED"},
		{jobLine{attempt: 1, status: "failed"}, "attempt 1/5  failed"},
		{jobLine{attempt: 4}, "attempt 4/5  <no status>"},
		{jobLine{attempt: 1, err: errors.New("refused")}, "attempt 1/5  error"},
	}
	for _, tt := range tests {
		if got := m.describe(tt.line); !strings.Contains(got, tt.want) {
			t.Errorf("describe(%+v) = %q, want it to contain %q", tt.line, got, tt.want)
		}
	}
}

func TestWaitModel_DoneQuits(t *testing.T) {
	m := newWaitModel("wait", []string{"job-1"}, 20, func() {})
	waitErr := errors.New("job job-1 did not finish in time")

	m, cmd := updateModel(t, m, waitDoneMsg{err: waitErr})
	if !m.done {
		t.Error("done = false after waitDoneMsg")
	}
	if !errors.Is(m.err, waitErr) {
		t.Errorf("err = %v, want %v", m.err, waitErr)
	}
	if !isQuit(cmd) {
		t.Error("waitDoneMsg should quit the program")
	}
	if v := m.View(); v != "" {
		t.Errorf("View() after done = %q, want empty", v)
	}
}

func TestWaitModel_CtrlCCancels(t *testing.T) {
	cancelled := false
	m := newWaitModel("wait", []string{"job-1"}, 20, func() { cancelled = true })

	m, cmd := updateModel(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if !cancelled {
		t.Error("ctrl+c did not cancel the wait context")
	}
	if !errors.Is(m.err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", m.err)
	}
	if !isQuit(cmd) {
		t.Error("ctrl+c should quit the program")
	}
}

func TestWaitModel_OtherKeysIgnored(t *testing.T) {
	cancelled := false
	m := newWaitModel("wait", []string{"job-1"}, 20, func() { cancelled = true })

	m, cmd := updateModel(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cancelled || m.done || cmd != nil {
		t.Errorf("key q changed state: cancelled=%v done=%v cmd=%v", cancelled, m.done, cmd != nil)
	}
}
