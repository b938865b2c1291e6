// Package progress renders an inline spinner while jobs are being waited on.
package progress

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/recsmoke/internal/jobwait"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	jobIDStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// WaitFunc does the waiting. It must pass report to every poller it uses so
// the display can follow each attempt.
type WaitFunc func(ctx context.Context, report jobwait.AttemptHook) error

type attemptMsg struct {
	jobID   string
	attempt int
	status  string
	err     error
}

type waitDoneMsg struct {
	err error
}

type jobLine struct {
	id      string
	attempt int
	status  string
	err     error
}

type waitModel struct {
	label       string
	maxAttempts int
	spinner     spinner.Model
	jobs        []jobLine
	index       map[string]int
	run         func() tea.Msg
	cancel      context.CancelFunc
	err         error
	done        bool
}

func newWaitModel(label string, jobIDs []string, maxAttempts int, cancel context.CancelFunc) waitModel {
	m := waitModel{
		label:       label,
		maxAttempts: maxAttempts,
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
		index:       make(map[string]int, len(jobIDs)),
		cancel:      cancel,
	}
	for _, id := range jobIDs {
		if _, dup := m.index[id]; dup {
			continue
		}
		m.index[id] = len(m.jobs)
		m.jobs = append(m.jobs, jobLine{id: id})
	}
	return m
}

func (m waitModel) Init() tea.Cmd {
	return tea.Batch(m.run, m.spinner.Tick)
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case attemptMsg:
		if i, ok := m.index[msg.jobID]; ok {
			m.jobs[i].attempt = msg.attempt
			m.jobs[i].status = msg.status
			m.jobs[i].err = msg.err
		}
		return m, nil
	case waitDoneMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
			m.done = true
			m.err = context.Canceled
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m waitModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.label)
	for _, j := range m.jobs {
		fmt.Fprintf(&b, "  %s  %s\n", jobIDStyle.Render(j.id), m.describe(j))
	}
	return b.String()
}

func (m waitModel) describe(j jobLine) string {
	if j.attempt == 0 {
		return pendingStyle.Render("waiting")
	}
	progress := fmt.Sprintf("attempt %d/%d", j.attempt, m.maxAttempts)
	switch {
	case j.err != nil:
		return failStyle.Render(progress + "  error")
	case strings.EqualFold(j.status, "completed"):
		return doneStyle.Render(progress + "  " + j.status)
	case strings.EqualFold(j.status, "failed"):
		return failStyle.Render(progress + "  " + j.status)
	case j.status == "":
		return pendingStyle.Render(progress + "  <no status>")
	default:
		return pendingStyle.Render(progress + "  " + j.status)
	}
}

// RunWaiter shows a spinner with one line per job while fn runs. It renders
// inline (no alt screen) to out and returns fn's error. Ctrl+C cancels the
// context passed to fn and returns context.Canceled.
func RunWaiter(ctx context.Context, out io.Writer, label string, jobIDs []string, maxAttempts int, fn WaitFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var p *tea.Program
	report := func(jobID string, attempt int, status string, err error) {
		p.Send(attemptMsg{jobID: jobID, attempt: attempt, status: status, err: err})
	}

	m := newWaitModel(label, jobIDs, maxAttempts, cancel)
	m.run = func() tea.Msg {
		return waitDoneMsg{err: fn(ctx, report)}
	}

	p = tea.NewProgram(m, tea.WithOutput(out))
	result, err := p.Run()
	if err != nil {
		return err
	}
	final := result.(waitModel)
	return final.err
}
