package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/recsmoke/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier sends run reports to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	appURL     string // linked from every message; empty omits the button
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts each run to Slack via webhook.
func NewSlackNotifier(webhookURL, appURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		appURL:     appURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Notify sends each run as a separate Slack message using Block Kit.
// Returns an error only if ALL messages fail. Individual failures are logged.
func (s *SlackNotifier) Notify(runs []model.Run) error {
	if len(runs) == 0 {
		return nil
	}

	failures := 0
	for i, r := range runs {
		if i > 0 {
			time.Sleep(500 * time.Millisecond)
		}

		if err := s.sendMessage(r); err != nil {
			s.logger.Error("slack notification failed", "run_id", r.ID, "job_id", r.JobID, "error", err)
			failures++
		}
	}

	sent := len(runs) - failures
	if failures == len(runs) {
		return fmt.Errorf("all %d slack notifications failed", failures)
	}
	s.logger.Info("slack notifications complete", "sent", sent, "failed", failures)
	return nil
}

func (s *SlackNotifier) sendMessage(r model.Run) error {
	body, err := json.Marshal(buildPayload(r, s.appURL))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		if secs <= 0 {
			secs = 1
		}
		s.logger.Warn("slack rate limited, retrying", "retry_after_secs", secs)
		time.Sleep(time.Duration(secs) * time.Second)

		resp2, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		defer resp2.Body.Close()

		if resp2.StatusCode != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", resp2.StatusCode)
		}
		s.logger.Info("slack message sent", "run_id", r.ID, "retried", true)
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	s.logger.Info("slack message sent", "run_id", r.ID)
	return nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style,omitempty"`
}

// SendTestMessage sends a dummy run report to verify the integration works.
func SendTestMessage(n model.Notifier) error {
	now := time.Now()
	testRun := model.Run{
		ID:        "test-001",
		JobID:     "test-job",
		FlowName:  "notification-test",
		TargetURL: "https://example.com",
		Outcome:   model.OutcomeCompleted,
		Status:    model.StatusCompleted,
		Attempts:  1,
		StartedAt: now,
	}
	return n.Notify([]model.Run{testRun})
}

func outcomeIcon(o model.Outcome) string {
	switch o {
	case model.OutcomeCompleted:
		return "✅"
	case model.OutcomeTimedOut:
		return "⏱️"
	default:
		return "❌"
	}
}

func buildPayload(r model.Run, appURL string) slackPayload {
	jobID := r.JobID
	if jobID == "" {
		jobID = "n/a"
	}
	started := "unknown"
	if !r.StartedAt.IsZero() {
		started = r.StartedAt.UTC().Format(time.RFC1123)
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: outcomeIcon(r.Outcome) + " " + r.FlowName + ": " + string(r.Outcome)},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Job:*\n" + jobID},
				{Type: "mrkdwn", Text: "*Attempts:*\n" + strconv.Itoa(r.Attempts)},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Started:*\n" + started},
				{Type: "mrkdwn", Text: "*Duration:*\n" + r.Duration.Round(time.Millisecond).String()},
			},
		},
	}

	if r.Error != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Error:*\n```" + r.Error + "```"},
		})
	}

	if appURL != "" {
		blocks = append(blocks, slackBlock{
			Type: "actions",
			Elements: []slackElement{
				{
					Type:  "button",
					Text:  slackText{Type: "plain_text", Text: "Open App"},
					URL:   appURL,
					Style: "primary",
				},
			},
		})
	}

	blocks = append(blocks, slackBlock{Type: "divider"})
	return slackPayload{Blocks: blocks}
}
