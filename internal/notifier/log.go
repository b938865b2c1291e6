package notifier

import (
	"log/slog"

	"github.com/amishk599/recsmoke/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes finished runs to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each run via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each run. Completed runs log at info, everything else at warn.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(runs []model.Run) error {
	for _, r := range runs {
		args := []any{
			"run_id", r.ID,
			"job_id", r.JobID,
			"flow", r.FlowName,
			"outcome", string(r.Outcome),
			"attempts", r.Attempts,
			"duration", r.Duration.String(),
		}
		if r.Error != "" {
			args = append(args, "error", r.Error)
		}
		if r.Outcome == model.OutcomeCompleted {
			n.logger.Info("smoke run finished", args...)
		} else {
			n.logger.Warn("smoke run finished", args...)
		}
	}
	return nil
}
