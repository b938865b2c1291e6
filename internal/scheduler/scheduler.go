package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/amishk599/recsmoke/internal/model"
	"github.com/amishk599/recsmoke/internal/smoke"
)

// Scheduler owns the daemon loop: ticks on an interval and runs each smoke
// runner sequentially.
type Scheduler struct {
	runners  []*smoke.Runner
	interval time.Duration
	gap      time.Duration // pause between runners within one cycle
	logger   *slog.Logger

	store     model.RunStore
	retention time.Duration
}

// NewScheduler creates a scheduler that runs all checks at the given interval.
func NewScheduler(runners []*smoke.Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runners:  runners,
		interval: interval,
		gap:      time.Second,
		logger:   logger,
	}
}

// SetRetention makes each cycle delete runs older than retention from store.
// A zero retention keeps history forever.
func (s *Scheduler) SetRetention(store model.RunStore, retention time.Duration) {
	s.store = store
	s.retention = retention
}

// Run starts the loop. It runs one immediate cycle, then ticks on the
// configured interval. It returns nil when ctx is cancelled (graceful shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler",
		"interval", s.interval.String(),
		"checks", len(s.runners),
	)

	s.runAll(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-time.After(s.interval):
			s.runAll(ctx)
		}
	}
}

// runAll runs each check sequentially with a small pause between them.
func (s *Scheduler) runAll(ctx context.Context) {
	for i, r := range s.runners {
		if ctx.Err() != nil {
			return
		}

		if _, err := r.Run(ctx); err != nil {
			s.logger.Error("smoke check failed",
				"check", r.Name,
				"error", err,
			)
		}

		if i < len(s.runners)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.gap):
			}
		}
	}

	if s.store != nil && s.retention > 0 && ctx.Err() == nil {
		if err := s.store.Cleanup(s.retention); err != nil {
			s.logger.Error("run history cleanup failed", "error", err)
		}
	}
}
