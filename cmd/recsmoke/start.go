package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/recsmoke/internal/metrics"
	"github.com/amishk599/recsmoke/internal/scheduler"
	"github.com/amishk599/recsmoke/internal/smoke"
	"github.com/amishk599/recsmoke/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the smoke check daemon",
	Long:  "Run the smoke check on schedule.interval; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, logger := bootstrap()

	logger.Info("config loaded",
		"api", cfg.APIBaseURL,
		"interval", cfg.Schedule.Interval.String(),
		"flow", cfg.Smoke.FlowName,
		"url", cfg.Smoke.URL,
		"notify_on", cfg.Notification.NotifyOn,
	)

	sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	httpClient := newHTTPClient(cfg)
	enqueuer, fetcher, err := setupRecorder(cfg, httpClient, logger)
	if err != nil {
		logger.Error("failed to set up recorder client", "error", err)
		os.Exit(1)
	}
	n := setupNotifier(cfg, httpClient, logger)

	m := metrics.New()
	poller := setupPoller(cfg, logger)
	poller.SetAttemptHook(m.ObserveAttempt)

	runner := buildRunner(cfg, enqueuer, fetcher, poller, sqlStore, n, logger)
	runner.SetObserver(m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		srv := m.NewServer(cfg.Metrics.Addr)
		go func() {
			logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	sched := scheduler.NewScheduler([]*smoke.Runner{runner}, cfg.Schedule.Interval, logger)
	sched.SetRetention(sqlStore, cfg.Store.Retention)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
