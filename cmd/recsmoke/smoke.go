package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	smokeURL  string
	smokeFlow string
	noRecord  bool
)

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run one smoke check and exit",
	Long: "Enqueues a recorder session, waits for its job to reach a terminal state and verifies the result. " +
		"Exits non-zero unless the job completed with a session id.",
	RunE: runSmoke,
}

func init() {
	smokeFlags(smokeCmd)
	rootCmd.AddCommand(smokeCmd)
}

func smokeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&smokeURL, "url", "", "target URL to record (overrides smoke.url)")
	cmd.Flags().StringVar(&smokeFlow, "flow", "", "flow name (overrides smoke.flow_name)")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not write the run to history")
}

func runSmoke(cmd *cobra.Command, args []string) error {
	cfg, logger := bootstrap()

	if smokeURL != "" {
		cfg.Smoke.URL = smokeURL
	}
	if smokeFlow != "" {
		cfg.Smoke.FlowName = smokeFlow
	}

	runStore, closeStore, err := openStore(cfg, noRecord, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	httpClient := newHTTPClient(cfg)
	enqueuer, fetcher, err := setupRecorder(cfg, httpClient, logger)
	if err != nil {
		logger.Error("failed to set up recorder client", "error", err)
		os.Exit(1)
	}
	n := setupNotifier(cfg, httpClient, logger)
	runner := buildRunner(cfg, enqueuer, fetcher, setupPoller(cfg, logger), runStore, n, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("running smoke check",
		"api", cfg.APIBaseURL,
		"url", cfg.Smoke.URL,
		"flow", cfg.Smoke.FlowName,
		"max_attempts", cfg.Poll.MaxAttempts,
		"interval", cfg.Poll.Interval.String(),
	)

	run, err := runner.Run(ctx)
	if err != nil {
		logger.Error("smoke check failed", "outcome", run.Outcome, "error", err)
		closeStore()
		os.Exit(1)
	}

	logger.Info("smoke check passed",
		"job_id", run.JobID,
		"session_id", run.SessionID,
		"attempts", run.Attempts,
		"duration", run.Duration.String(),
	)
	return nil
}
