package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/recsmoke/internal/model"
)

var (
	enqueueURL      string
	enqueueFlow     string
	enqueueHeadless bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue a recorder session and print its job id",
	Args:  cobra.NoArgs,
	RunE:  runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueURL, "url", "", "target URL to record (default: smoke.url)")
	enqueueCmd.Flags().StringVar(&enqueueFlow, "flow", "", "flow name (default: smoke.flow_name)")
	enqueueCmd.Flags().BoolVar(&enqueueHeadless, "headless", true, "run the recorder browser headless (default: smoke.headless)")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, logger := bootstrap()

	req := model.SessionRequest{
		URL:      cfg.Smoke.URL,
		FlowName: cfg.Smoke.FlowName,
		Options:  model.SessionOptions{Headless: cfg.Smoke.Headless},
	}
	if cmd.Flags().Changed("headless") {
		req.Options.Headless = enqueueHeadless
	}
	if enqueueURL != "" {
		req.URL = enqueueURL
	}
	if enqueueFlow != "" {
		req.FlowName = enqueueFlow
	}

	enqueuer, _, err := setupRecorder(cfg, newHTTPClient(cfg), logger)
	if err != nil {
		logger.Error("failed to set up recorder client", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobID, err := enqueuer.EnqueueSession(ctx, req)
	if err != nil {
		logger.Error("enqueue failed", "url", req.URL, "flow", req.FlowName, "error", err)
		os.Exit(1)
	}

	logger.Debug("session enqueued", "job_id", jobID)
	fmt.Fprintln(cmd.OutOrStdout(), jobID)
	return nil
}
