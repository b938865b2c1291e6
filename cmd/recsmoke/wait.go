package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/amishk599/recsmoke/internal/jobwait"
	"github.com/amishk599/recsmoke/internal/model"
	"github.com/amishk599/recsmoke/internal/progress"
)

var waitProgress bool

var waitCmd = &cobra.Command{
	Use:   "wait <jobId>...",
	Short: "Wait for recorder jobs to reach a terminal state",
	Long: "Polls each job concurrently until its status is terminal, the attempt budget runs out or the command is interrupted. " +
		"Prints one line per job and exits non-zero if any wait failed.",
	Args: cobra.MinimumNArgs(1),
	RunE: runWait,
}

func init() {
	waitCmd.Flags().BoolVar(&waitProgress, "progress", false, "show a spinner while waiting (terminal only)")
	rootCmd.AddCommand(waitCmd)
}

func runWait(cmd *cobra.Command, args []string) error {
	cfg, logger := bootstrap()

	_, fetcher, err := setupRecorder(cfg, newHTTPClient(cfg), logger)
	if err != nil {
		logger.Error("failed to set up recorder client", "error", err)
		os.Exit(1)
	}
	poller := setupPoller(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var results []jobwait.Result
	if waitProgress && isatty.IsTerminal(os.Stderr.Fd()) {
		label := fmt.Sprintf("Waiting for %d job(s) on %s", len(args), cfg.APIBaseURL)
		err = progress.RunWaiter(ctx, os.Stderr, label, args, poller.MaxAttempts(), func(ctx context.Context, report jobwait.AttemptHook) error {
			poller.SetAttemptHook(report)
			results = poller.WaitAll(ctx, args, fetcher)
			return nil
		})
		if err != nil {
			logger.Error("wait interrupted", "error", err)
			os.Exit(1)
		}
	} else {
		results = poller.WaitAll(ctx, args, fetcher)
	}

	if failed := printWaitResults(cmd.OutOrStdout(), results); failed > 0 {
		logger.Error("some waits failed", "failed", failed, "total", len(results))
		os.Exit(1)
	}
	return nil
}

// printWaitResults writes one line per job and returns how many waits failed.
func printWaitResults(w io.Writer, results []jobwait.Result) int {
	fmt.Fprintf(w, "%-38s %-12s %s\n", "Job", "Status", "Detail")
	fmt.Fprintln(w, strings.Repeat("─", 70))

	failed := 0
	for _, r := range results {
		status, detail := describeWait(r)
		if r.Err != nil {
			failed++
		}
		fmt.Fprintf(w, "%-38s %-12s %s\n", r.JobID, status, detail)
	}
	return failed
}

func describeWait(r jobwait.Result) (status, detail string) {
	var timeoutErr *model.PollTimeoutError
	var transportErr *model.TransportError

	switch {
	case r.Err == nil:
		status = r.Status.Normalized()
		if r.Status.Error != "" {
			detail = r.Status.Error
		}
	case errors.As(r.Err, &timeoutErr):
		status = "timed_out"
		detail = timeoutErr.Error()
	case errors.As(r.Err, &transportErr):
		status = "error"
		detail = transportErr.Error()
	case errors.Is(r.Err, context.Canceled):
		status = "cancelled"
		detail = r.Err.Error()
	default:
		status = "error"
		detail = r.Err.Error()
	}
	return status, detail
}
