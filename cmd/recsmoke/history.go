package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/recsmoke/internal/model"
	"github.com/amishk599/recsmoke/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent smoke runs",
	Long:  "Reads the run history and prints the most recent runs, newest first.",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, logger := bootstrap()

	sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	runs, err := sqlStore.RecentRuns(historyLimit)
	if err != nil {
		logger.Error("failed to read history", "error", err)
		sqlStore.Close()
		os.Exit(1)
	}

	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func printRuns(w io.Writer, runs []model.Run) {
	fmt.Fprintf(w, "%-20s %-18s %-16s %-9s %-10s %s\n", "Started", "Flow", "Outcome", "Attempts", "Duration", "Job")
	fmt.Fprintln(w, strings.Repeat("─", 100))

	passed := 0
	for _, r := range runs {
		if r.Outcome == model.OutcomeCompleted {
			passed++
		}
		fmt.Fprintf(w, "%-20s %-18s %-16s %-9d %-10s %s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.FlowName,
			r.Outcome,
			r.Attempts,
			r.Duration.Round(time.Millisecond),
			r.JobID,
		)
	}

	fmt.Fprintf(w, "\nTotal: %d runs (%d passed, %d failed)\n", len(runs), passed, len(runs)-passed)
}
