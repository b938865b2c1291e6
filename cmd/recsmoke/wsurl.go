package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/recsmoke/internal/wsurl"
)

var wsurlCmd = &cobra.Command{
	Use:   "wsurl <path>",
	Short: "Print the WebSocket URL for a path on the API host",
	Args:  cobra.ExactArgs(1),
	RunE:  runWSURL,
}

func init() {
	rootCmd.AddCommand(wsurlCmd)
}

func runWSURL(cmd *cobra.Command, args []string) error {
	cfg, logger := bootstrap()

	u, err := wsurl.Derive(cfg.APIBaseURL, args[0])
	if err != nil {
		logger.Error("failed to derive websocket url", "error", err)
		os.Exit(1)
	}
	fmt.Fprintln(cmd.OutOrStdout(), u)
	return nil
}
