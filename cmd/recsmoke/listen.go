package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/amishk599/recsmoke/internal/realtime"
	"github.com/amishk599/recsmoke/internal/wsurl"
)

var listenHeaders []string

var listenCmd = &cobra.Command{
	Use:   "listen <path>",
	Short: "Connect to a WebSocket path on the API host and print frames",
	Long:  "Dials the WebSocket URL derived from api_base_url and prints each frame on its own line until the server closes or Ctrl+C.",
	Args:  cobra.ExactArgs(1),
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().StringArrayVarP(&listenHeaders, "header", "H", nil, "extra handshake header as \"Name: value\" (repeatable)")
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, logger := bootstrap()

	builder, err := wsurl.NewBuilder(cfg.APIBaseURL)
	if err != nil {
		logger.Error("invalid api base url", "error", err)
		os.Exit(1)
	}

	header, err := parseHeaders(listenHeaders)
	if err != nil {
		logger.Error("invalid header", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := realtime.Dial(ctx, builder, args[0], header)
	if err != nil {
		logger.Error("websocket dial failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	logger.Info("connected", "url", builder.Build(args[0]))

	out := cmd.OutOrStdout()
	err = realtime.Stream(ctx, conn, func(messageType int, data []byte) error {
		if messageType == websocket.BinaryMessage {
			_, err := fmt.Fprintf(out, "<binary %d bytes>\n", len(data))
			return err
		}
		_, err := fmt.Fprintf(out, "%s\n", data)
		return err
	})
	if err != nil {
		logger.Error("websocket stream failed", "error", err)
		conn.Close()
		os.Exit(1)
	}

	logger.Info("connection closed")
	return nil
}

// parseHeaders turns "Name: value" pairs into an http.Header.
func parseHeaders(raw []string) (http.Header, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	header := make(http.Header, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("header %q must look like \"Name: value\"", h)
		}
		header.Add(name, strings.TrimSpace(value))
	}
	return header, nil
}
