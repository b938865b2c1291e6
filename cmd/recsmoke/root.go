package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/amishk599/recsmoke/internal/config"
	"github.com/amishk599/recsmoke/internal/filter"
	"github.com/amishk599/recsmoke/internal/jobwait"
	"github.com/amishk599/recsmoke/internal/model"
	"github.com/amishk599/recsmoke/internal/notifier"
	"github.com/amishk599/recsmoke/internal/ratelimit"
	"github.com/amishk599/recsmoke/internal/recorder"
	"github.com/amishk599/recsmoke/internal/retry"
	"github.com/amishk599/recsmoke/internal/smoke"
	"github.com/amishk599/recsmoke/internal/store"
)

var (
	cfgPath   string
	envFile   string
	debug     bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "recsmoke",
	Short: "Smoke tester for the recorder backend",
	Long:  "recsmoke enqueues recorder sessions, waits for their jobs to finish and reports the outcome.",
	// Default to `smoke` so that `recsmoke` with no args runs a single check.
	RunE: runSmoke,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: RECSMOKE_CONFIG env var or ./recsmoke.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json or color (overrides log.format)")
	smokeFlags(rootCmd)
}

// bootstrap loads the dotenv file and the config, then builds the logger.
// Failures are logged and exit the process.
func bootstrap() (*config.Config, *slog.Logger) {
	logger := setupLogger(os.Stderr, debug, logFormat)

	if err := config.LoadDotEnv(envFile); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	path := config.ResolvePath(cfgPath)
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if logFormat == "" {
		logger = setupLogger(os.Stderr, debug, cfg.Log.Format)
	}
	if path == "" {
		logger.Debug("no config file found, using defaults")
	} else {
		logger.Debug("config loaded", "path", path)
	}
	return cfg, logger
}

// setupLogger picks the slog handler for format. Logs go to w so that command
// output on stdout stays pipeable.
func setupLogger(w io.Writer, dbg bool, format string) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	case "color":
		noColor := true
		if f, ok := w.(*os.File); ok {
			noColor = !isatty.IsTerminal(f.Fd())
		}
		handler = tint.NewHandler(w, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
			NoColor:    noColor,
		})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.HTTPTimeout}
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, cfg.AppBaseURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// setupRecorder builds the recorder API client and wraps it with rate
// limiting and, when configured, retries.
func setupRecorder(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (model.SessionEnqueuer, model.StatusFetcher, error) {
	client, err := recorder.NewClient(cfg.APIBaseURL, httpClient)
	if err != nil {
		return nil, nil, err
	}

	u, err := url.Parse(client.BaseURL())
	if err != nil {
		return nil, nil, fmt.Errorf("parse api base url: %w", err)
	}

	var enqueuer model.SessionEnqueuer = client
	var fetcher model.StatusFetcher = client

	limiter := ratelimit.NewHostRateLimiter(cfg.RateLimit.MinDelay)
	fetcher = ratelimit.NewRateLimitedFetcher(fetcher, limiter, u.Host)

	if cfg.Retry.MaxRetries > 0 {
		policy := retry.NewPolicy(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, logger)
		fetcher = retry.NewRetryFetcher(fetcher, policy)
		enqueuer = retry.NewRetryEnqueuer(enqueuer, policy)
		logger.Debug("retries enabled", "max_retries", cfg.Retry.MaxRetries, "base_delay", cfg.Retry.BaseDelay.String())
	}

	return enqueuer, fetcher, nil
}

func setupPoller(cfg *config.Config, logger *slog.Logger) *jobwait.Poller {
	return jobwait.NewPoller(jobwait.Options{
		MaxAttempts:    cfg.Poll.MaxAttempts,
		Interval:       cfg.Poll.Interval,
		TerminalStates: cfg.Poll.TerminalStates,
	}, logger)
}

// openStore returns the SQLite run history, or a NopStore when noRecord is set.
// The returned close func is always safe to call.
func openStore(cfg *config.Config, noRecord bool, logger *slog.Logger) (model.RunStore, func(), error) {
	if noRecord {
		logger.Debug("run history disabled")
		return store.NewNopStore(), func() {}, nil
	}
	sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	return sqlStore, func() { sqlStore.Close() }, nil
}

func buildRunner(cfg *config.Config, enqueuer model.SessionEnqueuer, fetcher model.StatusFetcher, poller *jobwait.Poller, runStore model.RunStore, n model.Notifier, logger *slog.Logger) *smoke.Runner {
	return smoke.NewRunner(
		smoke.Settings{
			TargetURL:        cfg.Smoke.URL,
			FlowName:         cfg.Smoke.FlowName,
			Headless:         cfg.Smoke.Headless,
			RequireSessionID: cfg.Smoke.RequireSessionID,
		},
		enqueuer,
		fetcher,
		poller,
		runStore,
		n,
		filter.NewOutcomeFilter(cfg.Notification.NotifyOn),
		logger,
	)
}
