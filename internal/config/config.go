package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RECSMOKE_"

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "recsmoke.yaml"

const slackWebhookPrefix = "https://hooks.slack.com/"

// Config is the root configuration for recsmoke.
type Config struct {
	APIBaseURL   string
	AppBaseURL   string
	HTTPTimeout  time.Duration
	Poll         PollConfig
	Retry        RetryConfig
	RateLimit    RateLimitConfig
	Smoke        SmokeConfig
	Schedule     ScheduleConfig
	Store        StoreConfig
	Notification NotificationConfig
	Metrics      MetricsConfig
	Log          LogConfig
}

// PollConfig controls how long a job is waited on.
type PollConfig struct {
	MaxAttempts    int
	Interval       time.Duration
	TerminalStates []string
}

// RetryConfig controls retries of failed recorder API calls. Zero retries disables it.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// RateLimitConfig sets the minimum gap between requests to the recorder API.
type RateLimitConfig struct {
	MinDelay time.Duration
}

// SmokeConfig describes the session the smoke check enqueues.
type SmokeConfig struct {
	URL              string
	FlowName         string
	Headless         bool
	RequireSessionID bool
}

// ScheduleConfig controls the daemon loop.
type ScheduleConfig struct {
	Interval time.Duration
}

// StoreConfig controls run history.
type StoreConfig struct {
	Path      string
	Retention time.Duration // zero keeps history forever
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string   // "log" or "slack"
	WebhookURL string   // required if type is "slack"
	NotifyOn   []string // outcomes that trigger a notification; empty means all
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string
}

// LogConfig selects the log handler: "text", "json" or "color".
type LogConfig struct {
	Format string
}

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	APIBaseURL   string             `yaml:"api_base_url"`
	AppBaseURL   string             `yaml:"app_base_url"`
	HTTPTimeout  string             `yaml:"http_timeout"`
	Poll         rawPollConfig      `yaml:"poll"`
	Retry        rawRetryConfig     `yaml:"retry"`
	RateLimit    rawRateLimitConfig `yaml:"rate_limit"`
	Smoke        rawSmokeConfig     `yaml:"smoke"`
	Schedule     rawScheduleConfig  `yaml:"schedule"`
	Store        rawStoreConfig     `yaml:"store"`
	Notification rawNotifyConfig    `yaml:"notification"`
	Metrics      rawMetricsConfig   `yaml:"metrics"`
	Log          rawLogConfig       `yaml:"log"`
}

type rawPollConfig struct {
	MaxAttempts    *int     `yaml:"max_attempts"`
	Interval       string   `yaml:"interval"`
	TerminalStates []string `yaml:"terminal_states"`
}

type rawRetryConfig struct {
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
}

type rawRateLimitConfig struct {
	MinDelay string `yaml:"min_delay"`
}

type rawSmokeConfig struct {
	URL              string `yaml:"url"`
	FlowName         string `yaml:"flow_name"`
	Headless         *bool  `yaml:"headless"`
	RequireSessionID *bool  `yaml:"require_session_id"`
}

type rawScheduleConfig struct {
	Interval string `yaml:"interval"`
}

type rawStoreConfig struct {
	Path      string `yaml:"path"`
	Retention string `yaml:"retention"`
}

type rawMetricsConfig struct {
	Addr string `yaml:"addr"`
}

type rawLogConfig struct {
	Format string `yaml:"format"`
}

type rawNotifyConfig struct {
	Type       string   `yaml:"type"`
	WebhookURL string   `yaml:"webhook_url"`
	NotifyOn   []string `yaml:"notify_on"`
}

// envOverrides holds RECSMOKE_* variables. Zero values leave the file value alone.
type envOverrides struct {
	APIBaseURL      string        `env:"API_BASE_URL"`
	AppBaseURL      string        `env:"APP_BASE_URL"`
	PollMaxAttempts int           `env:"POLL_MAX_ATTEMPTS"`
	PollInterval    time.Duration `env:"POLL_INTERVAL"`
	SlackWebhookURL string        `env:"SLACK_WEBHOOK_URL"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		APIBaseURL:  "http://localhost:8000",
		AppBaseURL:  "http://localhost:5173",
		HTTPTimeout: 30 * time.Second,
		Poll: PollConfig{
			MaxAttempts:    20,
			Interval:       time.Second,
			TerminalStates: []string{"completed", "failed"},
		},
		Retry: RetryConfig{
			BaseDelay: 2 * time.Second,
		},
		Smoke: SmokeConfig{
			URL:              "https://example.com",
			FlowName:         "smoke-session",
			Headless:         true,
			RequireSessionID: true,
		},
		Schedule: ScheduleConfig{Interval: 15 * time.Minute},
		Store:    StoreConfig{Path: "recsmoke.db"},
		Notification: NotificationConfig{
			Type:     "log",
			NotifyOn: []string{"failed", "timed_out", "transport_error", "enqueue_error", "invalid_result"},
		},
		Log: LogConfig{Format: "text"},
	}
}

// ResolvePath picks the config file: the flag value, then $RECSMOKE_CONFIG,
// then ./recsmoke.yaml if it exists. It returns "" when none applies.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// LoadDotEnv loads variables from path into the process environment.
// A missing file is not an error. Variables already set are kept.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML config at path, applies RECSMOKE_* overrides, validates
// it, and returns Config. An empty path starts from Default.
func Load(path string) (*Config, error) {
	var raw rawConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		// Expand environment variables
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg, err := fromRaw(raw)
	if err != nil {
		return nil, err
	}

	var overrides envOverrides
	if err := env.ParseWithOptions(&overrides, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	applyOverrides(cfg, overrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func fromRaw(raw rawConfig) (*Config, error) {
	cfg := Default()
	var err error

	if raw.APIBaseURL != "" {
		cfg.APIBaseURL = raw.APIBaseURL
	}
	if raw.AppBaseURL != "" {
		cfg.AppBaseURL = raw.AppBaseURL
	}
	if cfg.HTTPTimeout, err = parseDuration("http_timeout", raw.HTTPTimeout, cfg.HTTPTimeout); err != nil {
		return nil, err
	}

	if raw.Poll.MaxAttempts != nil {
		cfg.Poll.MaxAttempts = *raw.Poll.MaxAttempts
	}
	if cfg.Poll.Interval, err = parseDuration("poll.interval", raw.Poll.Interval, cfg.Poll.Interval); err != nil {
		return nil, err
	}
	if len(raw.Poll.TerminalStates) > 0 {
		cfg.Poll.TerminalStates = raw.Poll.TerminalStates
	}

	cfg.Retry.MaxRetries = raw.Retry.MaxRetries
	if cfg.Retry.BaseDelay, err = parseDuration("retry.base_delay", raw.Retry.BaseDelay, cfg.Retry.BaseDelay); err != nil {
		return nil, err
	}
	if cfg.RateLimit.MinDelay, err = parseDuration("rate_limit.min_delay", raw.RateLimit.MinDelay, 0); err != nil {
		return nil, err
	}

	if raw.Smoke.URL != "" {
		cfg.Smoke.URL = raw.Smoke.URL
	}
	if raw.Smoke.FlowName != "" {
		cfg.Smoke.FlowName = raw.Smoke.FlowName
	}
	if raw.Smoke.Headless != nil {
		cfg.Smoke.Headless = *raw.Smoke.Headless
	}
	if raw.Smoke.RequireSessionID != nil {
		cfg.Smoke.RequireSessionID = *raw.Smoke.RequireSessionID
	}

	if cfg.Schedule.Interval, err = parseDuration("schedule.interval", raw.Schedule.Interval, cfg.Schedule.Interval); err != nil {
		return nil, err
	}

	if raw.Store.Path != "" {
		cfg.Store.Path = raw.Store.Path
	}
	if cfg.Store.Retention, err = parseDuration("store.retention", raw.Store.Retention, 0); err != nil {
		return nil, err
	}

	if raw.Notification.Type != "" {
		cfg.Notification.Type = raw.Notification.Type
	}
	cfg.Notification.WebhookURL = raw.Notification.WebhookURL
	if raw.Notification.NotifyOn != nil {
		cfg.Notification.NotifyOn = raw.Notification.NotifyOn
	}

	cfg.Metrics.Addr = raw.Metrics.Addr
	if raw.Log.Format != "" {
		cfg.Log.Format = raw.Log.Format
	}

	return cfg, nil
}

func applyOverrides(cfg *Config, o envOverrides) {
	if o.APIBaseURL != "" {
		cfg.APIBaseURL = o.APIBaseURL
	}
	if o.AppBaseURL != "" {
		cfg.AppBaseURL = o.AppBaseURL
	}
	if o.PollMaxAttempts != 0 {
		cfg.Poll.MaxAttempts = o.PollMaxAttempts
	}
	if o.PollInterval != 0 {
		cfg.Poll.Interval = o.PollInterval
	}
	if o.SlackWebhookURL != "" {
		cfg.Notification.WebhookURL = o.SlackWebhookURL
	}
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

func validate(cfg *Config) error {
	if err := validateBaseURL("api_base_url", cfg.APIBaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("app_base_url", cfg.AppBaseURL); err != nil {
		return err
	}
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %v", cfg.HTTPTimeout)
	}

	if cfg.Poll.MaxAttempts < 1 {
		return fmt.Errorf("poll.max_attempts must be at least 1, got %d", cfg.Poll.MaxAttempts)
	}
	if cfg.Poll.Interval < 0 {
		return fmt.Errorf("poll.interval must not be negative, got %v", cfg.Poll.Interval)
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.RateLimit.MinDelay < 0 {
		return fmt.Errorf("rate_limit.min_delay must not be negative, got %v", cfg.RateLimit.MinDelay)
	}

	if cfg.Smoke.URL == "" {
		return fmt.Errorf("smoke.url is required")
	}
	if cfg.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive, got %v", cfg.Schedule.Interval)
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, slackWebhookPrefix) {
			return fmt.Errorf("notification.webhook_url must start with %s", slackWebhookPrefix)
		}
	default:
		return fmt.Errorf("notification.type must be \"log\" or \"slack\", got %q", cfg.Notification.Type)
	}

	switch cfg.Log.Format {
	case "text", "json", "color":
	default:
		return fmt.Errorf("log.format must be text, json or color, got %q", cfg.Log.Format)
	}

	return nil
}

func validateBaseURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q: %w", field, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", field, raw)
	}
	return nil
}
