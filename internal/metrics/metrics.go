// Package metrics exposes smoke run metrics in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amishk599/recsmoke/internal/model"
)

// Metrics holds the collectors for smoke runs and poll attempts.
type Metrics struct {
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	pollAttempts *prometheus.CounterVec
	lastRunOK    prometheus.Gauge
	lastRunUnix  prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsmoke_runs_total",
			Help: "Smoke runs by outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recsmoke_run_duration_seconds",
			Help:    "Wall time from enqueue to terminal status",
			Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 60, 120},
		}),
		pollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recsmoke_poll_attempts_total",
			Help: "Job status fetches, by result",
		}, []string{"result"}),
		lastRunOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recsmoke_last_run_success",
			Help: "1 if the most recent run completed, 0 otherwise",
		}),
		lastRunUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recsmoke_last_run_timestamp_seconds",
			Help: "Start time of the most recent run",
		}),
	}

	m.registry.MustRegister(m.runs, m.runDuration, m.pollAttempts, m.lastRunOK, m.lastRunUnix)
	return m
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(run model.Run) {
	m.runs.WithLabelValues(string(run.Outcome)).Inc()
	if run.Duration > 0 {
		m.runDuration.Observe(run.Duration.Seconds())
	}
	if run.Outcome == model.OutcomeCompleted {
		m.lastRunOK.Set(1)
	} else {
		m.lastRunOK.Set(0)
	}
	if !run.StartedAt.IsZero() {
		m.lastRunUnix.Set(float64(run.StartedAt.Unix()))
	}
}

// ObserveAttempt records one status fetch. It matches jobwait.AttemptHook.
func (m *Metrics) ObserveAttempt(_ string, _ int, _ string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.pollAttempts.WithLabelValues(result).Inc()
}

// Handler returns the HTTP handler for Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewServer returns an HTTP server exposing /metrics on addr.
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
