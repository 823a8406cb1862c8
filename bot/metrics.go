package bot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the bot.
type Metrics struct {
	Registry        *prometheus.Registry
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration prometheus.Histogram
	FallbacksTotal  *prometheus.CounterVec
	StepFailures    *prometheus.CounterVec
	ScanRoundsTotal prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	DownloadsTotal  prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punter_attempts_total",
			Help: "Bot attempts by outcome.",
		},
		[]string{"outcome"},
	)
	attemptDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "punter_attempt_duration_seconds",
			Help:    "Wall time of one bot attempt.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 900},
		},
	)
	fallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punter_step_fallbacks_total",
			Help: "Steps completed by a strategy other than the preferred one.",
		},
		[]string{"step", "strategy"},
	)
	stepFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punter_step_failures_total",
			Help: "Steps where every strategy failed.",
		},
		[]string{"step"},
	)
	scanRounds := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "punter_scan_rounds_total",
			Help: "File listing scan rounds performed.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punter_errors_total",
			Help: "Attempt failures by error type.",
		},
		[]string{"error_type"},
	)
	downloads := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "punter_downloads_total",
			Help: "Exports downloaded and verified on disk.",
		},
	)

	registry.MustRegister(attempts, attemptDuration, fallbacks, stepFailures, scanRounds, errorsTotal, downloads)

	return &Metrics{
		Registry:        registry,
		AttemptsTotal:   attempts,
		AttemptDuration: attemptDuration,
		FallbacksTotal:  fallbacks,
		StepFailures:    stepFailures,
		ScanRoundsTotal: scanRounds,
		ErrorsTotal:     errorsTotal,
		DownloadsTotal:  downloads,
	}
}

// IncAttempt records a finished attempt.
func (m *Metrics) IncAttempt(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
	m.AttemptDuration.Observe(d.Seconds())
}

// IncFallback records a step completed by a secondary strategy.
func (m *Metrics) IncFallback(step, strategy string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(step, strategy).Inc()
}

// IncStepFailure records a step where every strategy failed.
func (m *Metrics) IncStepFailure(step string) {
	if m == nil {
		return
	}
	m.StepFailures.WithLabelValues(step).Inc()
}

// IncScanRound increments the scan rounds counter.
func (m *Metrics) IncScanRound() {
	if m == nil {
		return
	}
	m.ScanRoundsTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncDownload increments the downloads counter.
func (m *Metrics) IncDownload() {
	if m == nil {
		return
	}
	m.DownloadsTotal.Inc()
}
