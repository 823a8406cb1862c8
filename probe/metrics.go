package probe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the preflight check.
type Metrics struct {
	Registry      *prometheus.Registry
	ChecksTotal   *prometheus.CounterVec
	CheckDuration prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	checks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punter_probe_checks_total",
			Help: "Preflight checks of the System Builder login page by result.",
		},
		[]string{"result"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "punter_probe_duration_seconds",
			Help:    "Latency of the preflight request.",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(checks, duration)

	return &Metrics{
		Registry:      registry,
		ChecksTotal:   checks,
		CheckDuration: duration,
	}
}

// IncCheck records one check outcome.
func (m *Metrics) IncCheck(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(result).Inc()
	m.CheckDuration.Observe(d.Seconds())
}
