package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/judgecore/sandbox/verdict"
)

// Metrics holds the Prometheus collectors of the monitor. A nil *Metrics
// records nothing
type Metrics struct {
	Registry *prometheus.Registry

	Verdicts        *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	SpawnRetries    prometheus.Counter
	SystemErrors    prometheus.Counter
	ActiveSessions  prometheus.Gauge
	PeakMemoryBytes prometheus.Histogram
}

// NewMetrics creates the collectors on a dedicated registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,

		Verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judge",
				Name:      "verdicts_total",
				Help:      "Total number of test case verdicts by category.",
			},
			[]string{"category"},
		),

		SessionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "judge",
				Name:      "session_duration_seconds",
				Help:      "Duration of monitor sessions in seconds, comparison included.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),

		SpawnRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "judge",
				Name:      "spawn_retries_total",
				Help:      "Total number of retried spawn failures.",
			},
		),

		SystemErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "judge",
				Name:      "system_errors_total",
				Help:      "Total number of sessions ending in a system error.",
			},
		),

		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "judge",
				Name:      "active_sessions",
				Help:      "Number of sessions currently running.",
			},
		),

		PeakMemoryBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "judge",
				Name:      "peak_memory_bytes",
				Help:      "Peak memory of the judged programs.",
				Buckets:   prometheus.ExponentialBuckets(1<<20, 2, 12),
			},
		),
	}

	reg.MustRegister(
		m.Verdicts,
		m.SessionDuration,
		m.SpawnRetries,
		m.SystemErrors,
		m.ActiveSessions,
		m.PeakMemoryBytes,
	)
	return m
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) finished(v verdict.Verdict, d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.Verdicts.WithLabelValues(v.Category.String()).Inc()
	m.SessionDuration.Observe(d.Seconds())
	if v.Category == verdict.SystemError {
		m.SystemErrors.Inc()
	}
	if mem, ok := v.Usage.PeakMemory.Get(); ok {
		m.PeakMemoryBytes.Observe(float64(mem))
	}
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.SpawnRetries.Inc()
}
