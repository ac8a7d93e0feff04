package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/scoring"
)

// Outcome label values for labdx_evaluations_total.
const (
	outcomeOK              = "ok"
	outcomeInvalid         = "invalid"
	outcomeNarrativeFailed = "narrative_failed"
)

// metrics is registered on a per-server registry so several servers (one per
// test) can coexist in a process.
type metrics struct {
	registry *prometheus.Registry

	evaluations       *prometheus.CounterVec
	flags             *prometheus.CounterVec
	narrativeDuration *prometheus.HistogramVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labdx_evaluations_total",
				Help: "Lab report submissions by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		flags: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labdx_risk_flags_total",
				Help: "Risk flags raised, by lab field",
			},
			[]string{"field"},
		),
		narrativeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labdx_narrative_duration_seconds",
				Help:    "Duration of the chat-completion call",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		m.evaluations,
		m.flags,
		m.narrativeDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) observeEvaluation(endpoint, outcome string) {
	m.evaluations.WithLabelValues(endpoint, outcome).Inc()
}

func (m *metrics) observeFlags(flags []scoring.Flag) {
	for field, n := range scoring.CountByField(flags) {
		m.flags.WithLabelValues(field).Add(float64(n))
	}
}

func (m *metrics) observeNarrative(d time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	m.narrativeDuration.WithLabelValues(status).Observe(d.Seconds())
}
