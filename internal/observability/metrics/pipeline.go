package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks answering runs end to end. It registers on the
// shared HTTP registry so one /metrics endpoint serves both.
type PipelineMetrics struct {
	runTotal        *prometheus.CounterVec
	runDuration     prometheus.Histogram
	runAttempts     prometheus.Histogram
	runSources      prometheus.Histogram
	escalationTotal prometheus.Counter
	noEvidenceTotal prometheus.Counter
	supportRatio    prometheus.Histogram
}

func NewPipelineMetrics(registry *prometheus.Registry) *PipelineMetrics {
	m := &PipelineMetrics{
		runTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Completed answering runs by final assessment label.",
		}, []string{"label"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a full answering run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}),
		runAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_attempts",
			Help:      "Retrieval attempts consumed per run.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		runSources: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_sources",
			Help:      "Evidence passages cited per run.",
			Buckets:   []float64{0, 1, 2, 4, 6, 8, 12, 16},
		}),
		escalationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "escalations_total",
			Help:      "Runs that fell back to web search.",
		}),
		noEvidenceTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "no_evidence_total",
			Help:      "Runs that finished without usable evidence.",
		}),
		supportRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "support_ratio",
			Help:      "Fraction of answer claims backed by the retrieved context.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}

	registry.MustRegister(
		m.runTotal,
		m.runDuration,
		m.runAttempts,
		m.runSources,
		m.escalationTotal,
		m.noEvidenceTotal,
		m.supportRatio,
	)

	return m
}

// ObserveRun records one finished run. Callers pass the final label verbatim
// so the cardinality stays at the three assessment values.
func (m *PipelineMetrics) ObserveRun(label string, attempts, sources int, escalated, noEvidence bool, supportRatio float64, duration time.Duration) {
	m.runTotal.WithLabelValues(label).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.runAttempts.Observe(float64(attempts))
	m.runSources.Observe(float64(sources))
	if escalated {
		m.escalationTotal.Inc()
	}
	if noEvidence {
		m.noEvidenceTotal.Inc()
	}
	m.supportRatio.Observe(supportRatio)
}
