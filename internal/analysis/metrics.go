package analysis

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Metrics holds Prometheus metrics for the analysis service.
type Metrics struct {
	AttemptsTotal  *prometheus.CounterVec
	FallbacksTotal *prometheus.CounterVec
	ResultsTotal   *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
}

// DefaultMetrics registers the analysis metrics on the default registry
// once and returns them.
//
// Metrics:
//   - contractd_analysis_attempts_total{backend,model,outcome}
//   - contractd_analysis_fallbacks_total{reason}
//   - contractd_analysis_results_total{source}
//   - contractd_analysis_duration_seconds{source}
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics creates the metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contractd",
				Subsystem: "analysis",
				Name:      "attempts_total",
				Help:      "Analysis backend calls by outcome",
			},
			[]string{"backend", "model", "outcome"}, // success, retryable, fatal, invalid
		),
		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contractd",
				Subsystem: "analysis",
				Name:      "fallbacks_total",
				Help:      "Analyses that moved to a later step or to the canned fallback",
			},
			[]string{"reason"}, // next_model, exhausted
		),
		ResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contractd",
				Subsystem: "analysis",
				Name:      "results_total",
				Help:      "Analyses returned by source",
			},
			[]string{"source"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "contractd",
				Subsystem: "analysis",
				Name:      "duration_seconds",
				Help:      "End-to-end analysis duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 240, 480},
			},
			[]string{"source"},
		),
	}
}

func (m *Metrics) attempt(backend, model, outcome string) {
	if m != nil {
		m.AttemptsTotal.WithLabelValues(backend, model, outcome).Inc()
	}
}

func (m *Metrics) fallback(reason string) {
	if m != nil {
		m.FallbacksTotal.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) result(source string, seconds float64) {
	if m != nil {
		m.ResultsTotal.WithLabelValues(source).Inc()
		m.Duration.WithLabelValues(source).Observe(seconds)
	}
}
