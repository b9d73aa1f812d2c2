package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Metrics holds Prometheus metrics for review jobs.
type Metrics struct {
	JobsTotal     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
}

// DefaultMetrics registers the pipeline metrics on the default registry once.
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
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contractd",
				Subsystem: "pipeline",
				Name:      "jobs_total",
				Help:      "Review jobs by the stage they ended in",
			},
			[]string{"stage", "status"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "contractd",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of each review stage",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"stage"},
		),
	}
}

func (m *Metrics) job(stage, status string) {
	if m != nil {
		m.JobsTotal.WithLabelValues(stage, status).Inc()
	}
}

func (m *Metrics) stage(stage string, seconds float64) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(seconds)
	}
}
