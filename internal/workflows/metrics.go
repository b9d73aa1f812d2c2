package workflows

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/contractd/internal/workflows"

type activityMetrics struct {
	duration metric.Float64Histogram
	failures metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metrics     activityMetrics
)

// activityInstruments creates the instruments on first use, so a worker
// started after telemetry.New records into the installed provider. An
// instrument that fails to register stays nil.
func activityInstruments() *activityMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		metrics.duration, _ = meter.Float64Histogram(
			"contractd.workflows.activity.duration",
			metric.WithDescription("Duration of review activity executions"),
			metric.WithUnit("s"),
		)
		metrics.failures, _ = meter.Int64Counter(
			"contractd.workflows.activity.errors",
			metric.WithDescription("Review activity failures by error type; retryable failures have type \"retryable\""),
			metric.WithUnit("{error}"),
		)
	})
	return &metrics
}

// observe records an activity's duration and, when err is set, a failure
// labelled with its application error type.
func observe(ctx context.Context, activity string, start time.Time, err error) {
	m := activityInstruments()
	attrs := attribute.String("activity", activity)
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs))
	}
	if err == nil || m.failures == nil {
		return
	}
	kind := errorType(err)
	if kind == "" {
		kind = "retryable"
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attrs, attribute.String("error_type", kind)))
}
