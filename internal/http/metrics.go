package http

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contractd/internal/logging"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/contractd/internal/http"

// HTTPMetrics records request counts and latency per route, the size of
// uploaded contracts and the number of open event streams.
type HTTPMetrics struct {
	requests   metric.Int64Counter
	duration   metric.Float64Histogram
	uploadSize metric.Int64Histogram
	inflight   metric.Int64UpDownCounter
	streams    metric.Int64UpDownCounter
}

// NewHTTPMetrics creates instruments on the global meter provider.
func NewHTTPMetrics(logger *logging.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName), logger)
}

// newHTTPMetrics creates instruments on meter. An instrument that fails to
// register stays nil and is skipped when recording.
func newHTTPMetrics(meter metric.Meter, logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &HTTPMetrics{}
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	m.requests, err = meter.Int64Counter("contractd.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status class"),
		metric.WithUnit("{request}"))
	collect(err)

	// Reviews wait on three edge function calls, hence the long tail.
	m.duration, err = meter.Float64Histogram("contractd.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration, event streams excluded"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120))
	collect(err)

	m.uploadSize, err = meter.Int64Histogram("contractd.http.upload_size_bytes",
		metric.WithDescription("Size of contract uploads to the review endpoints"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(64<<10, 256<<10, 1<<20, 4<<20, 10<<20, 25<<20))
	collect(err)

	m.inflight, err = meter.Int64UpDownCounter("contractd.http.active_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"))
	collect(err)

	m.streams, err = meter.Int64UpDownCounter("contractd.http.event_streams",
		metric.WithDescription("Open review event streams"),
		metric.WithUnit("{stream}"))
	collect(err)

	if len(errs) > 0 {
		logger.Warn(context.Background(), "some http metrics are unavailable", zap.Error(errors.Join(errs...)))
	}
	return m
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()
			route := normalizePath(c.Path())

			if m.inflight != nil {
				m.inflight.Add(ctx, 1)
				defer m.inflight.Add(ctx, -1)
			}
			if req.Method == echo.POST && req.ContentLength > 0 && m.uploadSize != nil &&
				strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
				m.uploadSize.Record(ctx, req.ContentLength, metric.WithAttributes(attribute.String("route", route)))
			}

			err := next(c)
			// An unhandled error carries the status echo will write.
			status := c.Response().Status
			var he *echo.HTTPError
			if err != nil && errors.As(err, &he) {
				status = he.Code
			}

			attrs := metric.WithAttributes(
				attribute.String("method", req.Method),
				attribute.String("route", route),
				attribute.String("status_class", statusClass(status)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			streaming := strings.HasPrefix(c.Response().Header().Get(echo.HeaderContentType), "text/event-stream")
			if m.duration != nil && !streaming {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

// trackStream counts an open event stream until the returned func is called.
func (m *HTTPMetrics) trackStream(ctx context.Context) func() {
	if m == nil || m.streams == nil {
		return func() {}
	}
	m.streams.Add(ctx, 1)
	return func() { m.streams.Add(context.Background(), -1) }
}

// normalizePath maps a request onto a bounded label. Echo reports the
// route template (/api/v1/analyses/:ingestionId), so ids never reach the
// label; requests that matched no route share one.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
