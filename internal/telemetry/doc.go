// Package telemetry provides OpenTelemetry tracing and metrics for contractd.
//
// New installs global tracer and meter providers exporting over OTLP (gRPC
// or HTTP/protobuf). Instrumented packages call otel.Tracer and otel.Meter
// and never see this package. Telemetry is disabled by default; an exporter
// that fails to start leaves its signal on the no-op provider and Status
// reports "degraded" on the status endpoint.
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Tests use NewTestTelemetry for in-memory spans and metrics.
package telemetry
