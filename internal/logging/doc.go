// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with:
//   - a custom Trace level (-2, below Debug) for edge function bodies
//   - stdout or stderr output, optionally teed to the OTEL log bridge
//   - context field injection (trace_id, request.id, ingestion.id, review.type)
//   - redaction of Supabase keys, bearer tokens and encoded documents
//   - level-aware sampling where errors are never sampled
//
// Log with context:
//
//	ctx = logging.WithIngestionID(ctx, id)
//	logger.Info(ctx, "analysis completed", zap.String("model", model))
package logging
