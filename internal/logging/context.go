package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if id := IngestionIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("ingestion.id", id))
	}

	if rt := ReviewTypeFromContext(ctx); rt != "" {
		fields = append(fields, zap.String("review.type", rt))
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type ingestionCtxKey struct{}
type reviewTypeCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateID validates an identifier carried in context.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// WithIngestionID adds the contract ingestion ID to context.
// Invalid IDs are ignored rather than propagated into log fields.
func WithIngestionID(ctx context.Context, ingestionID string) context.Context {
	if validateID(ingestionID, "ingestionID") != nil {
		return ctx
	}
	return context.WithValue(ctx, ingestionCtxKey{}, ingestionID)
}

// IngestionIDFromContext extracts the ingestion ID from context.
func IngestionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ingestionCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithReviewType adds the review type (e.g. full_summary) to context.
func WithReviewType(ctx context.Context, reviewType string) context.Context {
	if validateID(reviewType, "reviewType") != nil {
		return ctx
	}
	return context.WithValue(ctx, reviewTypeCtxKey{}, reviewType)
}

// ReviewTypeFromContext extracts the review type from context.
func ReviewTypeFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(reviewTypeCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
