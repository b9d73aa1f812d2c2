package logging

import (
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// bridgeName is the instrumentation scope of log records sent over OTLP.
const bridgeName = "github.com/fyrsmithlabs/contractd"

// newCore writes redacted entries to the configured streams and, when a
// provider is given, to the OTEL log bridge. Sampling wraps the result.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	var streams []zapcore.WriteSyncer
	if cfg.Output.Stdout {
		streams = append(streams, zapcore.Lock(os.Stdout))
	}
	if cfg.Output.Stderr {
		streams = append(streams, zapcore.Lock(os.Stderr))
	}

	var cores []zapcore.Core
	if len(streams) > 0 {
		enc, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(streams...), cfg.Level))
	}
	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore(bridgeName, otelzap.WithLoggerProvider(otelProvider)))
	}

	switch len(cores) {
	case 0:
		return nil, errors.New("at least one output must be enabled and available")
	case 1:
		return newSampledCore(cores[0], cfg.Sampling), nil
	}
	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}
