package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel is a custom level below Debug for request/response bodies
// exchanged with the edge functions. Almost always filtered in production.
const TraceLevel = zapcore.DebugLevel - 1

// LevelFromString parses a level name as written in LOG_LEVEL. It accepts
// "trace" and "warning" on top of zap's names, in any case.
func LevelFromString(level string) (zapcore.Level, error) {
	switch level = strings.ToLower(strings.TrimSpace(level)); level {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
