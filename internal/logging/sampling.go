package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples entries below Error, so a burst of retry warnings
// from one failing model cannot flood the output. Errors always pass.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	return zapcore.NewTee(
		levelRange{Core: core, lo: zapcore.ErrorLevel, hi: zapcore.FatalLevel},
		zapcore.NewSamplerWithOptions(
			levelRange{Core: core, lo: TraceLevel, hi: zapcore.WarnLevel},
			cfg.Tick, cfg.Initial, cfg.Thereafter,
		),
	)
}

// levelRange passes entries with lo <= level <= hi to the wrapped core.
type levelRange struct {
	zapcore.Core
	lo, hi zapcore.Level
}

func (r levelRange) Enabled(lvl zapcore.Level) bool {
	return lvl >= r.lo && lvl <= r.hi && r.Core.Enabled(lvl)
}

func (r levelRange) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !r.Enabled(e.Level) {
		return ce
	}
	return r.Core.Check(e, ce)
}

func (r levelRange) With(fields []zapcore.Field) zapcore.Core {
	return levelRange{Core: r.Core.With(fields), lo: r.lo, hi: r.hi}
}
