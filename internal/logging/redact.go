package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/contractd/internal/config"
)

const redacted = "[REDACTED]"

// Secret logs a configured key by fingerprint, so two processes can be
// checked for using the same Supabase key without printing it.
func Secret(key string, val config.Secret) zap.Field {
	if !val.IsSet() {
		return zap.String(key, "[UNSET]")
	}
	return zap.String(key, "[REDACTED:"+val.Fingerprint()+"]")
}

// RedactingEncoder wraps a zapcore.Encoder. It hides values under
// credential-like keys or matching a pattern, and truncates long strings
// such as edge function error bodies that echo contract text.
type RedactingEncoder struct {
	zapcore.Encoder
	enabled  bool
	keys     []string
	patterns []*regexp.Regexp
	maxValue int
}

// NewRedactingEncoder wraps an encoder with redaction rules. A disabled
// config returns a pass-through encoder.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}

	keys := make([]string, 0, len(cfg.Fields))
	for _, f := range cfg.Fields {
		keys = append(keys, strings.ToLower(f))
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		if len(p) > 200 {
			return nil, fmt.Errorf("redaction pattern too long (max 200 chars): %q", p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &RedactingEncoder{
		Encoder:  base,
		enabled:  true,
		keys:     keys,
		patterns: patterns,
		maxValue: cfg.MaxValueBytes,
	}, nil
}

// sensitive matches the key itself or a key ending in "_<field>" or
// ".<field>", so "supabase.anon_key" and "edge_authorization" are caught.
func (e *RedactingEncoder) sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, k := range e.keys {
		if key == k || strings.HasSuffix(key, "_"+k) || strings.HasSuffix(key, "."+k) {
			return true
		}
	}
	return false
}

func (e *RedactingEncoder) clean(val string) string {
	for _, re := range e.patterns {
		if re.MatchString(val) {
			return "[REDACTED:pattern]"
		}
	}
	if e.maxValue > 0 && len(val) > e.maxValue {
		n := e.maxValue
		for n > 0 && !utf8.RuneStart(val[n]) {
			n--
		}
		return val[:n] + "...[truncated " + strconv.Itoa(len(val)-n) + " bytes]"
	}
	return val
}

func binaryPlaceholder(n int) string {
	return "[BINARY:" + strconv.Itoa(n) + " bytes]"
}

// field rewrites one field. Raw bytes are never written since uploaded
// documents travel as []byte.
func (e *RedactingEncoder) field(f zapcore.Field) zapcore.Field {
	switch f.Type {
	case zapcore.NamespaceType, zapcore.SkipType:
		return f
	}
	if e.sensitive(f.Key) {
		return zap.String(f.Key, redacted)
	}
	switch f.Type {
	case zapcore.StringType:
		f.String = e.clean(f.String)
	case zapcore.ByteStringType:
		if b, ok := f.Interface.([]byte); ok {
			return zap.String(f.Key, e.clean(string(b)))
		}
	case zapcore.BinaryType:
		if b, ok := f.Interface.([]byte); ok {
			return zap.String(f.Key, binaryPlaceholder(len(b)))
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			if msg := err.Error(); e.clean(msg) != msg {
				return zap.String(f.Key, e.clean(msg))
			}
		}
	}
	return f
}

// EncodeEntry redacts per-call fields. The wrapped encoder adds them to its
// own clone, bypassing the Add methods below.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if !e.enabled {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = e.field(f)
	}
	for _, re := range e.patterns {
		if re.MatchString(ent.Message) {
			ent.Message = re.ReplaceAllString(ent.Message, redacted)
		}
	}
	return e.Encoder.EncodeEntry(ent, out)
}

// The Add methods cover fields attached with Logger.With.

func (e *RedactingEncoder) AddString(key, val string) {
	if !e.enabled {
		e.Encoder.AddString(key, val)
		return
	}
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddString(key, e.clean(val))
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if !e.enabled {
		e.Encoder.AddByteString(key, val)
		return
	}
	e.AddString(key, string(val))
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if !e.enabled {
		e.Encoder.AddBinary(key, val)
		return
	}
	e.Encoder.AddString(key, binaryPlaceholder(len(val)))
}

func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.enabled && e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.enabled && e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.enabled && e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone keeps the rules; only the wrapped encoder carries state.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	c := *e
	c.Encoder = e.Encoder.Clone()
	return &c
}
