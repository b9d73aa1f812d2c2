package logging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSecret(t *testing.T) {
	tl := NewTestLogger()
	key := config.Secret("eyJhbGciOiJIUzI1NiJ9")
	tl.Info(context.Background(), "supabase client ready",
		Secret("supabase_key", key),
		Secret("service_role_key", ""))

	tl.AssertField(t, "supabase client ready", "supabase_key", "[REDACTED:"+key.Fingerprint()+"]")
	tl.AssertField(t, "supabase client ready", "service_role_key", "[UNSET]")
	tl.AssertNoSecrets(t)
}

func encodeWith(t *testing.T, fields ...zap.Field) string {
	t.Helper()
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Unix(0, 0),
		Message: "edge function call",
	}, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestRedactingEncoder_FieldNames(t *testing.T) {
	out := encodeWith(t,
		zap.String("apikey", "anon-value"),
		zap.String("Authorization", "whatever"),
		zap.String("function", "analyze-contract"),
	)

	assert.NotContains(t, out, "anon-value")
	assert.NotContains(t, out, "whatever")
	assert.Contains(t, out, "analyze-contract")
}

func TestRedactingEncoder_Patterns(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"bearer", "Bearer abc.def.ghi"},
		{"jwt", "eyJhbGciOiJIUzI1NiIs.eyJyb2xlIjoiYW5vbiJ9"},
		{"encoded document", "PDF_FILE_BASE64:JVBERi0xLjQK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := encodeWith(t, zap.String("detail", tt.value))
			assert.Contains(t, out, "[REDACTED:pattern]")
			assert.NotContains(t, out, tt.value)
		})
	}
}

func TestRedactingEncoder_KeySuffix(t *testing.T) {
	out := encodeWith(t,
		zap.String("supabase.anon_key", "anon-value"),
		zap.String("edge_authorization", "auth-value"),
		zap.String("service_role_key", "role-value"),
		zap.String("tokenizer", "cl100k"),
	)

	assert.NotContains(t, out, "anon-value")
	assert.NotContains(t, out, "auth-value")
	assert.NotContains(t, out, "role-value")
	assert.Contains(t, out, "cl100k")
}

func TestRedactingEncoder_Truncation(t *testing.T) {
	body := strings.Repeat("a", 3000)
	out := encodeWith(t, zap.String("response", body))

	assert.NotContains(t, out, body)
	assert.Contains(t, out, "...[truncated 952 bytes]")

	out = encodeWith(t, zap.String("response", strings.Repeat("a", 2047)+strings.Repeat("ö", 500)))
	assert.Contains(t, out, "...[truncated 1000 bytes]")
	assert.NotContains(t, out, `\ufffd`)
}

func TestRedactingEncoder_Binary(t *testing.T) {
	out := encodeWith(t, zap.Binary("document", []byte("%PDF-1.4 contract")))

	assert.Contains(t, out, "[BINARY:17 bytes]")
	assert.NotContains(t, out, "contract")
}

func TestRedactingEncoder_ErrorField(t *testing.T) {
	out := encodeWith(t, zap.Error(errors.New("edge function rejected Bearer abc.def.ghi")))

	assert.NotContains(t, out, "abc.def.ghi")
	assert.Contains(t, out, "[REDACTED:pattern]")
}

func TestRedactingEncoder_Message(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "payload DOCX_FILE_BASE64:UEsDBBQ= rejected"}, nil)
	require.NoError(t, err)
	defer buf.Free()
	assert.NotContains(t, buf.String(), "UEsDBBQ")
	assert.Contains(t, buf.String(), "rejected")
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	child := enc.Clone()
	child.AddString("apikey", "anon-value")
	child.AddString("function", "extract-clauses")

	buf, err := child.EncodeEntry(zapcore.Entry{Message: "calling"}, nil)
	require.NoError(t, err)
	defer buf.Free()
	assert.NotContains(t, buf.String(), "anon-value")
	assert.Contains(t, buf.String(), "extract-clauses")
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{})
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, []zap.Field{zap.String("token", "visible")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "visible")
}

func TestRedactingEncoder_InvalidPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{
		Enabled:  true,
		Patterns: []string{"("},
	})
	assert.Error(t, err)
}
