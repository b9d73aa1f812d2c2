package logging

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry at trace level and above for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a Logger backed by an in-memory observer.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

func (t *TestLogger) All() []observer.LoggedEntry { return t.observed.All() }

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// FilterIngestion returns entries logged for one ingestion.
func (t *TestLogger) FilterIngestion(id string) *observer.ObservedLogs {
	return t.observed.FilterField(zap.String("ingestion.id", id))
}

func (t *TestLogger) Reset() { t.observed.TakeAll() }

// fieldValues flattens an entry's context the way an encoder would.
func fieldValues(entry observer.LoggedEntry) map[string]interface{} {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range entry.Context {
		f.AddTo(enc)
	}
	return enc.Fields
}

// AssertLogged fails unless an entry at level has a message containing msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if t.observed.FilterLevelExact(level).FilterMessageSnippet(msg).Len() == 0 {
		tb.Errorf("no %v entry containing %q in %s", level, msg, t.dump())
	}
}

// AssertNotLogged fails if an entry at level has a message containing msg.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if n := t.observed.FilterLevelExact(level).FilterMessageSnippet(msg).Len(); n > 0 {
		tb.Errorf("%d unexpected %v entries containing %q", n, level, msg)
	}
}

// AssertField fails unless an entry whose message contains msg carries
// key=expected. Values compare by their formatted form, so an int field
// matches expected 3 and a string field matches "3".
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	want := fmt.Sprint(expected)
	for _, entry := range t.observed.FilterMessageSnippet(msg).All() {
		if got, ok := fieldValues(entry)[key]; ok && fmt.Sprint(got) == want {
			return
		}
	}
	tb.Errorf("field %s=%v not found on %q in %s", key, expected, msg, t.dump())
}

// AssertIngestionCorrelation fails unless every entry containing msg was
// logged with ingestion.id set to id. Stage logs go through the ingestion
// context, so a missing ID means a stage dropped its context.
func (t *TestLogger) AssertIngestionCorrelation(tb testing.TB, msg, id string) {
	tb.Helper()
	entries := t.observed.FilterMessageSnippet(msg).All()
	if len(entries) == 0 {
		tb.Errorf("no entry containing %q", msg)
		return
	}
	for _, entry := range entries {
		if got := fieldValues(entry)["ingestion.id"]; got != id {
			tb.Errorf("entry %q has ingestion.id %v, want %q", entry.Message, got, id)
		}
	}
}

// AssertNoSecrets checks every entry against the default redaction rules.
// The observer sees fields before any encoder, so this catches call sites
// that log keys or document payloads without Secret or a placeholder.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	if err != nil {
		tb.Fatalf("default redaction rules: %v", err)
	}
	leaks := func(s string) bool {
		for _, re := range enc.patterns {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}

	for _, entry := range t.observed.All() {
		if leaks(entry.Message) {
			tb.Errorf("sensitive value in message %q", entry.Message)
		}
		for _, f := range entry.Context {
			switch {
			case f.Type == zapcore.BinaryType:
				tb.Errorf("raw bytes logged under %q", f.Key)
			case f.Type != zapcore.StringType:
			case enc.sensitive(f.Key) && f.String != "" && !strings.HasPrefix(f.String, "[REDACTED") && f.String != "[UNSET]":
				tb.Errorf("field %q not redacted", f.Key)
			case leaks(f.String):
				tb.Errorf("sensitive value in field %q", f.Key)
			}
		}
	}
}

func (t *TestLogger) dump() string {
	var b strings.Builder
	for _, e := range t.observed.All() {
		fmt.Fprintf(&b, "\n  %v %s %v", e.Level, e.Message, fieldValues(e))
	}
	return b.String()
}
