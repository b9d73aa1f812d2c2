package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.Equal(t, StateDisabled, tel.Status())
	assert.Empty(t, tel.Failures())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.Equal(t, StateDisabled, tel.Status())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := &Config{Enabled: true}

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"local insecure", func(c *Config) {}, ""},
		{"remote insecure", func(c *Config) { c.Endpoint = "otel.example.com:4317" }, "insecure connections"},
		{"remote tls", func(c *Config) {
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}, ""},
		{"loopback ipv6", func(c *Config) { c.Endpoint = "[::1]:4317" }, ""},
		{"http scheme", func(c *Config) {
			c.Protocol = "http/protobuf"
			c.Endpoint = "http://127.0.0.1:4318"
		}, ""},
		{"bad protocol", func(c *Config) { c.Protocol = "udp" }, "protocol"},
		{"bad sample rate", func(c *Config) { c.SampleRate = 2 }, "sample rate"},
		{"zero interval", func(c *Config) { c.ExportInterval = 0 }, "export interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromObservability(t *testing.T) {
	cfg := FromObservability(config.ObservabilityConfig{
		EnableTelemetry: true,
		ServiceName:     "contractd-dev",
		Endpoint:        "localhost:4318",
		Protocol:        "http/protobuf",
		Insecure:        true,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "contractd-dev", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.NoError(t, cfg.Validate())
}

func TestNewResource(t *testing.T) {
	res := newResource(NewDefaultConfig())

	var found bool
	for _, attr := range res.Attributes() {
		if attr.Key == "service.name" {
			assert.Equal(t, "contractd", attr.Value.AsString())
			found = true
		}
	}
	assert.True(t, found, "service.name attribute not found")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.LoggerProvider()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		tel.SetLoggerProvider(nil)
	})
	assert.Equal(t, StateDisabled, tel.Status())
	assert.Nil(t, tel.Failures())
}

func TestTelemetry_Degraded(t *testing.T) {
	// Enabled without starting exporters, as if both had failed.
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	tel := &Telemetry{config: cfg}
	assert.Equal(t, StateOK, tel.Status())
	assert.True(t, tel.IsEnabled())

	tel.fail("metrics", errors.New("connection refused"))
	assert.Equal(t, StateDegraded, tel.Status())
	assert.Equal(t, []string{"metrics: connection refused"}, tel.Failures())

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, tel.Status())
	assert.False(t, tel.IsEnabled())
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Installed globally, so code using otel.Tracer records into it
	_, span := otel.Tracer("contractd.test").Start(ctx, "analysis.Analyze")
	span.SetAttributes(attribute.String("model", "openai-gpt-5-nano"))
	span.End()

	require.NotNil(t, tt.SpanByName("analysis.Analyze"))
	assert.Nil(t, tt.SpanByName("missing"))
	tt.AssertSpanAttribute(t, "analysis.Analyze", "model", "openai-gpt-5-nano")
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tt := NewTestTelemetry(t)
	ctx := context.Background()

	counter, err := tt.Meter("contractd.test").Int64Counter("reviews.total")
	require.NoError(t, err)
	counter.Add(ctx, 2, metricOpt("stage", "ingest-contract"))
	counter.Add(ctx, 1, metricOpt("stage", "analyze-contract"))

	rm, err := tt.Collect(ctx)
	require.NoError(t, err)

	m, ok := FindMetric(rm, "reviews.total")
	require.True(t, ok)
	assert.Equal(t, int64(3), SumInt64(m))
	assert.Equal(t, int64(2), SumInt64(m, attribute.String("stage", "ingest-contract")))
}

func metricOpt(k, v string) metric.AddOption {
	return metric.WithAttributes(attribute.String(k, v))
}
