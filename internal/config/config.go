// Package config provides configuration loading for contractd.
//
// Configuration is loaded from built-in defaults, an optional YAML file and
// environment variables, in increasing order of precedence. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete contractd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Supabase      SupabaseConfig      `koanf:"supabase"`
	Analysis      AnalysisConfig      `koanf:"analysis"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Store         StoreConfig         `koanf:"store"`
	Events        EventsConfig        `koanf:"events"`
	Workflow      WorkflowConfig      `koanf:"workflow"`
	Observability ObservabilityConfig `koanf:"observability"`
	Auth          AuthConfig          `koanf:"auth"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	BodyLimit       string        `koanf:"body_limit"` // echo size string, e.g. "30M"
}

// SupabaseConfig holds the Supabase project endpoint and keys.
type SupabaseConfig struct {
	URL            string        `koanf:"url"`
	AnonKey        Secret        `koanf:"anon_key"`
	ServiceRoleKey Secret        `koanf:"service_role_key"`
	RateLimit      float64       `koanf:"rate_limit"` // requests per second
	Burst          int           `koanf:"burst"`
	IngestTimeout  time.Duration `koanf:"ingest_timeout"`
	ExtractTimeout time.Duration `koanf:"extract_timeout"`
	AnalyzeTimeout time.Duration `koanf:"analyze_timeout"`
	RecordTimeout  time.Duration `koanf:"record_timeout"`
}

// AnalysisConfig controls the analysis retry and fallback chain.
type AnalysisConfig struct {
	DefaultModel    string          `koanf:"default_model"`
	FallbackModels  []string        `koanf:"fallback_models"`
	ReviewType      string          `koanf:"review_type"`
	MaxAttempts     int             `koanf:"max_attempts"`
	BaseBackoff     time.Duration   `koanf:"base_backoff"`
	MaxBackoff      time.Duration   `koanf:"max_backoff"`
	FallbackEnabled bool            `koanf:"fallback_enabled"`
	DeadlineReserve time.Duration   `koanf:"deadline_reserve"`
	Direct          DirectLLMConfig `koanf:"direct"`
}

// DirectLLMConfig configures the OpenAI-compatible provider used after all
// edge function models are exhausted.
type DirectLLMConfig struct {
	Enabled bool          `koanf:"enabled"`
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	APIKey  Secret        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// PipelineConfig holds review pipeline configuration.
type PipelineConfig struct {
	OutputDir         string `koanf:"output_dir"`
	Concurrency       int    `koanf:"concurrency"`
	MaxDocumentSizeMB int    `koanf:"max_document_size_mb"`
	StorageBucket     string `koanf:"storage_bucket"`
}

// StoreConfig holds local SQLite store configuration.
type StoreConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// EventsConfig holds NATS event publishing configuration.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// WorkflowConfig holds Temporal connection settings.
type WorkflowConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// ObservabilityConfig holds logging and OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	Insecure        bool   `koanf:"insecure"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
}

// AuthConfig holds API bearer tokens. No tokens disables authentication.
type AuthConfig struct {
	Tokens []Secret `koanf:"tokens"`
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Supabase URL is missing or not an absolute http(s) URL
//   - The anon key is actually a service_role key
//   - Analysis attempts or backoff are not positive
//   - Service name is empty (when telemetry is enabled)
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Supabase.URL == "" {
		return errors.New("supabase url is required")
	}
	u, err := url.Parse(c.Supabase.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid supabase url: %q", c.Supabase.URL)
	}
	if c.Supabase.AnonKey.SupabaseRole() == "service_role" {
		return errors.New("supabase anon key is a service_role key; set it as service_role_key instead")
	}
	if c.Supabase.RateLimit <= 0 {
		return errors.New("supabase rate limit must be positive")
	}

	if c.Analysis.MaxAttempts < 1 {
		return fmt.Errorf("analysis max attempts must be >= 1, got %d", c.Analysis.MaxAttempts)
	}
	if c.Analysis.BaseBackoff <= 0 || c.Analysis.MaxBackoff < c.Analysis.BaseBackoff {
		return errors.New("analysis backoff must be positive and max_backoff >= base_backoff")
	}
	if c.Analysis.DeadlineReserve < 0 {
		return errors.New("analysis deadline_reserve must not be negative")
	}
	if c.Analysis.Direct.Enabled && c.Analysis.Direct.Model == "" {
		return errors.New("analysis direct model required when direct provider is enabled")
	}

	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline concurrency must be >= 1, got %d", c.Pipeline.Concurrency)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}

// AuthTokens returns the configured API tokens as plain strings.
func (c *Config) AuthTokens() []string {
	tokens := make([]string, 0, len(c.Auth.Tokens))
	for _, t := range c.Auth.Tokens {
		if t.IsSet() {
			tokens = append(tokens, t.Value())
		}
	}
	return tokens
}
