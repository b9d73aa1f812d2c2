package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// defaultsYAML is loaded first so that file and environment only need to
// carry overrides. Booleans that default to true can still be turned off.
const defaultsYAML = `
server:
  host: 0.0.0.0
  port: 9191
  shutdown_timeout: 10s
  body_limit: 30M
supabase:
  url: http://localhost:54321
  rate_limit: 5
  burst: 5
  record_timeout: 60s
  ingest_timeout: 180s
  extract_timeout: 180s
  analyze_timeout: 240s
analysis:
  default_model: openai-gpt-5-nano
  fallback_models:
    - openai-gpt-5-mini
  review_type: full_summary
  max_attempts: 3
  base_backoff: 1s
  max_backoff: 8s
  fallback_enabled: true
  deadline_reserve: 15s
  direct:
    enabled: false
    base_url: https://api.openai.com/v1
    model: gpt-4o-mini
    timeout: 120s
pipeline:
  output_dir: /tmp
  concurrency: 2
  max_document_size_mb: 25
  storage_bucket: ingestions
store:
  enabled: true
  path: ~/.config/contractd/contractd.db
events:
  enabled: false
  url: nats://localhost:4222
workflow:
  host_port: localhost:7233
  namespace: default
  task_queue: contract-review
observability:
  enable_telemetry: false
  service_name: contractd
  endpoint: localhost:4317
  protocol: grpc
  insecure: true
  log_level: info
  log_format: json
`

// envAliases maps the environment names used by the web frontend and the
// Supabase tooling onto config keys. The first set variable wins.
var envAliases = map[string][]string{
	"supabase.url":              {"SUPABASE_URL", "VITE_SUPABASE_URL"},
	"supabase.anon_key":         {"SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY"},
	"supabase.service_role_key": {"SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_SERVICE_KEY"},
}

// knownSections limits the environment provider to variables that can map
// onto configuration, so unrelated variables like PATH never reach koanf.
var knownSections = []string{
	"SERVER_", "SUPABASE_", "ANALYSIS_", "PIPELINE_", "STORE_",
	"EVENTS_", "WORKFLOW_", "OBSERVABILITY_", "AUTH_",
}

// Default returns the built-in configuration without consulting files or
// the environment.
func Default() *Config {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider([]byte(defaultsYAML)), yaml.Parser()); err != nil {
		panic(fmt.Sprintf("config: invalid built-in defaults: %v", err))
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		panic(fmt.Sprintf("config: invalid built-in defaults: %v", err))
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)
	return &cfg
}

// LoadWithFile loads configuration from YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, SUPABASE_ANON_KEY, ANALYSIS_MAX_ATTEMPTS, etc.)
//  2. YAML config file (~/.config/contractd/config.yaml)
//  3. Built-in defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses default path.
//
// # Security Considerations
//
// The configuration file MUST have 0600 or 0400 permissions, MUST live under
// ~/.config/contractd/ or /etc/contractd/, and MUST NOT exceed 1MB.
//
// # Environment Variable Mapping
//
// Environment variables split on the first underscore:
//
//	SERVER_PORT -> server.port
//	ANALYSIS_FALLBACK_MODELS -> analysis.fallback_models (comma separated)
//	SUPABASE_SERVICE_ROLE_KEY -> supabase.service_role_key
//
// VITE_SUPABASE_URL, VITE_SUPABASE_ANON_KEY and SUPABASE_SERVICE_KEY are
// accepted as aliases.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaultsYAML)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "contractd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}
	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate through the descriptor to avoid a TOCTOU race
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, names := range envAliases {
		for _, name := range names {
			if v := os.Getenv(name); v != "" {
				if err := k.Set(key, v); err != nil {
					return nil, fmt.Errorf("failed to apply %s: %w", name, err)
				}
				break
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Supabase.URL = strings.TrimRight(cfg.Supabase.URL, "/")
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Pipeline.OutputDir = expandHome(cfg.Pipeline.OutputDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps SECTION_FIELD_NAME to section.field_name. Variables outside
// the known sections return "" and are skipped by koanf.
func envKey(s string) string {
	matched := false
	for _, prefix := range knownSections {
		if strings.HasPrefix(s, prefix) {
			matched = true
			break
		}
	}
	if !matched {
		return ""
	}

	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}

	// analysis.direct.* is the only nested section
	if parts[0] == "analysis" && strings.HasPrefix(parts[1], "direct_") {
		return "analysis.direct." + strings.TrimPrefix(parts[1], "direct_")
	}

	return parts[0] + "." + parts[1]
}

// EnsureConfigDir creates the contractd config directory if it doesn't exist.
// The directory is created with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "contractd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Follow symlinks so they cannot escape the allowed directories
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "contractd"),
		"/etc/contractd",
	}

	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/contractd/ or /etc/contractd/")
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor to avoid TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
