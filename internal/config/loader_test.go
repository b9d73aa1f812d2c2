package config

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the config dir inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "contractd")
	require.NoError(t, os.MkdirAll(configDir, 0700))
	return configDir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "http://localhost:54321", cfg.Supabase.URL)
	assert.Equal(t, 240*time.Second, cfg.Supabase.AnalyzeTimeout)
	assert.Equal(t, "openai-gpt-5-nano", cfg.Analysis.DefaultModel)
	assert.Equal(t, []string{"openai-gpt-5-mini"}, cfg.Analysis.FallbackModels)
	assert.Equal(t, 3, cfg.Analysis.MaxAttempts)
	assert.True(t, cfg.Analysis.FallbackEnabled)
	assert.Equal(t, 15*time.Second, cfg.Analysis.DeadlineReserve)
	assert.Equal(t, "full_summary", cfg.Analysis.ReviewType)
	assert.Equal(t, "ingestions", cfg.Pipeline.StorageBucket)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `server:
  port: 8080
analysis:
  max_attempts: 5
  fallback_enabled: false
  fallback_models: [model-a, model-b]
supabase:
  url: https://project.supabase.co/
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Analysis.MaxAttempts)
	assert.False(t, cfg.Analysis.FallbackEnabled)
	assert.Equal(t, []string{"model-a", "model-b"}, cfg.Analysis.FallbackModels)
	assert.Equal(t, "https://project.supabase.co", cfg.Supabase.URL, "trailing slash trimmed")
	// untouched defaults survive
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `server:
  port: 8080
observability:
  service_name: yaml-service
`, 0600)

	t.Setenv("SERVER_PORT", "7777")
	t.Setenv("OBSERVABILITY_SERVICE_NAME", "env-service")
	t.Setenv("ANALYSIS_FALLBACK_MODELS", "m1,m2")
	t.Setenv("ANALYSIS_DIRECT_MODEL", "gpt-test")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "env-service", cfg.Observability.ServiceName)
	assert.Equal(t, []string{"m1", "m2"}, cfg.Analysis.FallbackModels)
	assert.Equal(t, "gpt-test", cfg.Analysis.Direct.Model)
}

func TestLoadWithFile_SupabaseAliases(t *testing.T) {
	dir := setupTestHome(t)

	t.Setenv("VITE_SUPABASE_URL", "https://abc.supabase.co/")
	t.Setenv("VITE_SUPABASE_ANON_KEY", "anon-value")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-value")

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://abc.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "anon-value", cfg.Supabase.AnonKey.Value())
	assert.Equal(t, "service-value", cfg.Supabase.ServiceRoleKey.Value())
	assert.Equal(t, "[REDACTED]", cfg.Supabase.ServiceRoleKey.String())
}

func TestLoadWithFile_MissingFile(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  port: [unterminated\n", 0600)

	_, err := LoadWithFile(path)
	assert.Error(t, err)
}

func TestLoadWithFile_Validation(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  port: 99999\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
}

func TestLoadWithFile_PathTraversal(t *testing.T) {
	setupTestHome(t)

	_, err := LoadWithFile("../../../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be in ~/.config/contractd/ or /etc/contractd/")
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping permission test on Windows")
	}

	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  port: 9090\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure")
}

func TestLoadWithFile_FileTooLarge(t *testing.T) {
	dir := setupTestHome(t)
	large := bytes.Repeat([]byte("# comment line\n"), 150000)
	path := writeConfig(t, dir, string(large), 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "too large"), err.Error())
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER_PORT", "server.port"},
		{"SUPABASE_SERVICE_ROLE_KEY", "supabase.service_role_key"},
		{"ANALYSIS_MAX_ATTEMPTS", "analysis.max_attempts"},
		{"ANALYSIS_DIRECT_API_KEY", "analysis.direct.api_key"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad url", func(c *Config) { c.Supabase.URL = "ftp://x" }, "invalid supabase url"},
		{"empty url", func(c *Config) { c.Supabase.URL = "" }, "supabase url is required"},
		{"zero attempts", func(c *Config) { c.Analysis.MaxAttempts = 0 }, "max attempts"},
		{"inverted backoff", func(c *Config) { c.Analysis.MaxBackoff = time.Millisecond }, "backoff"},
		{"negative deadline reserve", func(c *Config) { c.Analysis.DeadlineReserve = -time.Second }, "deadline_reserve"},
		{"direct without model", func(c *Config) {
			c.Analysis.Direct.Enabled = true
			c.Analysis.Direct.Model = ""
		}, "direct model"},
		{"zero concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }, "concurrency"},
		{"service role as anon key", func(c *Config) { c.Supabase.AnonKey = testJWT(`{"role":"service_role"}`) }, "service_role"},
		{"anon key", func(c *Config) { c.Supabase.AnonKey = testJWT(`{"role":"anon"}`) }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
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

// testJWT builds an unsigned JWT-shaped key with the given claims.
func testJWT(claims string) Secret {
	enc := base64.RawURLEncoding
	return Secret(enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." +
		enc.EncodeToString([]byte(claims)) + ".c2lnbmF0dXJl")
}

func TestSecret_SupabaseRole(t *testing.T) {
	assert.Equal(t, "anon", testJWT(`{"iss":"supabase","role":"anon"}`).SupabaseRole())
	assert.Equal(t, "service_role", testJWT(`{"role":"service_role"}`).SupabaseRole())
	assert.Empty(t, Secret("sb_publishable_abc").SupabaseRole())
	assert.Empty(t, Secret("a.!!!.c").SupabaseRole())
	assert.Empty(t, Secret("").SupabaseRole())
}

func TestSecret_Fingerprint(t *testing.T) {
	fp := Secret("service-value").Fingerprint()
	assert.Len(t, fp, 8)
	assert.Equal(t, fp, Secret("service-value").Fingerprint())
	assert.NotEqual(t, fp, Secret("other-value").Fingerprint())
	assert.NotContains(t, fp, "service")
	assert.Empty(t, Secret("").Fingerprint())
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("eyJhbGciOi")
	assert.Equal(t, "[REDACTED]", s.String())
	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(b))
	assert.Equal(t, "eyJhbGciOi", s.Value())
	assert.False(t, Secret("").IsSet())
}
