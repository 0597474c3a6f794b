package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr())

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	// Terminal config
	assert.Empty(t, cfg.Terminal.Shell)
	assert.Equal(t, uint16(80), cfg.Terminal.Cols)
	assert.Equal(t, uint16(24), cfg.Terminal.Rows)
	assert.Equal(t, 4096, cfg.Terminal.MaxMarkerBytes)

	// Host and store config
	assert.Equal(t, 16, cfg.Host.PollIntervalMS)
	assert.False(t, cfg.Host.RecordOutput)
	assert.True(t, cfg.Store.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv(FileEnv, "")

	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":               "9000",
		"HOST":               "0.0.0.0",
		"CORS_ORIGINS":       "http://a.test,http://b.test",
		"LOG_LEVEL":          "debug",
		"LOG_DEV":            "true",
		"RATE_LIMIT_RPS":     "500",
		"RATE_LIMIT_BURST":   "1000",
		"RATE_LIMIT_ENABLED": "false",
		"VIBE_SHELL":         "/bin/bash",
		"TERM_COLS":          "132",
		"TERM_ROWS":          "50",
		"MAX_MARKER_BYTES":   "8192",
		"INTEGRATION_ROOT":   "/tmp/vibe/sessions",
		"POLL_INTERVAL_MS":   "50",
		"RECORD_OUTPUT":      "true",
		"DB_PATH":            "/tmp/vibe/test.db",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}
	t.Setenv(FileEnv, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)

	assert.Equal(t, "/bin/bash", cfg.Terminal.Shell)
	assert.Equal(t, uint16(132), cfg.Terminal.Cols)
	assert.Equal(t, uint16(50), cfg.Terminal.Rows)
	assert.Equal(t, 8192, cfg.Terminal.MaxMarkerBytes)

	assert.Equal(t, "/tmp/vibe/sessions", cfg.Integration.Root)
	assert.Empty(t, cfg.Integration.ScriptDir)

	assert.Equal(t, 50, cfg.Host.PollIntervalMS)
	assert.True(t, cfg.Host.RecordOutput)
	assert.Equal(t, "/tmp/vibe/test.db", cfg.Store.Path)
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("RATE_LIMIT_RPS", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
	assert.NotNil(t, LoadOrDefault())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vibeterm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
terminal:
  shell: /bin/zsh
  max_marker_bytes: 1024
host:
  record_output: true
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "unset keys keep defaults")
	assert.Equal(t, "/bin/zsh", cfg.Terminal.Shell)
	assert.Equal(t, 1024, cfg.Terminal.MaxMarkerBytes)
	assert.Equal(t, uint16(80), cfg.Terminal.Cols)
	assert.True(t, cfg.Host.RecordOutput)
	assert.Equal(t, 16, cfg.Host.PollIntervalMS)
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vibeterm.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[logging]
level = "warn"

[integration]
root = "/srv/vibe/sessions"
script_dir = "/srv/vibe/scripts"

[store]
enabled = false
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/srv/vibe/sessions", cfg.Integration.Root)
	assert.Equal(t, "/srv/vibe/scripts", cfg.Integration.ScriptDir)
	assert.False(t, cfg.Store.Enabled)
	assert.Equal(t, "8000", cfg.Server.Port)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vibeterm.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"7000\"\n"), 0o644))
	t.Setenv("PORT", "7100")
	t.Setenv(FileEnv, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7100", cfg.Server.Port)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "vibeterm.ini")
	require.NoError(t, os.WriteFile(ini, []byte("port=1"), 0o644))
	_, err = LoadFile(ini)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	broken := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(broken, []byte("[server\nport ="), 0o644))
	_, err = LoadFile(broken)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"zero cols", func(c *Config) { c.Terminal.Cols = 0 }},
		{"tiny marker bound", func(c *Config) { c.Terminal.MaxMarkerBytes = 8 }},
		{"zero poll interval", func(c *Config) { c.Host.PollIntervalMS = 0 }},
		{"zero scrollback", func(c *Config) { c.Host.ScrollbackBytes = 0 }},
		{"rate limit without burst", func(c *Config) { c.RateLimit.Burst = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	cfg := Default()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.Burst = 0
	assert.NoError(t, cfg.Validate())
}
