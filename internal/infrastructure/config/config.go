package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the variable that points Load at a config file.
const FileEnv = "VIBETERM_CONFIG"

var (
	// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported config file format")
	// ErrInvalid is wrapped by Validate failures.
	ErrInvalid = errors.New("invalid configuration")
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Logging     LogConfig         `yaml:"logging" toml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" toml:"rate_limit"`
	Terminal    TerminalConfig    `yaml:"terminal" toml:"terminal"`
	Integration IntegrationConfig `yaml:"integration" toml:"integration"`
	Host        HostConfig        `yaml:"host" toml:"host"`
	Store       StoreConfig       `yaml:"store" toml:"store"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string   `envconfig:"PORT" yaml:"port" toml:"port"`
	Host           string   `envconfig:"HOST" yaml:"host" toml:"host"`
	AllowedOrigins []string `envconfig:"CORS_ORIGINS" yaml:"allowed_origins" toml:"allowed_origins"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// TerminalConfig holds defaults for new terminal sessions.
type TerminalConfig struct {
	// Shell is the shell executable. Empty picks the platform default.
	Shell          string `envconfig:"VIBE_SHELL" yaml:"shell" toml:"shell"`
	WorkingDir     string `envconfig:"VIBE_WORKDIR" yaml:"working_dir" toml:"working_dir"`
	Cols           uint16 `envconfig:"TERM_COLS" yaml:"cols" toml:"cols"`
	Rows           uint16 `envconfig:"TERM_ROWS" yaml:"rows" toml:"rows"`
	MaxMarkerBytes int    `envconfig:"MAX_MARKER_BYTES" yaml:"max_marker_bytes" toml:"max_marker_bytes"`
}

// IntegrationConfig locates the shell-integration files. Empty paths fall
// back to ~/.vibecodings.
type IntegrationConfig struct {
	Root      string `envconfig:"INTEGRATION_ROOT" yaml:"root" toml:"root"`
	ScriptDir string `envconfig:"INTEGRATION_SCRIPTS" yaml:"script_dir" toml:"script_dir"`
}

// HostConfig tunes the session host's polling loop.
type HostConfig struct {
	PollIntervalMS  int  `envconfig:"POLL_INTERVAL_MS" yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	ScrollbackBytes int  `envconfig:"SCROLLBACK_BYTES" yaml:"scrollback_bytes" toml:"scrollback_bytes"`
	MaxSessions     int  `envconfig:"MAX_SESSIONS" yaml:"max_sessions" toml:"max_sessions"`
	RecordOutput    bool `envconfig:"RECORD_OUTPUT" yaml:"record_output" toml:"record_output"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Enabled bool `envconfig:"STORE_ENABLED" yaml:"enabled" toml:"enabled"`
	// Path is the SQLite database file. Empty means ~/.vibecodings/vibeterm.db.
	Path string `envconfig:"DB_PATH" yaml:"path" toml:"path"`
}

// Load builds configuration from defaults, the file named by VIBETERM_CONFIG
// if set, and then environment variables, later sources winning.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit config file. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			Host:           "127.0.0.1",
			AllowedOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Terminal: TerminalConfig{
			Cols:           80,
			Rows:           24,
			MaxMarkerBytes: 4096,
		},
		Host: HostConfig{
			PollIntervalMS:  16,
			ScrollbackBytes: 1 << 20,
			MaxSessions:     32,
		},
		Store: StoreConfig{
			Enabled: true,
		},
	}
}

// Validate checks the values other packages rely on.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port == "" {
		problems = append(problems, "server port is empty")
	}
	if c.Terminal.Cols == 0 || c.Terminal.Rows == 0 {
		problems = append(problems, "terminal size must be non-zero")
	}
	if c.Terminal.MaxMarkerBytes < 64 {
		problems = append(problems, "max marker bytes must be at least 64")
	}
	if c.Host.PollIntervalMS <= 0 {
		problems = append(problems, "poll interval must be positive")
	}
	if c.Host.ScrollbackBytes <= 0 {
		problems = append(problems, "scrollback must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		problems = append(problems, "rate limit needs positive rps and burst")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// overlay decodes a YAML or TOML file over the current values. Keys absent
// from the file keep their defaults.
func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
