// Package config provides 12-factor configuration for vibeterm.
//
// Values come from Default, then an optional YAML or TOML file named by
// VIBETERM_CONFIG (or the -config flag), then environment variables. CLI
// flags in cmd/vibeterm override all of them.
//
// Configuration Sections:
//   - Server: listen address and allowed CORS origins
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//   - Terminal: shell, working directory, initial size, marker bound
//   - Integration: shell-integration directories
//   - Host: polling interval, scrollback, session cap, output recording
//   - Store: SQLite database location
//
// Environment Variables:
//   - PORT, HOST, CORS_ORIGINS
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - VIBE_SHELL, VIBE_WORKDIR, TERM_COLS, TERM_ROWS, MAX_MARKER_BYTES
//   - INTEGRATION_ROOT, INTEGRATION_SCRIPTS
//   - POLL_INTERVAL_MS, SCROLLBACK_BYTES, MAX_SESSIONS, RECORD_OUTPUT
//   - STORE_ENABLED, DB_PATH
package config
