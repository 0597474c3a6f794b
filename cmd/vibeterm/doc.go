// Package main is the entry point for vibeterm, a terminal host that runs
// shells on pseudo-terminals and recovers command boundaries from their
// output.
//
// The server provides:
//   - REST API for starting, driving and ending shell sessions
//   - WebSocket streaming of live output
//   - Command history persisted to SQLite
//   - Prometheus metrics
//
// Configuration:
//   - YAML or TOML file (-config or VIBETERM_CONFIG)
//   - Environment variables (12-factor)
//   - CLI flags (override everything else)
//
// Usage:
//
//	# Serve on the default port
//	vibeterm -port 8000
//
//	# Development mode (colored logs, debug level)
//	vibeterm -dev
//
//	# List recorded sessions, then export one as zstd
//	vibeterm history -n 10
//	vibeterm export -format zstd -o . sess_01J...
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown; every shell is hung up and its
//     shell-integration directory removed
package main
