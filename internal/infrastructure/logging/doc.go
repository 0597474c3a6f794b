// Package logging builds the zap loggers used across vibeterm.
//
// Production mode writes JSON, development mode writes coloured console
// lines. Packages below the server take a plain *zap.Logger; Logger adds a
// runtime-adjustable level and per-session child loggers.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("addr", ":8000"))
//	sessLog := logger.Session(sessionID)
package logging
