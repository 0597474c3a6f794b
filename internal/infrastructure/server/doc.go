// Package server wires vibeterm together.
//
// NewServer builds, in order: the logger, metrics, the shell-integration
// provisioner (installing the bundled hook scripts), the optional SQLite
// session store, the session host and the Gin router with its middleware
// stack (recovery, metrics, CORS, rate limiting).
//
// Example Usage:
//
//	cfg, err := config.Load()
//	srv, err := server.NewServer(cfg)
//	go srv.Run()
//	...
//	srv.Shutdown(ctx)
package server
