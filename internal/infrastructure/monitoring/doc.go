/*
Package monitoring provides Prometheus metrics for vibeterm.

# Overview

Metrics covers the HTTP surface, the terminal sessions and the persistence
layer. Every Metrics value owns a private registry served by Handler.

# Features

- HTTP request metrics (latency, throughput, size) via Middleware
- Session lifecycle metrics (started, failed by step, ended by cause)
- PTY byte counters and boundary-marker counters by kind and drop reason
- Shell-integration cleanup failures
- Command outcomes and persistence errors
- WebSocket connection metrics

*Metrics also implements terminal.Observer, so sessions report their I/O
directly.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	sess, err := terminal.New(id, 80, 24, terminal.WithObserver(metrics))
*/
package monitoring
