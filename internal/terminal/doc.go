// Package terminal runs interactive shells on pseudo-terminals.
//
// Each Session owns a shell process, its PTY and two worker goroutines. The
// reader copies raw output into an output queue and, through a per-session
// marker.Parser, decodes authenticated boundary markers into an event queue.
// The writer drains an input queue into the PTY. Callers poll both output
// queues without blocking.
//
// Shell integration is provisioned before the shell starts and removed when
// the session is closed, whatever state the shell is in.
package terminal
