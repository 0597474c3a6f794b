// Package host runs terminal sessions on behalf of the control surface.
//
// A Manager owns every live terminal.Session. Each session gets a pump
// goroutine that drains its output and event queues on a fixed tick:
//
//   - CMD_START markers open a command in the store, CMD_END markers close
//     the most recent open one, and every marker is logged as an event
//   - output goes to a bounded scrollback buffer and to live subscribers
//   - when the shell exits the session is closed and its record ended
//
// Persistence is optional and best effort. Store failures are logged and
// counted but never reach the caller. GuardStore puts a resilience.Breaker
// in front of the store so a broken database is skipped rather than retried
// on every tick.
package host
