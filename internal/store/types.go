package store

import "time"

// Event kinds recorded by the session host.
const (
	KindOutput = "pty_out"
	KindInput  = "user_in"
	KindMarker = "marker"
)

// Session is one recorded terminal session.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Cwd       string     `json:"cwd"`
	Shell     string     `json:"shell"`
}

// Event is one recorded stream item: output, input or a decoded marker.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	TS        time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Data      string    `json:"data"`
}

// Command is one shell command delimited by start and end markers.
type Command struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Input     string     `json:"input"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Finished reports whether an end marker closed the command.
func (c Command) Finished() bool {
	return c.EndedAt != nil
}

// SessionSummary is a session with its command history.
type SessionSummary struct {
	Session
	CommandCount int       `json:"command_count"`
	Commands     []Command `json:"commands"`
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
