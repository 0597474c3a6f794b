package terminal

import (
	"errors"
	"fmt"
)

// Sentinel errors for the terminal package.
var (
	// ErrProvision matches creation failures in shell-integration setup.
	ErrProvision = errors.New("shell integration provisioning failed")
	// ErrSpawn matches creation failures allocating the PTY or starting the shell.
	ErrSpawn = errors.New("failed to start shell")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("terminal session is closed")
	// ErrWriterStopped is returned by WriteInput once the writer has exited.
	ErrWriterStopped = errors.New("terminal input writer stopped")
	// ErrInvalidSize is returned for a zero column or row count.
	ErrInvalidSize = errors.New("invalid terminal size")
)

// Op names the creation step that failed.
type Op string

const (
	OpProvision Op = "provision"
	OpSpawn     Op = "spawn"
)

// Error reports a failed session creation.
type Error struct {
	SessionID string
	Op        Op
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("terminal session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrProvision and ErrSpawn by step.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrProvision:
		return e.Op == OpProvision
	case ErrSpawn:
		return e.Op == OpSpawn
	}
	return false
}
