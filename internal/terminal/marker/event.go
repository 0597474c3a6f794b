package marker

import (
	"strconv"
	"strings"
)

// Wire names of the marker kinds emitted by the shell hooks.
const (
	NameCommandStart = "CMD_START"
	NameCommandEnd   = "CMD_END"
	NameWorkingDir   = "CWD"
)

// ExitCodeUnknown is reported for a CMD_END marker whose payload is not a
// signed integer.
const ExitCodeUnknown = -1

// Kind classifies a decoded marker.
type Kind int

const (
	// Other is an authenticated marker of a kind this package does not interpret.
	Other Kind = iota
	// CommandStart carries the command line the shell is about to run.
	CommandStart
	// CommandEnd carries the exit status of the last command.
	CommandEnd
	// WorkingDir carries the shell's working directory at prompt time.
	WorkingDir
)

func (k Kind) String() string {
	switch k {
	case CommandStart:
		return "command_start"
	case CommandEnd:
		return "command_end"
	case WorkingDir:
		return "working_dir"
	default:
		return "other"
	}
}

// Event is one command-lifecycle notification decoded from the stream.
type Event struct {
	Kind Kind
	// Name is the marker kind exactly as it appeared on the wire.
	Name string
	// Payload is the undecoded payload. For CommandStart it is the command
	// text, for WorkingDir the directory.
	Payload  string
	ExitCode int
}

// Start returns the event a CMD_START marker with the given text decodes to.
func Start(command string) Event {
	return Event{Kind: CommandStart, Name: NameCommandStart, Payload: command}
}

// End returns the event a CMD_END marker with the given payload decodes to.
func End(payload string) Event {
	return Event{Kind: CommandEnd, Name: NameCommandEnd, Payload: payload, ExitCode: parseExitCode(payload)}
}

func decode(name, payload string) Event {
	switch name {
	case NameCommandStart:
		return Start(payload)
	case NameCommandEnd:
		return End(payload)
	case NameWorkingDir:
		return Event{Kind: WorkingDir, Name: name, Payload: payload}
	default:
		return Event{Kind: Other, Name: name, Payload: payload}
	}
}

func parseExitCode(payload string) int {
	code, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 32)
	if err != nil {
		return ExitCodeUnknown
	}
	return int(code)
}
