package terminal

import (
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vibeterm/internal/terminal/integration"
	"github.com/GriffinCanCode/vibeterm/internal/terminal/marker"
)

const (
	defaultCols = 80
	defaultRows = 24

	readBufferSize = 8192
)

// Provisioner prepares and removes a session's shell start-up directory.
type Provisioner interface {
	Provision(sessionID, shell string) (*integration.Artifact, error)
	Cleanup(artifact *integration.Artifact) error
}

// Observer is told about session I/O. Methods are called from the worker
// goroutines and must not block.
type Observer interface {
	BytesRead(n int)
	BytesWritten(n int)
	EventDecoded(kind marker.Kind)
	MarkerDropped(reason marker.DropReason)
	CleanupFailed()
}

type nopObserver struct{}

func (nopObserver) BytesRead(int)                   {}
func (nopObserver) BytesWritten(int)                {}
func (nopObserver) EventDecoded(marker.Kind)        {}
func (nopObserver) MarkerDropped(marker.DropReason) {}
func (nopObserver) CleanupFailed()                  {}

type options struct {
	shell          string
	workingDir     string
	env            map[string]string
	provisioner    Provisioner
	logger         *zap.Logger
	observer       Observer
	maxMarkerBytes int
}

// Option configures New.
type Option func(*options)

// WithShell sets the shell executable. Empty means DefaultShell.
func WithShell(shell string) Option {
	return func(o *options) { o.shell = shell }
}

// WithWorkingDir sets the shell's initial directory.
func WithWorkingDir(dir string) Option {
	return func(o *options) { o.workingDir = dir }
}

// WithEnv adds environment variables for the shell.
func WithEnv(env map[string]string) Option {
	return func(o *options) { o.env = env }
}

// WithProvisioner sets the shell-integration provisioner.
func WithProvisioner(p Provisioner) Option {
	return func(o *options) { o.provisioner = p }
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver sets the I/O observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithMaxMarkerBytes bounds a single in-flight marker.
func WithMaxMarkerBytes(n int) Option {
	return func(o *options) { o.maxMarkerBytes = n }
}

func defaultOptions() options {
	return options{
		logger:         zap.NewNop(),
		observer:       nopObserver{},
		maxMarkerBytes: marker.DefaultMaxMarkerBytes,
	}
}

// DefaultShell returns zsh on macOS, otherwise $SHELL or /bin/bash.
func DefaultShell() string {
	if runtime.GOOS == "darwin" {
		return "/bin/zsh"
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/bash"
}

func defaultWorkingDir() string {
	if dir, err := os.Getwd(); err == nil {
		return dir
	}
	return "/"
}

func defaultProvisioner(logger *zap.Logger) (Provisioner, error) {
	cfg, err := integration.DefaultConfig()
	if err != nil {
		return nil, err
	}
	p, err := integration.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := p.Install(); err != nil {
		return nil, err
	}
	return p, nil
}
