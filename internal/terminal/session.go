package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vibeterm/internal/shared/queue"
	"github.com/GriffinCanCode/vibeterm/internal/terminal/integration"
	"github.com/GriffinCanCode/vibeterm/internal/terminal/marker"
)

// workerGrace bounds how long Close waits for the workers to notice teardown.
const workerGrace = 2 * time.Second

// Session is one shell running on a pseudo-terminal.
//
// A reader goroutine copies PTY output into the output queue and feeds it to
// a private marker.Parser; a writer goroutine drains the input queue into the
// PTY. The exported methods only touch those queues and may be called from
// any goroutine.
type Session struct {
	id         string
	shell      string
	workingDir string
	startedAt  time.Time

	cmd  *exec.Cmd
	ptmx *os.File

	artifact    *integration.Artifact
	provisioner Provisioner

	output *queue.Queue[[]byte]
	events *queue.Queue[marker.Event]
	input  *queue.Queue[[]byte]

	readerDone chan struct{}
	writerDone chan struct{}

	mu        sync.RWMutex
	cols      uint16
	rows      uint16
	closed    bool
	closeOnce sync.Once

	logger   *zap.Logger
	observer Observer
}

// Info is a snapshot of a session's public state.
type Info struct {
	ID         string    `json:"id"`
	Shell      string    `json:"shell"`
	WorkingDir string    `json:"working_dir"`
	Cols       int       `json:"cols"`
	Rows       int       `json:"rows"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Active     bool      `json:"active"`
}

// New provisions shell integration for sessionID, starts the shell on a new
// PTY of the given size and launches the reader and writer goroutines.
// Failures are reported as *Error; nothing is left running or on disk.
func New(sessionID string, cols, rows uint16, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(zap.String("session_id", sessionID))

	if cols == 0 {
		cols = defaultCols
	}
	if rows == 0 {
		rows = defaultRows
	}

	shell := o.shell
	if shell == "" {
		shell = DefaultShell()
	}
	workingDir := o.workingDir
	if workingDir == "" {
		workingDir = defaultWorkingDir()
	}

	provisioner := o.provisioner
	if provisioner == nil {
		p, err := defaultProvisioner(logger)
		if err != nil {
			return nil, &Error{SessionID: sessionID, Op: OpProvision, Err: err}
		}
		provisioner = p
	}

	artifact, err := provisioner.Provision(sessionID, shell)
	if err != nil {
		return nil, &Error{SessionID: sessionID, Op: OpProvision, Err: err}
	}

	cmd := exec.Command(shell, artifact.Args()...)
	cmd.Dir = workingDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	for key, value := range o.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}
	// Last duplicate wins: caller env cannot displace the integration.
	cmd.Env = append(cmd.Env, artifact.Env()...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		if cleanErr := provisioner.Cleanup(artifact); cleanErr != nil {
			logger.Error("Failed to remove shell integration after spawn failure", zap.Error(cleanErr))
			o.observer.CleanupFailed()
		}
		return nil, &Error{SessionID: sessionID, Op: OpSpawn, Err: err}
	}

	s := &Session{
		id:          sessionID,
		shell:       shell,
		workingDir:  workingDir,
		startedAt:   time.Now(),
		cmd:         cmd,
		ptmx:        ptmx,
		artifact:    artifact,
		provisioner: provisioner,
		output:      queue.New[[]byte](),
		events:      queue.New[marker.Event](),
		input:       queue.New[[]byte](),
		readerDone:  make(chan struct{}),
		writerDone:  make(chan struct{}),
		cols:        cols,
		rows:        rows,
		logger:      logger,
		observer:    o.observer,
	}

	parser := marker.New(artifact.Secret,
		marker.WithMaxMarkerBytes(o.maxMarkerBytes),
		marker.WithDropHook(o.observer.MarkerDropped),
	)
	go s.readLoop(parser)
	go s.writeLoop()

	logger.Info("Spawned shell",
		zap.String("shell", shell),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("integration", string(artifact.Flavor)),
	)
	return s, nil
}

// readLoop copies PTY output to the output queue and decoded markers to the
// event queue until the PTY reports end of stream or an error.
func (s *Session) readLoop(parser *marker.Parser) {
	defer close(s.readerDone)
	defer s.output.Close()
	defer s.events.Close()

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.observer.BytesRead(n)

			// Events for a chunk are queued before the chunk itself. Only this
			// goroutine closes events and output, so Push cannot fail here.
			for _, ev := range parser.Feed(chunk) {
				s.observer.EventDecoded(ev.Kind)
				_ = s.events.Push(ev)
			}
			_ = s.output.Push(chunk)
		}

		switch {
		case err == nil && n == 0:
			s.logger.Debug("PTY reader: end of stream")
			return
		case err == nil:
		case isEndOfStream(err):
			s.logger.Debug("PTY reader: end of stream", zap.Error(err))
			return
		default:
			s.logger.Warn("PTY reader error", zap.Error(err))
			return
		}
	}
}

// writeLoop writes each queued input buffer in full, in order.
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	defer s.input.Close()

	for {
		data, ok := s.input.Pop()
		if !ok {
			return
		}
		if _, err := s.ptmx.Write(data); err != nil {
			s.logger.Warn("PTY writer error", zap.Error(err))
			return
		}
		s.observer.BytesWritten(len(data))
	}
}

// WriteInput queues data for the shell and returns without waiting for the
// write. It fails once the session is closed or the writer has stopped.
func (s *Session) WriteInput(data []byte) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if len(data) == 0 {
		return nil
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	if err := s.input.Push(buf); err != nil {
		return ErrWriterStopped
	}
	return nil
}

// ReadOutput returns the next output chunk, or false if none is queued.
// It never blocks.
func (s *Session) ReadOutput() ([]byte, bool) {
	return s.output.TryPop()
}

// ReadEvents returns every queued event in arrival order. It never blocks.
func (s *Session) ReadEvents() []marker.Event {
	return s.events.Drain()
}

// Resize changes the PTY geometry.
func (s *Session) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return ErrInvalidSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("failed to resize pty: %w", err)
	}
	s.cols, s.rows = cols, rows
	return nil
}

// Done is closed when the reader has stopped; no further output will arrive.
func (s *Session) Done() <-chan struct{} {
	return s.readerDone
}

// Close stops the shell, releases the PTY and removes the shell-integration
// directory. It is idempotent and always returns nil: cleanup failures are
// logged, not reported.
func (s *Session) Close() error {
	s.closeOnce.Do(s.teardown)
	return nil
}

func (s *Session) teardown() {
	s.mu.Lock()
	s.closed = true
	s.input.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGHUP)
	}
	if err := s.ptmx.Close(); err != nil {
		s.logger.Debug("Failed to close PTY", zap.Error(err))
	}
	s.mu.Unlock()

	s.waitWorkers()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}

	if err := s.provisioner.Cleanup(s.artifact); err != nil {
		s.logger.Error("Failed to remove shell integration", zap.String("dir", s.artifact.Dir), zap.Error(err))
		s.observer.CleanupFailed()
	}
	s.logger.Info("Terminal session closed")
}

func (s *Session) waitWorkers() {
	timeout := time.NewTimer(workerGrace)
	defer timeout.Stop()

	for _, done := range []chan struct{}{s.readerDone, s.writerDone} {
		select {
		case <-done:
		case <-timeout.C:
			s.logger.Warn("Terminal worker did not stop in time")
			return
		}
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Secret returns the marker secret shared with the shell hooks.
func (s *Session) Secret() string { return s.artifact.Secret }

// Shell returns the shell executable.
func (s *Session) Shell() string { return s.shell }

// ArtifactDir returns the shell-integration directory.
func (s *Session) ArtifactDir() string { return s.artifact.Dir }

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := !s.closed
	select {
	case <-s.readerDone:
		active = false
	default:
	}

	pid := 0
	if s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	return Info{
		ID:         s.id,
		Shell:      s.shell,
		WorkingDir: s.workingDir,
		Cols:       int(s.cols),
		Rows:       int(s.rows),
		PID:        pid,
		StartedAt:  s.startedAt,
		Active:     active,
	}
}

// isEndOfStream reports errors that mean the shell side of the PTY is gone.
// Linux reports EIO once the last slave descriptor closes.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EIO)
}
