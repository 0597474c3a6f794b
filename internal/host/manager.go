package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/vibeterm/internal/shared/id"
	"github.com/GriffinCanCode/vibeterm/internal/store"
	"github.com/GriffinCanCode/vibeterm/internal/terminal"
	"github.com/GriffinCanCode/vibeterm/internal/terminal/marker"
)

var (
	// ErrSessionNotFound is returned for ids the host does not own.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when MaxSessions are already live.
	ErrTooManySessions = errors.New("too many sessions")
	// ErrShuttingDown is returned by Start after Shutdown has begun.
	ErrShuttingDown = errors.New("host is shutting down")
)

// Store is the persistence the host writes to. All methods are called from
// pump goroutines; failures are logged and counted, never returned to callers.
type Store interface {
	CreateSession(ctx context.Context, sessionID, cwd, shell string) (*store.Session, error)
	EndSession(ctx context.Context, sessionID string) error
	RecordEvent(ctx context.Context, sessionID, kind, data string) error
	CreateCommand(ctx context.Context, sessionID, input string) (string, error)
	EndCommand(ctx context.Context, sessionID string, exitCode int) (bool, error)
}

// Metrics receives host and session counters.
type Metrics interface {
	terminal.Observer
	SessionStarted()
	SessionFailed(op string)
	SessionEnded(cause string)
	CommandStarted()
	CommandCompleted(exitCode int)
	StoreError(op string)
}

// Config tunes the host.
type Config struct {
	PollInterval    time.Duration
	ScrollbackBytes int
	MaxSessions     int
	RecordOutput    bool

	// Defaults for sessions that do not name their own.
	Shell          string
	WorkingDir     string
	Cols           uint16
	Rows           uint16
	MaxMarkerBytes int
}

// DefaultConfig polls at roughly display rate.
func DefaultConfig() Config {
	return Config{
		PollInterval:    16 * time.Millisecond,
		ScrollbackBytes: 1 << 20,
		MaxSessions:     32,
		Cols:            80,
		Rows:            24,
		MaxMarkerBytes:  marker.DefaultMaxMarkerBytes,
	}
}

// StartOptions describes one session. Zero values take the host defaults.
type StartOptions struct {
	Shell      string            `json:"shell,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Cols       uint16            `json:"cols,omitempty"`
	Rows       uint16            `json:"rows,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

// SessionInfo is a live session as seen by the control surface.
type SessionInfo struct {
	terminal.Info
	// Cwd is the directory last reported by the shell's prompt hook.
	Cwd          string `json:"cwd,omitempty"`
	LastCommand  string `json:"last_command,omitempty"`
	LastExitCode *int   `json:"last_exit_code,omitempty"`
	Running      bool   `json:"running"`
}

// Manager owns the live sessions. For each one a pump goroutine drains the
// session's queues on a ticker, persists command boundaries, fills the
// scrollback buffer and relays output to subscribers.
type Manager struct {
	cfg         Config
	provisioner terminal.Provisioner
	store       Store
	metrics     Metrics
	logger      *zap.Logger

	sessions sync.Map // map[string]*entry

	mu       sync.Mutex
	live     int
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore enables persistence.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithMetrics sets the metrics sink. It also observes every session.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a host. The provisioner is shared by all sessions.
func NewManager(cfg Config, provisioner terminal.Provisioner, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ScrollbackBytes <= 0 {
		cfg.ScrollbackBytes = def.ScrollbackBytes
	}
	if cfg.MaxMarkerBytes <= 0 {
		cfg.MaxMarkerBytes = def.MaxMarkerBytes
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:         cfg,
		provisioner: provisioner,
		metrics:     nopMetrics{},
		logger:      zap.NewNop(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start spawns a session and begins pumping it.
func (m *Manager) Start(opts StartOptions) (*SessionInfo, error) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if m.cfg.MaxSessions > 0 && m.live >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	m.live++
	m.mu.Unlock()

	sessionID := id.NewSessionID().String()
	logger := m.logger.With(zap.String("session_id", sessionID))

	shell := firstNonEmpty(opts.Shell, m.cfg.Shell)
	sess, err := terminal.New(sessionID, firstNonZero(opts.Cols, m.cfg.Cols), firstNonZero(opts.Rows, m.cfg.Rows),
		terminal.WithShell(shell),
		terminal.WithWorkingDir(firstNonEmpty(opts.WorkingDir, m.cfg.WorkingDir)),
		terminal.WithEnv(opts.Env),
		terminal.WithProvisioner(m.provisioner),
		terminal.WithLogger(logger),
		terminal.WithObserver(m.metrics),
		terminal.WithMaxMarkerBytes(m.cfg.MaxMarkerBytes),
	)
	if err != nil {
		m.release()
		op := "unknown"
		var terr *terminal.Error
		if errors.As(err, &terr) {
			op = string(terr.Op)
		}
		m.metrics.SessionFailed(op)
		logger.Warn("Failed to start session", zap.Error(err))
		return nil, err
	}

	info := sess.Info()
	e := newEntry(sess, m.cfg.ScrollbackBytes)
	e.cwd = info.WorkingDir

	if m.store != nil {
		if _, err := m.store.CreateSession(m.ctx, sessionID, info.WorkingDir, info.Shell); err != nil {
			m.storeFailed(logger, "create_session", err)
		}
	}

	m.sessions.Store(sessionID, e)
	m.metrics.SessionStarted()

	m.wg.Add(1)
	go m.pump(e)

	logger.Info("Session started", zap.String("shell", info.Shell), zap.String("dir", info.WorkingDir))
	return e.info(), nil
}

// Write sends input to a session's shell.
func (m *Manager) Write(sessionID string, data []byte) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	if err := e.sess.WriteInput(data); err != nil {
		return err
	}
	if m.store != nil && len(data) > 0 {
		if err := m.store.RecordEvent(m.ctx, sessionID, store.KindInput, string(data)); err != nil {
			m.storeFailed(m.logger, "record_event", err)
		}
	}
	return nil
}

// Output returns the output buffered since the previous call.
func (m *Manager) Output(sessionID string) ([]byte, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.scrollback.ReadAll(), nil
}

// Resize changes a session's terminal size.
func (m *Manager) Resize(sessionID string, cols, rows uint16) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	return e.sess.Resize(cols, rows)
}

// End closes a session and removes it from the host.
func (m *Manager) End(sessionID string) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	m.finish(e, "closed")
	return nil
}

// Get returns one live session.
func (m *Manager) Get(sessionID string) (*SessionInfo, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.info(), nil
}

// List returns the live sessions, oldest first.
func (m *Manager) List() []SessionInfo {
	var out []SessionInfo
	m.sessions.Range(func(_, value any) bool {
		out = append(out, *value.(*entry).info())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Subscribe returns a channel of output chunks for a session, starting with
// a copy of the unread scrollback. The channel is closed when the session
// ends, when cancel is called, or when the subscriber falls too far behind.
func (m *Manager) Subscribe(sessionID string) (<-chan []byte, func(), error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel, ok := e.subscribe()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return ch, cancel, nil
}

// Shutdown ends every session and waits for the pumps to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()

	m.sessions.Range(func(_, value any) bool {
		m.finish(value.(*entry), "shutdown")
		return true
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	defer m.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) lookup(sessionID string) (*entry, error) {
	value, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return value.(*entry), nil
}

func (m *Manager) release() {
	m.mu.Lock()
	m.live--
	m.mu.Unlock()
}

// pump drains one session until it ends.
func (m *Manager) pump(e *entry) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			m.drain(e)
		case <-e.sess.Done():
			// The reader has closed the queues; one last drain sees everything.
			m.drain(e)
			m.finish(e, "exited")
			return
		}
	}
}

// drain moves everything queued in the session to the store, the scrollback
// and the subscribers. Events come first: a chunk's events are queued
// before the chunk.
func (m *Manager) drain(e *entry) {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	for _, ev := range e.sess.ReadEvents() {
		m.handleEvent(e, ev)
	}

	for {
		chunk, ok := e.sess.ReadOutput()
		if !ok {
			return
		}
		e.publish(chunk, m.logger)
		if m.store != nil && m.cfg.RecordOutput {
			if err := m.store.RecordEvent(m.ctx, e.id, store.KindOutput, string(chunk)); err != nil {
				m.storeFailed(m.logger, "record_event", err)
			}
		}
	}
}

// markerRecord is the data column of a persisted marker event.
type markerRecord struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Payload  string `json:"payload"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

func (m *Manager) handleEvent(e *entry, ev marker.Event) {
	rec := markerRecord{Kind: ev.Kind.String(), Name: ev.Name, Payload: ev.Payload}

	switch ev.Kind {
	case marker.CommandStart:
		e.commandStarted(ev.Payload)
		m.metrics.CommandStarted()
		if m.store != nil {
			if _, err := m.store.CreateCommand(m.ctx, e.id, ev.Payload); err != nil {
				m.storeFailed(m.logger, "create_command", err)
			}
		}
	case marker.CommandEnd:
		code := ev.ExitCode
		rec.ExitCode = &code
		e.commandEnded(code)
		m.metrics.CommandCompleted(code)
		if m.store != nil {
			if _, err := m.store.EndCommand(m.ctx, e.id, code); err != nil {
				m.storeFailed(m.logger, "end_command", err)
			}
		}
	case marker.WorkingDir:
		e.setCwd(ev.Payload)
	}

	if m.store == nil {
		return
	}
	data, err := sonic.MarshalString(rec)
	if err != nil {
		m.logger.Warn("Failed to encode marker event", zap.Error(err))
		return
	}
	if err := m.store.RecordEvent(m.ctx, e.id, store.KindMarker, data); err != nil {
		m.storeFailed(m.logger, "record_event", err)
	}
}

// finish tears a session down once. Cause labels the metric.
func (m *Manager) finish(e *entry, cause string) {
	e.endOnce.Do(func() {
		m.sessions.Delete(e.id)
		close(e.stop)

		_ = e.sess.Close()
		m.drain(e)
		e.closeSubscribers()

		if m.store != nil {
			if err := m.store.EndSession(m.ctx, e.id); err != nil {
				m.storeFailed(m.logger, "end_session", err)
			}
		}
		m.release()
		m.metrics.SessionEnded(cause)
		m.logger.Info("Session ended", zap.String("session_id", e.id), zap.String("cause", cause))
	})
}

func (m *Manager) storeFailed(logger *zap.Logger, op string, err error) {
	m.metrics.StoreError(op)
	if errors.Is(err, resilience.ErrOpen) || errors.Is(err, resilience.ErrTrialLimit) {
		logger.Debug("Persistence skipped", zap.String("op", op), zap.Error(err))
		return
	}
	logger.Warn("Persistence failed", zap.String("op", op), zap.Error(err))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...uint16) uint16 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

type nopMetrics struct{}

func (nopMetrics) BytesRead(int)                   {}
func (nopMetrics) BytesWritten(int)                {}
func (nopMetrics) EventDecoded(marker.Kind)        {}
func (nopMetrics) MarkerDropped(marker.DropReason) {}
func (nopMetrics) CleanupFailed()                  {}
func (nopMetrics) SessionStarted()                 {}
func (nopMetrics) SessionFailed(string)            {}
func (nopMetrics) SessionEnded(string)             {}
func (nopMetrics) CommandStarted()                 {}
func (nopMetrics) CommandCompleted(int)            {}
func (nopMetrics) StoreError(string)               {}
