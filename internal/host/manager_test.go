package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/vibeterm/internal/store"
	"github.com/GriffinCanCode/vibeterm/internal/terminal"
	"github.com/GriffinCanCode/vibeterm/internal/terminal/integration"
	"github.com/GriffinCanCode/vibeterm/internal/terminal/marker"
)

const waitFor = 10 * time.Second

type fakeCommand struct {
	input    string
	exitCode *int
}

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]bool // id -> ended
	events   []store.Event
	commands map[string][]*fakeCommand
	failAll  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]bool),
		commands: make(map[string][]*fakeCommand),
	}
}

var errStoreDown = errors.New("store down")

func (f *fakeStore) CreateSession(_ context.Context, sessionID, cwd, shell string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStoreDown
	}
	f.sessions[sessionID] = false
	return &store.Session{ID: sessionID, Cwd: cwd, Shell: shell}, nil
}

func (f *fakeStore) EndSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	f.sessions[sessionID] = true
	return nil
}

func (f *fakeStore) RecordEvent(_ context.Context, sessionID, kind, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	f.events = append(f.events, store.Event{SessionID: sessionID, Kind: kind, Data: data})
	return nil
}

func (f *fakeStore) CreateCommand(_ context.Context, sessionID, input string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", errStoreDown
	}
	f.commands[sessionID] = append(f.commands[sessionID], &fakeCommand{input: input})
	return fmt.Sprintf("cmd_%d", len(f.commands[sessionID])), nil
}

func (f *fakeStore) EndCommand(_ context.Context, sessionID string, exitCode int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, errStoreDown
	}
	cmds := f.commands[sessionID]
	for i := len(cmds) - 1; i >= 0; i-- {
		if cmds[i].exitCode == nil {
			code := exitCode
			cmds[i].exitCode = &code
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ended(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[sessionID]
}

func (f *fakeStore) commandsOf(sessionID string) []fakeCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCommand
	for _, c := range f.commands[sessionID] {
		out = append(out, *c)
	}
	return out
}

func (f *fakeStore) eventsOf(sessionID, kind string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, ev := range f.events {
		if ev.SessionID == sessionID && ev.Kind == kind {
			out = append(out, ev.Data)
		}
	}
	return out
}

type fakeMetrics struct {
	nopMetrics
	mu          sync.Mutex
	started     int
	failed      []string
	ended       []string
	completed   []int
	storeErrors int
}

func (f *fakeMetrics) SessionStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeMetrics) SessionFailed(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, op)
}

func (f *fakeMetrics) SessionEnded(cause string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, cause)
}

func (f *fakeMetrics) CommandCompleted(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, code)
}

func (f *fakeMetrics) StoreError(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeErrors++
}

func (f *fakeMetrics) endedCauses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

func newTestManager(t *testing.T, cfg Config, opts ...Option) *Manager {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	base := t.TempDir()
	p, err := integration.New(integration.Config{
		Root:      filepath.Join(base, "sessions"),
		ScriptDir: filepath.Join(base, "scripts"),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Install())

	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = base
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}

	m := NewManager(cfg, p, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func secretOf(t *testing.T, m *Manager, sessionID string) string {
	t.Helper()
	e, err := m.lookup(sessionID)
	require.NoError(t, err)
	return e.sess.Secret()
}

func waitOutput(t *testing.T, m *Manager, sessionID, substr string) string {
	t.Helper()
	var out strings.Builder
	require.Eventually(t, func() bool {
		chunk, err := m.Output(sessionID)
		if err != nil {
			return false
		}
		out.Write(chunk)
		return strings.Contains(out.String(), substr)
	}, waitFor, 10*time.Millisecond, "output never contained %q", substr)
	return out.String()
}

func TestStartWriteOutput(t *testing.T) {
	fs := newFakeStore()
	m := newTestManager(t, Config{}, WithStore(fs))

	info, err := m.Start(StartOptions{Cols: 100, Rows: 30})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(info.ID, "sess_"))
	assert.Equal(t, 100, info.Cols)
	assert.Equal(t, "/bin/sh", info.Shell)

	require.NoError(t, m.Write(info.ID, []byte("echo host-$((6*7))\n")))
	waitOutput(t, m, info.ID, "host-42")

	assert.Equal(t, []string{"echo host-$((6*7))\n"}, fs.eventsOf(info.ID, store.KindInput))
	assert.Empty(t, fs.eventsOf(info.ID, store.KindOutput), "output is not recorded by default")
}

func TestPumpPersistsCommandLifecycle(t *testing.T) {
	fs := newFakeStore()
	metrics := &fakeMetrics{}
	m := newTestManager(t, Config{}, WithStore(fs), WithMetrics(metrics))

	info, err := m.Start(StartOptions{})
	require.NoError(t, err)
	secret := secretOf(t, m, info.ID)

	script := fmt.Sprintf(
		"printf '\\033]777;vibe;CMD_START;%[1]s;make test\\007'; printf '\\033]777;vibe;CMD_END;%[1]s;2\\007'; printf '\\033]777;vibe;CWD;%[1]s;/srv/app\\007'; echo pumped-$((1+1))\n",
		secret)
	require.NoError(t, m.Write(info.ID, []byte(script)))
	waitOutput(t, m, info.ID, "pumped-2")

	require.Eventually(t, func() bool {
		cmds := fs.commandsOf(info.ID)
		return len(cmds) == 1 && cmds[0].exitCode != nil
	}, waitFor, 10*time.Millisecond)

	cmds := fs.commandsOf(info.ID)
	assert.Equal(t, "make test", cmds[0].input)
	assert.Equal(t, 2, *cmds[0].exitCode)

	markers := fs.eventsOf(info.ID, store.KindMarker)
	require.Len(t, markers, 3)
	assert.Contains(t, markers[0], `"command_start"`)
	assert.Contains(t, markers[1], `"exit_code":2`)

	got, err := m.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "/srv/app", got.Cwd)
	assert.Equal(t, "make test", got.LastCommand)
	require.NotNil(t, got.LastExitCode)
	assert.Equal(t, 2, *got.LastExitCode)
	assert.False(t, got.Running)

	metrics.mu.Lock()
	assert.Equal(t, []int{2}, metrics.completed)
	metrics.mu.Unlock()
}

func TestForgedMarkersNotPersisted(t *testing.T) {
	fs := newFakeStore()
	m := newTestManager(t, Config{}, WithStore(fs))

	info, err := m.Start(StartOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Write(info.ID, []byte("printf '\\033]777;vibe;CMD_START;forged;rm -rf /\\007'; echo forged-$((1+1))\n")))
	waitOutput(t, m, info.ID, "forged-2")

	assert.Empty(t, fs.commandsOf(info.ID))
	assert.Empty(t, fs.eventsOf(info.ID, store.KindMarker))
}

func TestRecordOutput(t *testing.T) {
	fs := newFakeStore()
	m := newTestManager(t, Config{RecordOutput: true}, WithStore(fs))

	info, err := m.Start(StartOptions{})
	require.NoError(t, err)
	require.NoError(t, m.Write(info.ID, []byte("echo recorded-$((1+1))\n")))
	waitOutput(t, m, info.ID, "recorded-2")

	require.Eventually(t, func() bool {
		return strings.Contains(strings.Join(fs.eventsOf(info.ID, store.KindOutput), ""), "recorded-2")
	}, waitFor, 10*time.Millisecond)
}

func TestShellExitEndsSession(t *testing.T) {
	fs := newFakeStore()
	metrics := &fakeMetrics{}
	m := newTestManager(t, Config{}, WithStore(fs), WithMetrics(metrics))

	info, err := m.Start(StartOptions{})
	require.NoError(t, err)
	ch, _, err := m.Subscribe(info.ID)
	require.NoError(t, err)

	require.NoError(t, m.Write(info.ID, []byte("exit\n")))

	require.Eventually(t, func() bool {
		_, err := m.Get(info.ID)
		return errors.Is(err, ErrSessionNotFound)
	}, waitFor, 10*time.Millisecond)

	assert.True(t, fs.ended(info.ID))
	assert.Equal(t, []string{"exited"}, metrics.endedCauses())
	assert.Empty(t, m.List())

	// The subscription is closed once the session is gone.
	for range ch {
	}
}

func TestEndClosesSession(t *testing.T) {
	fs := newFakeStore()
	metrics := &fakeMetrics{}
	m := newTestManager(t, Config{}, WithStore(fs), WithMetrics(metrics))

	info, err := m.Start(StartOptions{})
	require.NoError(t, err)
	e, err := m.lookup(info.ID)
	require.NoError(t, err)
	dir := e.sess.ArtifactDir()

	require.NoError(t, m.End(info.ID))

	assert.NoDirExists(t, dir)
	assert.True(t, fs.ended(info.ID))
	assert.Equal(t, []string{"closed"}, metrics.endedCauses())

	assert.ErrorIs(t, m.End(info.ID), ErrSessionNotFound)
	assert.ErrorIs(t, m.Write(info.ID, []byte("x")), ErrSessionNotFound)
	_, err = m.Output(info.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Resize(info.ID, 80, 24), ErrSessionNotFound)
}

func TestResize(t *testing.T) {
	m := newTestManager(t, Config{})

	info, err := m.Start(StartOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Resize(info.ID, 120, 40))
	assert.ErrorIs(t, m.Resize(info.ID, 0, 40), terminal.ErrInvalidSize)

	got, err := m.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, got.Cols)
	assert.Equal(t, 40, got.Rows)
}

func TestStartFailureIsCounted(t *testing.T) {
	metrics := &fakeMetrics{}
	m := newTestManager(t, Config{MaxSessions: 1}, WithMetrics(metrics))

	_, err := m.Start(StartOptions{Shell: filepath.Join(t.TempDir(), "missing-shell")})
	require.Error(t, err)
	assert.ErrorIs(t, err, terminal.ErrSpawn)
	assert.Equal(t, []string{"spawn"}, metrics.failed)

	// The failed start did not use up the only slot.
	_, err = m.Start(StartOptions{})
	require.NoError(t, err)
}

func TestMaxSessions(t *testing.T) {
	m := newTestManager(t, Config{MaxSessions: 2})

	for i := 0; i < 2; i++ {
		_, err := m.Start(StartOptions{})
		require.NoError(t, err)
	}
	_, err := m.Start(StartOptions{})
	assert.ErrorIs(t, err, ErrTooManySessions)

	list := m.List()
	require.Len(t, list, 2)
	require.NoError(t, m.End(list[0].ID))

	_, err = m.Start(StartOptions{})
	assert.NoError(t, err)
}

func TestListIsOrdered(t *testing.T) {
	m := newTestManager(t, Config{})

	var ids []string
	for i := 0; i < 3; i++ {
		info, err := m.Start(StartOptions{})
		require.NoError(t, err)
		ids = append(ids, info.ID)
		time.Sleep(2 * time.Millisecond)
	}

	list := m.List()
	require.Len(t, list, 3)
	for i, info := range list {
		assert.Equal(t, ids[i], info.ID)
	}
}

func TestSubscribeReceivesBacklogAndLiveOutput(t *testing.T) {
	m := newTestManager(t, Config{})

	info, err := m.Start(StartOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Write(info.ID, []byte("echo before-$((1+1))\n")))
	require.Eventually(t, func() bool {
		e, _ := m.lookup(info.ID)
		return e != nil && strings.Contains(string(e.scrollback.Snapshot()), "before-2")
	}, waitFor, 10*time.Millisecond)

	ch, cancel, err := m.Subscribe(info.ID)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, m.Write(info.ID, []byte("echo after-$((1+1))\n")))

	var got strings.Builder
	deadline := time.After(waitFor)
	for !strings.Contains(got.String(), "after-2") {
		select {
		case chunk, ok := <-ch:
			require.True(t, ok)
			got.Write(chunk)
		case <-deadline:
			t.Fatalf("subscriber output: %q", got.String())
		}
	}
	assert.Contains(t, got.String(), "before-2")

	cancel()
	cancel()
}

func TestStoreFailuresAreNotSurfaced(t *testing.T) {
	fs := newFakeStore()
	fs.failAll = true
	metrics := &fakeMetrics{}
	m := newTestManager(t, Config{}, WithStore(fs), WithMetrics(metrics))

	info, err := m.Start(StartOptions{})
	require.NoError(t, err)
	require.NoError(t, m.Write(info.ID, []byte("echo still-works\n")))
	waitOutput(t, m, info.ID, "still-works")
	require.NoError(t, m.End(info.ID))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.GreaterOrEqual(t, metrics.storeErrors, 3)
}

func TestShutdown(t *testing.T) {
	fs := newFakeStore()
	m := newTestManager(t, Config{}, WithStore(fs))

	var ids []string
	for i := 0; i < 3; i++ {
		info, err := m.Start(StartOptions{})
		require.NoError(t, err)
		ids = append(ids, info.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.Empty(t, m.List())
	for _, sid := range ids {
		assert.True(t, fs.ended(sid), sid)
	}

	_, err := m.Start(StartOptions{})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestMarkerRecordForOtherKinds(t *testing.T) {
	fs := newFakeStore()
	m := newTestManager(t, Config{}, WithStore(fs))

	info, err := m.Start(StartOptions{})
	require.NoError(t, err)
	e, err := m.lookup(info.ID)
	require.NoError(t, err)

	m.handleEvent(e, marker.Event{Kind: marker.Other, Name: "PROMPT", Payload: "x"})

	markers := fs.eventsOf(info.ID, store.KindMarker)
	require.Len(t, markers, 1)
	assert.Contains(t, markers[0], `"name":"PROMPT"`)
	assert.NotContains(t, markers[0], "exit_code")
}
