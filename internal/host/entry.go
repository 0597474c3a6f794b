package host

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vibeterm/internal/terminal"
)

// subscriberBuffer is how many chunks a subscriber may lag before it is
// disconnected.
const subscriberBuffer = 256

// entry is the host's state for one live session.
type entry struct {
	id         string
	sess       *terminal.Session
	scrollback *Buffer

	stop    chan struct{}
	endOnce sync.Once
	drainMu sync.Mutex

	mu           sync.Mutex
	cwd          string
	lastCommand  string
	lastExitCode *int
	running      bool
	subs         map[chan []byte]struct{}
	subsClosed   bool
}

func newEntry(sess *terminal.Session, scrollbackBytes int) *entry {
	return &entry{
		id:         sess.ID(),
		sess:       sess,
		scrollback: NewBuffer(scrollbackBytes),
		stop:       make(chan struct{}),
		subs:       make(map[chan []byte]struct{}),
	}
}

func (e *entry) info() *SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := &SessionInfo{
		Info:        e.sess.Info(),
		Cwd:         e.cwd,
		LastCommand: e.lastCommand,
		Running:     e.running,
	}
	if e.lastExitCode != nil {
		code := *e.lastExitCode
		info.LastExitCode = &code
	}
	return info
}

func (e *entry) setCwd(dir string) {
	e.mu.Lock()
	e.cwd = dir
	e.mu.Unlock()
}

func (e *entry) commandStarted(input string) {
	e.mu.Lock()
	e.lastCommand = input
	e.running = true
	e.mu.Unlock()
}

func (e *entry) commandEnded(code int) {
	e.mu.Lock()
	e.lastExitCode = &code
	e.running = false
	e.mu.Unlock()
}

func (e *entry) subscribe() (<-chan []byte, func(), bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subsClosed {
		return nil, nil, false
	}
	ch := make(chan []byte, subscriberBuffer)
	if backlog := e.scrollback.Snapshot(); len(backlog) > 0 {
		ch <- backlog
	}
	e.subs[ch] = struct{}{}

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[ch]; ok {
			delete(e.subs, ch)
			close(ch)
		}
	}
	return ch, cancel, true
}

// publish appends chunk to the scrollback and hands it to every subscriber
// without blocking. Holding mu keeps a new subscriber from seeing the chunk
// both in its backlog and live.
func (e *entry) publish(chunk []byte, logger *zap.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.scrollback.Write(chunk)

	for ch := range e.subs {
		select {
		case ch <- chunk:
		default:
			delete(e.subs, ch)
			close(ch)
			logger.Warn("Dropped slow output subscriber", zap.String("session_id", e.id))
		}
	}
}

func (e *entry) closeSubscribers() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for ch := range e.subs {
		close(ch)
	}
	e.subs = nil
	e.subsClosed = true
}
