package host

import (
	"context"

	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/vibeterm/internal/store"
)

// guardedStore routes every Store call through a circuit breaker.
type guardedStore struct {
	store   Store
	breaker *resilience.Breaker
}

// GuardStore wraps s so that, once it keeps failing, calls fail fast with
// resilience.ErrOpen until the breaker lets a trial call through.
func GuardStore(s Store, breaker *resilience.Breaker) Store {
	return &guardedStore{store: s, breaker: breaker}
}

func (g *guardedStore) CreateSession(ctx context.Context, sessionID, cwd, shell string) (*store.Session, error) {
	var sess *store.Session
	err := g.breaker.Do(func() error {
		var err error
		sess, err = g.store.CreateSession(ctx, sessionID, cwd, shell)
		return err
	})
	return sess, err
}

func (g *guardedStore) EndSession(ctx context.Context, sessionID string) error {
	return g.breaker.Do(func() error {
		return g.store.EndSession(ctx, sessionID)
	})
}

func (g *guardedStore) RecordEvent(ctx context.Context, sessionID, kind, data string) error {
	return g.breaker.Do(func() error {
		return g.store.RecordEvent(ctx, sessionID, kind, data)
	})
}

func (g *guardedStore) CreateCommand(ctx context.Context, sessionID, input string) (string, error) {
	var commandID string
	err := g.breaker.Do(func() error {
		var err error
		commandID, err = g.store.CreateCommand(ctx, sessionID, input)
		return err
	})
	return commandID, err
}

func (g *guardedStore) EndCommand(ctx context.Context, sessionID string, exitCode int) (bool, error) {
	var ended bool
	err := g.breaker.Do(func() error {
		var err error
		ended, err = g.store.EndCommand(ctx, sessionID, exitCode)
		return err
	})
	return ended, err
}
