/*
Package resilience provides a circuit breaker.

The session host records every command boundary to SQLite from its pump
goroutines. When the database starts failing (disk full, file removed,
locked by another process) the breaker opens so the pumps stop paying for
doomed writes, then lets a trial call through after the cooldown.

# States

  - Closed: calls go through; ShouldTrip decides when failures open it
  - Open: calls fail fast with ErrOpen until Cooldown passes
  - Half-open: up to MaxTrials calls go through; a failure reopens it,
    MaxTrials consecutive successes close it

# Usage

	breaker := resilience.New("store", resilience.Settings{
		Cooldown: 30 * time.Second,
		ShouldTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	err := breaker.Do(func() error {
		return store.RecordEvent(ctx, id, kind, data)
	})
*/
package resilience
