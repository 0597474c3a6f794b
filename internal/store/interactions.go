package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/vibeterm/internal/shared/id"
)

// Interaction outcomes. The last three count as friction.
const (
	OutcomeSuccess   = "success"
	OutcomeFriction  = "friction"
	OutcomeAbandoned = "abandoned"
	OutcomeError     = "error"
)

// ErrInvalidInteraction is returned by TrackInteraction for a record
// without a type or outcome.
var ErrInvalidInteraction = errors.New("invalid interaction")

// Interaction is one user action in the UI around a session, such as
// "command_run" or "session_shared", and how it turned out.
type Interaction struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	TS        time.Time `json:"ts"`
	Type      string    `json:"type"`
	Context   string    `json:"context"`
	Target    string    `json:"target,omitempty"`
	Outcome   string    `json:"outcome"`
	Metadata  string    `json:"metadata,omitempty"`
}

// Pattern counts interactions of one type.
type Pattern struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// TrackInteraction records in against its session and returns the new id.
// ID and TS are assigned here; empty Target and Metadata are stored as NULL.
func (s *Store) TrackInteraction(ctx context.Context, in Interaction) (string, error) {
	if in.Type == "" || in.Outcome == "" {
		return "", fmt.Errorf("%w: type and outcome are required", ErrInvalidInteraction)
	}
	if _, err := s.Session(ctx, in.SessionID); err != nil {
		return "", err
	}

	recID := id.NewRecordID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, session_id, ts, type, context, target, outcome, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		recID, in.SessionID, millis(s.now()), in.Type, in.Context,
		nullString(in.Target), in.Outcome, nullString(in.Metadata),
	)
	if err != nil {
		return "", wrap("track interaction", err)
	}
	return recID, nil
}

// Interactions returns up to limit interactions across all sessions, newest
// first.
func (s *Store) Interactions(ctx context.Context, limit int) ([]Interaction, error) {
	return s.queryInteractions(ctx, `
		SELECT id, session_id, ts, type, context, target, outcome, metadata
		FROM interactions
		ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
}

// CommonPatterns counts interaction types seen within the last window,
// keeping those seen at least minOccurrences times, most frequent first.
func (s *Store) CommonPatterns(ctx context.Context, window time.Duration, minOccurrences int) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*) AS n FROM interactions
		WHERE ts > ?
		GROUP BY type
		HAVING n >= ?
		ORDER BY n DESC, type ASC`,
		millis(s.now().Add(-window)), minOccurrences)
	if err != nil {
		return nil, wrap("count interaction patterns", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		var p Pattern
		if err := rows.Scan(&p.Type, &p.Count); err != nil {
			return nil, wrap("count interaction patterns", err)
		}
		out = append(out, p)
	}
	return out, wrap("count interaction patterns", rows.Err())
}

// FrictionPoints returns interactions within the last window that ended in
// friction, abandonment or an error, newest first.
func (s *Store) FrictionPoints(ctx context.Context, window time.Duration) ([]Interaction, error) {
	return s.queryInteractions(ctx, `
		SELECT id, session_id, ts, type, context, target, outcome, metadata
		FROM interactions
		WHERE ts > ? AND outcome IN (?, ?, ?)
		ORDER BY ts DESC, rowid DESC`,
		millis(s.now().Add(-window)), OutcomeFriction, OutcomeAbandoned, OutcomeError)
}

func (s *Store) queryInteractions(ctx context.Context, query string, args ...any) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list interactions", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var (
			in       Interaction
			ts       int64
			target   sql.NullString
			metadata sql.NullString
		)
		if err := rows.Scan(&in.ID, &in.SessionID, &ts, &in.Type, &in.Context, &target, &in.Outcome, &metadata); err != nil {
			return nil, wrap("list interactions", err)
		}
		in.TS = fromMillis(ts)
		in.Target = target.String
		in.Metadata = metadata.String
		out = append(out, in)
	}
	return out, wrap("list interactions", rows.Err())
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
