package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/GriffinCanCode/vibeterm/internal/shared/id"
	"github.com/GriffinCanCode/vibeterm/internal/shared/paths"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Store persists sessions, their events and their commands in SQLite.
// It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// DefaultPath returns vibeterm.db in the vibeterm base directory.
func DefaultPath() (string, error) {
	base, err := paths.Base()
	if err != nil {
		return "", err
	}
	return paths.Database(base), nil
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps writes ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("Opened session store", zap.String("path", path))
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession records a new session under the caller's id.
func (s *Store) CreateSession(ctx context.Context, sessionID, cwd, shell string) (*Session, error) {
	sess := &Session{
		ID:        sessionID,
		StartedAt: s.now().UTC().Truncate(time.Millisecond),
		Cwd:       cwd,
		Shell:     shell,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, cwd, shell) VALUES (?, ?, ?, ?)`,
		sess.ID, millis(sess.StartedAt), sess.Cwd, sess.Shell,
	)
	if err != nil {
		return nil, wrap("create session", err)
	}
	return sess, nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		millis(s.now()), sessionID,
	)
	if err != nil {
		return wrap("end session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Session(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// RecordEvent appends one event to the session's log.
func (s *Store) RecordEvent(ctx context.Context, sessionID, kind, data string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, session_id, ts, kind, data) VALUES (?, ?, ?, ?, ?)`,
		id.NewRecordID(), sessionID, millis(s.now()), kind, data,
	)
	return wrap("record event", err)
}

// CreateCommand opens a command and returns its id.
func (s *Store) CreateCommand(ctx context.Context, sessionID, input string) (string, error) {
	cmdID := id.NewRecordID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commands (id, session_id, started_at, input) VALUES (?, ?, ?, ?)`,
		cmdID, sessionID, millis(s.now()), input,
	)
	if err != nil {
		return "", wrap("create command", err)
	}
	return cmdID, nil
}

// EndCommand closes the session's most recent open command with exitCode.
// It reports false when no command was open.
func (s *Store) EndCommand(ctx context.Context, sessionID string, exitCode int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE commands SET ended_at = ?, exit_code = ?
		WHERE id = (
			SELECT id FROM commands
			WHERE session_id = ? AND ended_at IS NULL
			ORDER BY started_at DESC, rowid DESC
			LIMIT 1
		)`,
		millis(s.now()), exitCode, sessionID,
	)
	if err != nil {
		return false, wrap("end command", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("end command", err)
	}
	return n > 0, nil
}

// Session returns one session.
func (s *Store) Session(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at, cwd, shell FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, wrap("get session", err)
	}
	return sess, nil
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, cwd, shell FROM sessions
		ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrap("list sessions", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, wrap("list sessions", err)
		}
		out = append(out, *sess)
	}
	return out, wrap("list sessions", rows.Err())
}

// SessionsWithCommands returns up to limit sessions, newest first, each
// with its command count and commands.
func (s *Store) SessionsWithCommands(ctx context.Context, limit int) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.started_at, s.ended_at, s.cwd, s.shell, COUNT(c.id)
		FROM sessions s
		LEFT JOIN commands c ON s.id = c.session_id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, wrap("list session summaries", err)
	}

	var out []SessionSummary
	for rows.Next() {
		var (
			sum     SessionSummary
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &started, &ended, &sum.Cwd, &sum.Shell, &sum.CommandCount); err != nil {
			rows.Close()
			return nil, wrap("list session summaries", err)
		}
		sum.StartedAt = fromMillis(started)
		sum.EndedAt = nullTime(ended)
		out = append(out, sum)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrap("list session summaries", err)
	}

	// The single connection is free again once rows is closed.
	for i := range out {
		cmds, err := s.Commands(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Commands = cmds
	}
	return out, nil
}

// Events returns a session's events in recording order.
func (s *Store) Events(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, ts, kind, data FROM events
		WHERE session_id = ? ORDER BY ts ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, wrap("list events", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev Event
			ts int64
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ts, &ev.Kind, &ev.Data); err != nil {
			return nil, wrap("list events", err)
		}
		ev.TS = fromMillis(ts)
		out = append(out, ev)
	}
	return out, wrap("list events", rows.Err())
}

// Commands returns a session's commands, oldest first.
func (s *Store) Commands(ctx context.Context, sessionID string) ([]Command, error) {
	return s.queryCommands(ctx, `
		SELECT id, session_id, input, exit_code, started_at, ended_at FROM commands
		WHERE session_id = ? ORDER BY started_at ASC, rowid ASC`, sessionID)
}

// RecentCommands returns up to limit of a session's commands, newest first.
func (s *Store) RecentCommands(ctx context.Context, sessionID string, limit int) ([]Command, error) {
	return s.queryCommands(ctx, `
		SELECT id, session_id, input, exit_code, started_at, ended_at FROM commands
		WHERE session_id = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`, sessionID, limit)
}

func (s *Store) queryCommands(ctx context.Context, query string, args ...any) ([]Command, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list commands", err)
	}
	defer rows.Close()

	var out []Command
	for rows.Next() {
		var (
			cmd      Command
			exitCode sql.NullInt64
			started  int64
			ended    sql.NullInt64
		)
		if err := rows.Scan(&cmd.ID, &cmd.SessionID, &cmd.Input, &exitCode, &started, &ended); err != nil {
			return nil, wrap("list commands", err)
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			cmd.ExitCode = &code
		}
		cmd.StartedAt = fromMillis(started)
		cmd.EndedAt = nullTime(ended)
		out = append(out, cmd)
	}
	return out, wrap("list commands", rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &started, &ended, &sess.Cwd, &sess.Shell); err != nil {
		return nil, err
	}
	sess.StartedAt = fromMillis(started)
	sess.EndedAt = nullTime(ended)
	return &sess, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
