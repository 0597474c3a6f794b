package store

// Timestamps are unix milliseconds. Events keep insertion order through
// rowid when several share a millisecond.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER,
	cwd        TEXT NOT NULL DEFAULT '',
	shell      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	ts         INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	data       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_session_ts ON events(session_id, ts);

CREATE TABLE IF NOT EXISTS commands (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER,
	exit_code  INTEGER,
	input      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id, started_at);

CREATE TABLE IF NOT EXISTS interactions (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	ts         INTEGER NOT NULL,
	type       TEXT NOT NULL,
	context    TEXT NOT NULL,
	target     TEXT,
	outcome    TEXT NOT NULL,
	metadata   TEXT
);

CREATE INDEX IF NOT EXISTS idx_interactions_type_ts ON interactions(type, ts);
CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id);
`
