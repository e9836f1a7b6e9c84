// Package export writes corpus snapshots to a SQLite file for external
// tools, with optional FTS5 full-text search over annotation bodies.
// Snapshots are never read back by the index.
package export

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS generations (
	id           TEXT PRIMARY KEY,
	root         TEXT NOT NULL DEFAULT '',
	files        INTEGER NOT NULL DEFAULT 0,
	completed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS annotations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	generation    TEXT NOT NULL,
	file          TEXT NOT NULL,
	line          INTEGER NOT NULL,
	type          TEXT NOT NULL,
	literal_type  TEXT NOT NULL,
	inferred      INTEGER NOT NULL DEFAULT 0,
	author        TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL DEFAULT '',
	match_start   INTEGER NOT NULL DEFAULT 0,
	match_length  INTEGER NOT NULL DEFAULT 0,
	locator       TEXT NOT NULL DEFAULT '',
	history_author TEXT,
	history_time   DATETIME,
	revision       TEXT,
	UNIQUE(generation, file, line)
);

CREATE INDEX IF NOT EXISTS idx_annotations_type ON annotations(type);
CREATE INDEX IF NOT EXISTS idx_annotations_author ON annotations(author);
`

// DB wraps a sql.DB holding snapshots.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the snapshot database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("export: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("export: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("export: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("export: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
