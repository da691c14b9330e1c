// Package session is the durable progress store for clip sessions.
//
// One row per initiating tab records coarse publish progress so a
// restart of the host process does not lose track of what was already
// delivered. A second table caches the last-published document tree
// per note, which the highlight-append path needs because the publish
// API replaces full note content rather than patching it.
package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS clip_sessions (
    tab             TEXT PRIMARY KEY,
    id              TEXT NOT NULL,
    status          TEXT NOT NULL,
    title           TEXT,
    parts_total     INTEGER NOT NULL DEFAULT 0,
    parts_done      INTEGER NOT NULL DEFAULT 0,
    parts_failed    INTEGER NOT NULL DEFAULT 0,
    images_total    INTEGER NOT NULL DEFAULT 0,
    images_failed   INTEGER NOT NULL DEFAULT 0,
    note_ids        TEXT NOT NULL DEFAULT '[]',
    error           TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS note_cache (
    note_id         TEXT PRIMARY KEY,
    tree            TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON clip_sessions(status);
`

func openDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("session: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("session: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: exec schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory store for testing. MaxOpenConns(1)
// keeps every query on the same in-memory database.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("session.OpenMemory: %v", err)
	}
	s.db.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}
