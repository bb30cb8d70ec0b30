// Package mathexhist records REPL session history — source text and
// results only, never compiled bytecode — in a SQLite database, the
// way the teacher's lib/runtime/persistence.go stores object
// instances as JSON rows. Unlike the teacher's cgo-based
// mattn/go-sqlite3, this uses the pure-Go modernc.org/sqlite driver,
// so cmd/mathex needs no C toolchain to build.
package mathexhist

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed history log, one row per accepted
// expression.
type Store struct {
	db *sql.DB
}

// Entry is one recorded evaluation.
type Entry struct {
	SessionID string
	Seq       int
	Expr      string
	Results   []float64
	CreatedAt time.Time
}

// Open opens (creating if necessary) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS history (
		session_id TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		expr       TEXT NOT NULL,
		results    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Record appends one accepted expression/result pair under sessionID,
// with seq being its position within that session (0-based).
func (s *Store) Record(sessionID string, seq int, expr string, results []float64) error {
	encoded, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO history (session_id, seq, expr, results, created_at) VALUES (?, ?, ?, ?, ?)`,
		// Fixed-width fraction, so ORDER BY created_at sorts in time order.
		sessionID, seq, expr, string(encoded), time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	)
	return err
}

// Session returns every entry recorded under sessionID, in seq order.
func (s *Store) Session(sessionID string) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT session_id, seq, expr, results, created_at FROM history WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns the most recently recorded entries across every
// session, newest first, up to limit.
func (s *Store) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT session_id, seq, expr, results, created_at FROM history ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var resultsJSON, createdAt string
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.Expr, &resultsJSON, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(resultsJSON), &e.Results); err != nil {
			return nil, fmt.Errorf("decoding results for session %s seq %d: %w", e.SessionID, e.Seq, err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
