// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger keeps an append-only SQLite record of fetch outcomes.
// The ledger is an audit trail only: the fetcher decides whether a file
// needs downloading purely from the file on disk.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/kratt/internal/fetch"
)

// Store manages the fetch ledger database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path, creating the
// parent directory and schema as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS fetches (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			file TEXT NOT NULL,
			url TEXT NOT NULL,
			dest TEXT NOT NULL,
			size INTEGER NOT NULL,
			status TEXT NOT NULL,
			fetched_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetches_file ON fetches(file)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record appends one fetch outcome.
func (s *Store) Record(ctx context.Context, out fetch.Outcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetches (file, url, dest, size, status, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		out.Task.File, out.Task.URL, out.Dest, out.Size,
		string(out.Status), out.When.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting fetch record: %w", err)
	}
	return nil
}

// Entry is the most recent recorded outcome for one destination file.
type Entry struct {
	File      string
	URL       string
	Dest      string
	Size      int64
	Status    fetch.Status
	FetchedAt time.Time
}

// Latest returns the most recent entry per destination file.
func (s *Store) Latest(ctx context.Context) (map[string]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file, url, dest, size, status, fetched_at FROM fetches
		 WHERE rowid IN (SELECT max(rowid) FROM fetches GROUP BY file)`)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		var status, fetchedAt string
		if err := rows.Scan(&e.File, &e.URL, &e.Dest, &e.Size, &status, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		e.Status = fetch.Status(status)
		if t, parseErr := time.Parse(time.RFC3339Nano, fetchedAt); parseErr == nil {
			e.FetchedAt = t
		}
		entries[e.File] = e
	}
	return entries, rows.Err()
}
