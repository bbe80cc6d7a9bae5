// Package results persists per-combination verdicts in a local sqlite
// database, so intermittent link failures show up across harness runs.
package results

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TIMESTAMP NOT NULL,
	test       TEXT NOT NULL,
	format     TEXT NOT NULL,
	rate       INTEGER NOT NULL,
	channels   INTEGER NOT NULL,
	passed     INTEGER NOT NULL,
	pages      INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL
);
`

// Result is one verdict of one test for one format/rate/channel
// combination.
type Result struct {
	StartedAt time.Time
	Test      string
	Format    string
	Rate      int
	Channels  int
	Passed    bool
	Pages     int
	ElapsedMS int
}

// Store records Results in a sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("results: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("results: initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts one result.
func (s *Store) Record(r Result) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (started_at, test, format, rate, channels, passed, pages, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt, r.Test, r.Format, r.Rate, r.Channels, r.Passed, r.Pages, r.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("results: recording run: %w", err)
	}
	return nil
}

// Recent returns the latest n results, newest first.
func (s *Store) Recent(n int) ([]Result, error) {
	rows, err := s.db.Query(
		`SELECT started_at, test, format, rate, channels, passed, pages, elapsed_ms
		 FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("results: querying runs: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.StartedAt, &r.Test, &r.Format, &r.Rate,
			&r.Channels, &r.Passed, &r.Pages, &r.ElapsedMS); err != nil {
			return nil, fmt.Errorf("results: scanning run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
