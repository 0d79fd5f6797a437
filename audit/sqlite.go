package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tapflow/events"
)

//go:embed schema.sql
var schemaSQL string

// SQLite journals outcomes into a local database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("audit database path not configured")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	// One connection: sqlite has a single writer, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		schemaSQL,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init audit database: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// Record implements Journal.
func (s *SQLite) Record(ctx context.Context, e events.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dwells (dwell_id, uid, outcome, from_col, to_col, ticket, card, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Dwell, e.UID, e.Outcome, e.From, e.To, e.Ticket, e.Card, e.Error,
		e.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first.
func (s *SQLite) Recent(ctx context.Context, n int) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dwell_id, uid, outcome, from_col, to_col, ticket, card, error, at
		 FROM dwells ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		var at string
		if err := rows.Scan(&e.Dwell, &e.UID, &e.Outcome, &e.From, &e.To, &e.Ticket, &e.Card, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse audit time %q: %w", at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close implements Journal.
func (s *SQLite) Close() error {
	return s.db.Close()
}
