package eventsource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists events in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed store at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Serialized access: Append runs a read-modify-write transaction.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		stream    TEXT    NOT NULL,
		version   INTEGER NOT NULL,
		id        TEXT    NOT NULL,
		type      TEXT    NOT NULL,
		timestamp TEXT    NOT NULL,
		data      BLOB,
		PRIMARY KEY (stream, version)
	);
	CREATE INDEX IF NOT EXISTS idx_events_stream ON events(stream);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, stream string, expectedVersion int, events []*Event) (int, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return -1, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current sql.NullInt64
	row := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM events WHERE stream = ?`, stream)
	if err := row.Scan(&current); err != nil {
		return -1, fmt.Errorf("query stream version: %w", err)
	}

	currentVersion := -1
	if current.Valid {
		currentVersion = int(current.Int64)
	}
	if expectedVersion != currentVersion {
		return currentVersion, ErrConcurrencyConflict
	}

	version := currentVersion
	for _, e := range events {
		version++
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (stream, version, id, type, timestamp, data)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			stream, version, e.ID, e.Type, e.Timestamp.Format(time.RFC3339Nano), []byte(e.Data))
		if err != nil {
			return -1, fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return -1, fmt.Errorf("commit: %w", err)
	}
	return version, nil
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, stream string, fromVersion int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, id, type, timestamp, data
		 FROM events WHERE stream = ? AND version >= ?
		 ORDER BY version`, stream, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{Stream: stream}
		var ts string
		var data []byte
		if err := rows.Scan(&e.Version, &e.ID, &e.Type, &ts, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		if len(data) > 0 {
			e.Data = data
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// StreamVersion implements Store.
func (s *SQLiteStore) StreamVersion(ctx context.Context, stream string) (int, error) {
	var current sql.NullInt64
	row := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM events WHERE stream = ?`, stream)
	if err := row.Scan(&current); err != nil {
		return -1, fmt.Errorf("query stream version: %w", err)
	}
	if !current.Valid {
		return -1, nil
	}
	return int(current.Int64), nil
}

// Streams implements Store.
func (s *SQLiteStore) Streams(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT stream FROM events ORDER BY stream`)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	var streams []string
	for rows.Next() {
		var stream string
		if err := rows.Scan(&stream); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		streams = append(streams, stream)
	}
	return streams, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
