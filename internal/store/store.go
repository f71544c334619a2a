// Package store implements the durable on-device store for habits,
// completions, and the sync outbox.
//
// The store is a single SQLite database opened in WAL mode. Every write
// operation is individually transactional: a local mutation and the
// outbox entry that represents it commit together or not at all. The
// store is never held open across a network round-trip; the reconcilers
// fetch-then-commit in separate steps.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Sentinel errors returned by store operations.
var (
	// ErrNotFound is returned when a record id does not exist locally.
	ErrNotFound = errors.New("record not found")

	// ErrStorageUnavailable is returned by Open when the storage medium
	// cannot be used at all. Callers are expected to degrade to a
	// cloud-only mode rather than fail the application.
	ErrStorageUnavailable = errors.New("local storage unavailable")
)

// timeLayout is the persisted timestamp format. RFC3339 with
// sub-second precision so the monotonic updated_at bump survives a
// round-trip through the database.
const timeLayout = time.RFC3339Nano

// Store wraps the SQLite connection with habit-tracker specific
// operations.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the store at path, applies pending migrations
// in ascending version order, and tunes the connection for frequent
// small writes (WAL for group commit, a larger page cache, temp
// structures in memory).
//
// Errors are wrapped with ErrStorageUnavailable so callers can detect
// the degrade-to-cloud-only case with errors.Is.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create database directory: %v", ErrStorageUnavailable, err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStorageUnavailable, err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrStorageUnavailable, err)
	}

	// All logical callers are short transactions; one writer at a time
	// keeps SQLITE_BUSY out of the picture.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-8000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.conn.Exec(p); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("%w: %s failed: %v", ErrStorageUnavailable, p, err)
		}
	}

	if err := s.migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// begin starts a write transaction.
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func timeToNull(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
