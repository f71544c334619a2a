package store

import (
	"context"
	"database/sql"
	"fmt"
)

// A migration moves the schema from version-1 to version. Migrations
// run exactly once, in order, gated by PRAGMA user_version: the version
// comparison (not IF NOT EXISTS) is what makes ALTER-style changes
// idempotent on re-open.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{1, "base tables", migrateBaseTables},
	{2, "habit goal links", migrateGoalLinks},
	{3, "outbox attempt counter", migrateOutboxAttempts},
	{4, "query indexes", migrateIndexes},
}

// SchemaVersion is the version a fully migrated store reports.
const SchemaVersion = 4

// migrate applies pending migrations in ascending version order. Each
// migration runs in its own transaction and bumps user_version inside
// that transaction, so a crash mid-migration re-runs only the
// interrupted step.
func (s *Store) migrate(ctx context.Context) error {
	var current int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.begin(ctx)
		if err != nil {
			return err
		}

		if err := m.apply(ctx, tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}

		// PRAGMA does not accept bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): failed to set version: %w", m.version, m.name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): commit failed: %w", m.version, m.name, err)
		}
		current = m.version
	}

	return nil
}

// Version returns the current schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func migrateBaseTables(ctx context.Context, tx *sql.Tx) error {
	schema := `
	CREATE TABLE habits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL,  -- JSON ScheduleRule
		archived INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		pending_sync INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE completions (
		id TEXT NOT NULL,
		habit_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,  -- YYYY-MM-DD
		value REAL NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		deleted_at TEXT,
		pending_sync INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (habit_id, date)
	);

	CREATE TABLE outbox (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		target_table TEXT NOT NULL,
		op TEXT NOT NULL,
		record_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		enqueued_at TEXT NOT NULL
	);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

func migrateGoalLinks(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE habits ADD COLUMN goal_id TEXT NOT NULL DEFAULT ''`)
	return err
}

func migrateOutboxAttempts(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE outbox ADD COLUMN attempts INTEGER NOT NULL DEFAULT 0`)
	return err
}

func migrateIndexes(ctx context.Context, tx *sql.Tx) error {
	schema := `
	CREATE INDEX IF NOT EXISTS idx_habits_user ON habits(user_id);
	CREATE INDEX IF NOT EXISTS idx_habits_updated ON habits(updated_at);
	CREATE INDEX IF NOT EXISTS idx_completions_date ON completions(date);
	CREATE INDEX IF NOT EXISTS idx_completions_habit ON completions(habit_id);
	CREATE INDEX IF NOT EXISTS idx_outbox_record ON outbox(record_id);
	`
	_, err := tx.ExecContext(ctx, schema)
	return err
}
