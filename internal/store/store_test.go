package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/habitloop/habitloop/internal/schema"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testHabit(id string) schema.HabitRecord {
	return schema.HabitRecord{
		ID:       id,
		UserID:   "user-1",
		Name:     "Morning run",
		Schedule: schema.ScheduleRule{Kind: schema.ScheduleWeekly, TaskDays: []int{1, 3, 5}},
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tables := []string{"habits", "completions", "outbox"}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := s.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	version, err := s.Version(ctx)
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("schema version = %d, want %d", version, SchemaVersion)
	}
}

// TestOpen_MigrationsRunOnce checks that reopening an existing database
// does not rerun migrations or lose data.
func TestOpen_MigrationsRunOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	if _, err := s.InsertHabit(ctx, testHabit("habit-1")); err != nil {
		t.Fatalf("InsertHabit() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s.Close()

	version, err := s.Version(ctx)
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("schema version after reopen = %d, want %d", version, SchemaVersion)
	}
	if _, err := s.GetHabit(ctx, "habit-1"); err != nil {
		t.Errorf("habit lost across reopen: %v", err)
	}
}
