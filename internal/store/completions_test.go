package store

import (
	"context"
	"testing"
	"time"

	"github.com/habitloop/habitloop/internal/schema"
)

// TestToggleCompletion_Idempotent checks that toggling twice restores
// the original state and every toggle leaves an outbox entry.
func TestToggleCompletion_Idempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	h, err := s.InsertHabit(ctx, testHabit(""))
	if err != nil {
		t.Fatalf("InsertHabit() failed: %v", err)
	}

	done, err := s.ToggleCompletion(ctx, h.ID, "user-1", "2026-09-01")
	if err != nil {
		t.Fatalf("first ToggleCompletion() failed: %v", err)
	}
	if !done {
		t.Error("first toggle = false, want true")
	}

	done, err = s.ToggleCompletion(ctx, h.ID, "user-1", "2026-09-01")
	if err != nil {
		t.Fatalf("second ToggleCompletion() failed: %v", err)
	}
	if done {
		t.Error("second toggle = true, want false")
	}

	// The row survives as a tombstone, not a deletion.
	c, err := s.GetCompletion(ctx, h.ID, "2026-09-01")
	if err != nil {
		t.Fatalf("GetCompletion() failed: %v", err)
	}
	if !c.Deleted() {
		t.Error("untoggled completion is not tombstoned")
	}

	// Third toggle revives the same row.
	done, err = s.ToggleCompletion(ctx, h.ID, "user-1", "2026-09-01")
	if err != nil {
		t.Fatalf("third ToggleCompletion() failed: %v", err)
	}
	if !done {
		t.Error("third toggle = false, want true")
	}
	revived, err := s.GetCompletion(ctx, h.ID, "2026-09-01")
	if err != nil {
		t.Fatalf("GetCompletion() failed: %v", err)
	}
	if revived.Deleted() {
		t.Error("revived completion still tombstoned")
	}
	if revived.ID != c.ID {
		t.Errorf("revive created a new row: %s -> %s", c.ID, revived.ID)
	}

	// One habit insert plus three toggles.
	depth, err := s.OutboxDepth(ctx)
	if err != nil {
		t.Fatalf("OutboxDepth() failed: %v", err)
	}
	if depth != 4 {
		t.Errorf("outbox depth = %d, want 4", depth)
	}
}

// TestToggleCompletion_NoDuplicateRows checks that there is never more
// than one row per (habit, date).
func TestToggleCompletion_NoDuplicateRows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	h, err := s.InsertHabit(ctx, testHabit(""))
	if err != nil {
		t.Fatalf("InsertHabit() failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := s.ToggleCompletion(ctx, h.ID, "user-1", "2026-09-01"); err != nil {
			t.Fatalf("toggle %d failed: %v", i, err)
		}
	}

	var count int
	err = s.conn.QueryRow(`SELECT COUNT(*) FROM completions WHERE habit_id = ? AND date = ?`,
		h.ID, "2026-09-01").Scan(&count)
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("completion rows = %d, want 1", count)
	}
}

func TestCompletionsForRange_DenseMap(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	h, err := s.InsertHabit(ctx, testHabit(""))
	if err != nil {
		t.Fatalf("InsertHabit() failed: %v", err)
	}
	if _, err := s.ToggleCompletion(ctx, h.ID, "user-1", "2026-09-02"); err != nil {
		t.Fatalf("ToggleCompletion() failed: %v", err)
	}

	// Tombstoned completions must not appear.
	if _, err := s.ToggleCompletion(ctx, h.ID, "user-1", "2026-09-03"); err != nil {
		t.Fatalf("ToggleCompletion() failed: %v", err)
	}
	if _, err := s.ToggleCompletion(ctx, h.ID, "user-1", "2026-09-03"); err != nil {
		t.Fatalf("ToggleCompletion() failed: %v", err)
	}

	history, err := s.CompletionsForRange(ctx, "user-1", "2026-09-01", "2026-09-03")
	if err != nil {
		t.Fatalf("CompletionsForRange() failed: %v", err)
	}

	if len(history) != 3 {
		t.Fatalf("range days = %d, want 3", len(history))
	}
	for _, day := range []string{"2026-09-01", "2026-09-02", "2026-09-03"} {
		if _, ok := history[day]; !ok {
			t.Errorf("missing day %s in range map", day)
		}
	}
	if len(history["2026-09-01"]) != 0 {
		t.Errorf("empty day has %d entries", len(history["2026-09-01"]))
	}
	if len(history["2026-09-02"]) != 1 || history["2026-09-02"][0] != h.ID {
		t.Errorf("2026-09-02 = %v, want [%s]", history["2026-09-02"], h.ID)
	}
	if len(history["2026-09-03"]) != 0 {
		t.Errorf("tombstoned day has %d entries", len(history["2026-09-03"]))
	}
}

// TestApplyRemoteCompletion covers the insert-or-ignore merge: remote
// live rows never overwrite, remote tombstones propagate unless a local
// outbox entry is still pending.
func TestApplyRemoteCompletion(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	h, err := s.InsertHabit(ctx, testHabit(""))
	if err != nil {
		t.Fatalf("InsertHabit() failed: %v", err)
	}

	now := time.Now().UTC()
	remote := &schema.CompletionRecord{
		ID:        "remote-c1",
		HabitID:   h.ID,
		UserID:    "user-1",
		Date:      "2026-08-30",
		Value:     1,
		CreatedAt: now,
	}

	// No local row: inserted.
	if err := s.ApplyRemoteCompletion(ctx, remote); err != nil {
		t.Fatalf("ApplyRemoteCompletion() failed: %v", err)
	}
	got, err := s.GetCompletion(ctx, h.ID, "2026-08-30")
	if err != nil {
		t.Fatalf("GetCompletion() failed: %v", err)
	}
	if got.ID != "remote-c1" {
		t.Errorf("id = %s, want remote-c1", got.ID)
	}

	// Remote tombstone with a pending local entry: skipped. The insert
	// from the habit plus nothing for the completion means no pending
	// entry exists, so first create one via toggle on another date and
	// verify the pending case there.
	if _, err := s.ToggleCompletion(ctx, h.ID, "user-1", "2026-08-31"); err != nil {
		t.Fatalf("ToggleCompletion() failed: %v", err)
	}
	local, err := s.GetCompletion(ctx, h.ID, "2026-08-31")
	if err != nil {
		t.Fatalf("GetCompletion() failed: %v", err)
	}
	tomb := *local
	at := now
	tomb.DeletedAt = &at
	if err := s.ApplyRemoteCompletion(ctx, &tomb); err != nil {
		t.Fatalf("ApplyRemoteCompletion() failed: %v", err)
	}
	got, err = s.GetCompletion(ctx, h.ID, "2026-08-31")
	if err != nil {
		t.Fatalf("GetCompletion() failed: %v", err)
	}
	if got.Deleted() {
		t.Error("remote tombstone applied despite pending local outbox entry")
	}

	// Drain the outbox, then the tombstone propagates.
	entries, err := s.PendingOutbox(ctx, 100, 8)
	if err != nil {
		t.Fatalf("PendingOutbox() failed: %v", err)
	}
	for _, e := range entries {
		if err := s.DeleteOutboxEntry(ctx, e); err != nil {
			t.Fatalf("DeleteOutboxEntry() failed: %v", err)
		}
	}
	if err := s.ApplyRemoteCompletion(ctx, &tomb); err != nil {
		t.Fatalf("ApplyRemoteCompletion() failed: %v", err)
	}
	got, err = s.GetCompletion(ctx, h.ID, "2026-08-31")
	if err != nil {
		t.Fatalf("GetCompletion() failed: %v", err)
	}
	if !got.Deleted() {
		t.Error("remote tombstone not applied after outbox drained")
	}
}
