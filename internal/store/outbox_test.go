package store

import (
	"context"
	"testing"

	"github.com/habitloop/habitloop/internal/schema"
)

// TestPendingOutbox_FIFO checks drain order matches enqueue order.
func TestPendingOutbox_FIFO(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	h, err := s.InsertHabit(ctx, testHabit(""))
	if err != nil {
		t.Fatalf("InsertHabit() failed: %v", err)
	}
	name := "Renamed once"
	if _, err := s.UpdateHabit(ctx, h.ID, HabitPatch{Name: &name}); err != nil {
		t.Fatalf("UpdateHabit() failed: %v", err)
	}
	if err := s.SoftDeleteHabit(ctx, h.ID); err != nil {
		t.Fatalf("SoftDeleteHabit() failed: %v", err)
	}

	entries, err := s.PendingOutbox(ctx, 10, 8)
	if err != nil {
		t.Fatalf("PendingOutbox() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	wantOps := []schema.Operation{schema.OpInsert, schema.OpUpdate, schema.OpDelete}
	for i, e := range entries {
		if e.Op != wantOps[i] {
			t.Errorf("entry %d op = %s, want %s", i, e.Op, wantOps[i])
		}
		if i > 0 && e.Seq <= entries[i-1].Seq {
			t.Errorf("entry %d seq %d not after %d", i, e.Seq, entries[i-1].Seq)
		}
	}
}

// TestPendingOutbox_ParkedBlocksOnlyItsRecord checks that a parked
// entry holds back later entries for the same record but lets other
// records drain.
func TestPendingOutbox_ParkedBlocksOnlyItsRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.InsertHabit(ctx, testHabit(""))
	if err != nil {
		t.Fatalf("InsertHabit() failed: %v", err)
	}
	name := "Renamed"
	if _, err := s.UpdateHabit(ctx, a.ID, HabitPatch{Name: &name}); err != nil {
		t.Fatalf("UpdateHabit() failed: %v", err)
	}
	b, err := s.InsertHabit(ctx, testHabit(""))
	if err != nil {
		t.Fatalf("InsertHabit() failed: %v", err)
	}

	entries, err := s.PendingOutbox(ctx, 10, 8)
	if err != nil {
		t.Fatalf("PendingOutbox() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	// Park a's INSERT.
	if err := s.ParkOutboxEntry(ctx, entries[0].Seq, 8); err != nil {
		t.Fatalf("ParkOutboxEntry() failed: %v", err)
	}

	drained, err := s.PendingOutbox(ctx, 10, 8)
	if err != nil {
		t.Fatalf("PendingOutbox() failed: %v", err)
	}
	if len(drained) != 1 {
		t.Fatalf("drainable entries = %d, want 1", len(drained))
	}
	if drained[0].RecordID != b.ID {
		t.Errorf("drainable record = %s, want %s", drained[0].RecordID, b.ID)
	}

	parked, err := s.ParkedOutbox(ctx, 8)
	if err != nil {
		t.Fatalf("ParkedOutbox() failed: %v", err)
	}
	if len(parked) != 1 || parked[0].RecordID != a.ID {
		t.Errorf("parked = %v, want a's INSERT only", parked)
	}
}

func TestMarkOutboxAttempt_ParksAtMax(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.InsertHabit(ctx, testHabit("")); err != nil {
		t.Fatalf("InsertHabit() failed: %v", err)
	}

	entries, err := s.PendingOutbox(ctx, 10, 3)
	if err != nil {
		t.Fatalf("PendingOutbox() failed: %v", err)
	}
	seq := entries[0].Seq

	for i := 0; i < 3; i++ {
		if err := s.MarkOutboxAttempt(ctx, seq); err != nil {
			t.Fatalf("MarkOutboxAttempt() failed: %v", err)
		}
	}

	remaining, err := s.PendingOutbox(ctx, 10, 3)
	if err != nil {
		t.Fatalf("PendingOutbox() failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("entry still drainable after %d attempts", 3)
	}
}

// TestDeleteOutboxEntry_ClearsPendingSync checks pending_sync is
// cleared only when the record's last entry is confirmed.
func TestDeleteOutboxEntry_ClearsPendingSync(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	h, err := s.InsertHabit(ctx, testHabit(""))
	if err != nil {
		t.Fatalf("InsertHabit() failed: %v", err)
	}
	name := "Renamed"
	if _, err := s.UpdateHabit(ctx, h.ID, HabitPatch{Name: &name}); err != nil {
		t.Fatalf("UpdateHabit() failed: %v", err)
	}

	entries, err := s.PendingOutbox(ctx, 10, 8)
	if err != nil {
		t.Fatalf("PendingOutbox() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	if err := s.DeleteOutboxEntry(ctx, entries[0]); err != nil {
		t.Fatalf("DeleteOutboxEntry() failed: %v", err)
	}
	pending, err := s.HabitPendingSync(ctx, h.ID)
	if err != nil {
		t.Fatalf("HabitPendingSync() failed: %v", err)
	}
	if !pending {
		t.Error("pending_sync cleared while an entry remains")
	}

	if err := s.DeleteOutboxEntry(ctx, entries[1]); err != nil {
		t.Fatalf("DeleteOutboxEntry() failed: %v", err)
	}
	pending, err = s.HabitPendingSync(ctx, h.ID)
	if err != nil {
		t.Fatalf("HabitPendingSync() failed: %v", err)
	}
	if pending {
		t.Error("pending_sync still set after last entry confirmed")
	}
}

func TestHasPendingDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	h, err := s.InsertHabit(ctx, testHabit(""))
	if err != nil {
		t.Fatalf("InsertHabit() failed: %v", err)
	}

	has, err := s.HasPendingDelete(ctx, schema.TableHabits, h.ID)
	if err != nil {
		t.Fatalf("HasPendingDelete() failed: %v", err)
	}
	if has {
		t.Error("pending delete reported before any delete")
	}

	if err := s.SoftDeleteHabit(ctx, h.ID); err != nil {
		t.Fatalf("SoftDeleteHabit() failed: %v", err)
	}
	has, err = s.HasPendingDelete(ctx, schema.TableHabits, h.ID)
	if err != nil {
		t.Fatalf("HasPendingDelete() failed: %v", err)
	}
	if !has {
		t.Error("pending delete not reported after delete enqueued")
	}
}
