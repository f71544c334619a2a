// Package migrate moves habit data in and out of the local store as
// JSON Lines, one record per line. Exports carry live rows only;
// imports write through the outbox so the next sync cycle propagates
// the imported data like any other local mutation.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/habitloop/habitloop/internal/schema"
	"github.com/habitloop/habitloop/internal/store"
)

const (
	lineHabit      = "habit"
	lineCompletion = "completion"
)

// line is one JSONL record. Exactly one of Habit or Completion is set,
// selected by Type.
type line struct {
	Type       string                   `json:"type"`
	Habit      *schema.HabitRecord      `json:"habit,omitempty"`
	Completion *schema.CompletionRecord `json:"completion,omitempty"`
}

// ExportReport counts what Export wrote.
type ExportReport struct {
	Habits      int
	Completions int
}

// Export writes the user's live habits and completions to w as JSONL.
// Tombstones stay behind: an export is a snapshot of current data, not
// a replication log.
func Export(ctx context.Context, st *store.Store, userID string, w io.Writer) (*ExportReport, error) {
	report := &ExportReport{}
	enc := json.NewEncoder(w)

	habits, err := st.ListHabits(ctx, userID, false)
	if err != nil {
		return report, err
	}
	for _, h := range habits {
		if err := enc.Encode(line{Type: lineHabit, Habit: h}); err != nil {
			return report, fmt.Errorf("write habit %s: %w", h.ID, err)
		}
		report.Habits++
	}

	completions, err := st.ListCompletions(ctx, userID)
	if err != nil {
		return report, err
	}
	for _, c := range completions {
		if c.Deleted() {
			continue
		}
		if err := enc.Encode(line{Type: lineCompletion, Completion: c}); err != nil {
			return report, fmt.Errorf("write completion %s: %w", c.ID, err)
		}
		report.Completions++
	}
	return report, nil
}

// ImportReport counts what Import applied and skipped.
type ImportReport struct {
	Habits      int
	Completions int
	Skipped     int
}

// Import reads JSONL from r and writes each record into the store,
// rewriting user ownership to userID. Records that already exist are
// skipped rather than overwritten, so re-importing the same file is
// safe. Completions whose habit is missing are skipped too.
func Import(ctx context.Context, st *store.Store, userID string, r io.Reader) (*ImportReport, error) {
	report := &ImportReport{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return report, fmt.Errorf("line %d: %w", lineNo, err)
		}
		switch l.Type {
		case lineHabit:
			if l.Habit == nil {
				return report, fmt.Errorf("line %d: habit line without habit", lineNo)
			}
			if err := importHabit(ctx, st, userID, l.Habit, report); err != nil {
				return report, fmt.Errorf("line %d: %w", lineNo, err)
			}
		case lineCompletion:
			if l.Completion == nil {
				return report, fmt.Errorf("line %d: completion line without completion", lineNo)
			}
			if err := importCompletion(ctx, st, userID, l.Completion, report); err != nil {
				return report, fmt.Errorf("line %d: %w", lineNo, err)
			}
		default:
			return report, fmt.Errorf("line %d: unknown record type %q", lineNo, l.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("read import stream: %w", err)
	}
	return report, nil
}

func importHabit(ctx context.Context, st *store.Store, userID string, h *schema.HabitRecord, report *ImportReport) error {
	if h.ID != "" {
		if _, err := st.GetHabit(ctx, h.ID); err == nil {
			report.Skipped++
			return nil
		}
	}
	h.UserID = userID
	if _, err := st.InsertHabit(ctx, *h); err != nil {
		return err
	}
	report.Habits++
	return nil
}

func importCompletion(ctx context.Context, st *store.Store, userID string, c *schema.CompletionRecord, report *ImportReport) error {
	if _, err := st.GetHabit(ctx, c.HabitID); err != nil {
		report.Skipped++
		return nil
	}
	if _, err := st.GetCompletion(ctx, c.HabitID, c.Date); err == nil {
		report.Skipped++
		return nil
	}
	c.UserID = userID
	if err := st.ImportCompletion(ctx, c); err != nil {
		return err
	}
	report.Completions++
	return nil
}
