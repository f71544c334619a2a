package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/habitloop/habitloop/internal/schema"
)

// ToggleCompletion flips the completion state for (habitID, date) and
// returns the new state. Absent row inserts, live row tombstones, and a
// tombstoned row is revived in place. Each call is one transaction, so
// concurrent toggles for different habits on the same date cannot
// corrupt the per-date list.
func (s *Store) ToggleCompletion(ctx context.Context, habitID, userID, date string) (bool, error) {
	if _, err := time.Parse(schema.DateLayout, date); err != nil {
		return false, fmt.Errorf("invalid date %q: %w", date, err)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, completionSelect+` WHERE habit_id = ? AND date = ?`, habitID, date)
	c, err := scanCompletion(row)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First toggle for this day.
		c = &schema.CompletionRecord{
			ID:        uuid.NewString(),
			HabitID:   habitID,
			UserID:    userID,
			Date:      date,
			Value:     1,
			CreatedAt: time.Now().UTC(),
		}
		if err := writeCompletionRow(ctx, tx, c, true); err != nil {
			return false, err
		}
		if err := enqueueCompletion(ctx, tx, schema.OpInsert, c); err != nil {
			return false, err
		}

	case err != nil:
		return false, err

	case c.Deleted():
		// Revive the tombstoned row rather than inserting a duplicate.
		c.DeletedAt = nil
		c.CreatedAt = time.Now().UTC()
		if err := writeCompletionRow(ctx, tx, c, true); err != nil {
			return false, err
		}
		if err := enqueueCompletion(ctx, tx, schema.OpUpdate, c); err != nil {
			return false, err
		}

	default:
		now := time.Now().UTC()
		c.DeletedAt = &now
		if err := writeCompletionRow(ctx, tx, c, true); err != nil {
			return false, err
		}
		if err := enqueueCompletion(ctx, tx, schema.OpDelete, c); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit completion toggle: %w", err)
	}
	return !c.Deleted(), nil
}

// CompletionsForRange returns a dense map of date -> completed habit
// ids across every calendar day in [start, end], including empty slices
// for days with no completions, so callers can compute day-over-day
// metrics without missing-key branching.
func (s *Store) CompletionsForRange(ctx context.Context, userID, start, end string) (map[string][]string, error) {
	startDay, err := time.Parse(schema.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	endDay, err := time.Parse(schema.DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if endDay.Before(startDay) {
		return nil, fmt.Errorf("end date %s precedes start date %s", end, start)
	}

	result := make(map[string][]string)
	for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		result[d.Format(schema.DateLayout)] = []string{}
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT date, habit_id FROM completions
		WHERE user_id = ? AND date >= ? AND date <= ? AND deleted_at IS NULL
		ORDER BY date ASC, habit_id ASC`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date, habitID string
		if err := rows.Scan(&date, &habitID); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		result[date] = append(result[date], habitID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completions: %w", err)
	}
	return result, nil
}

// GetCompletion retrieves the completion row for (habitID, date),
// tombstoned rows included. Returns ErrNotFound if no row exists.
func (s *Store) GetCompletion(ctx context.Context, habitID, date string) (*schema.CompletionRecord, error) {
	row := s.conn.QueryRowContext(ctx, completionSelect+` WHERE habit_id = ? AND date = ?`, habitID, date)
	c, err := scanCompletion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("completion (%s, %s): %w", habitID, date, ErrNotFound)
	}
	return c, err
}

// ListCompletions returns all completion rows for the user, tombstones
// included. Used by export.
func (s *Store) ListCompletions(ctx context.Context, userID string) ([]*schema.CompletionRecord, error) {
	rows, err := s.conn.QueryContext(ctx, completionSelect+` WHERE user_id = ? ORDER BY date ASC, habit_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	var out []*schema.CompletionRecord
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completions: %w", err)
	}
	return out, nil
}

// ImportCompletion writes a completion row and enqueues an INSERT
// outbox entry, preserving the record's id and timestamps. Used by the
// data import path; normal toggles go through ToggleCompletion.
func (s *Store) ImportCompletion(ctx context.Context, c *schema.CompletionRecord) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid completion: %w", err)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := writeCompletionRow(ctx, tx, c, true); err != nil {
		return err
	}
	if err := enqueueCompletion(ctx, tx, schema.OpInsert, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion import: %w", err)
	}
	return nil
}

// ApplyRemoteCompletion merges a cloud-origin completion with
// insert-or-ignore semantics: a remote live row never overwrites an
// existing local row; only tombstone propagation does. Rows written
// here are already-synced and enqueue nothing.
func (s *Store) ApplyRemoteCompletion(ctx context.Context, c *schema.CompletionRecord) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, completionSelect+` WHERE habit_id = ? AND date = ?`, c.HabitID, c.Date)
	local, err := scanCompletion(row)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !c.Deleted() {
			if err := writeCompletionRow(ctx, tx, c, false); err != nil {
				return err
			}
		}

	case err != nil:
		return err

	case c.Deleted() && !local.Deleted():
		pending, err := hasPendingOutboxTx(ctx, tx, schema.TableCompletions, local.ID)
		if err != nil {
			return err
		}
		if !pending {
			local.DeletedAt = c.DeletedAt
			if err := writeCompletionRow(ctx, tx, local, false); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remote completion: %w", err)
	}
	return nil
}

const completionSelect = `
SELECT id, habit_id, user_id, date, value, created_at, deleted_at
FROM completions`

func scanCompletion(row rowScanner) (*schema.CompletionRecord, error) {
	var c schema.CompletionRecord
	var createdAt string
	var deletedAt sql.NullString

	err := row.Scan(&c.ID, &c.HabitID, &c.UserID, &c.Date, &c.Value, &createdAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan completion: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.DeletedAt = nullToTime(deletedAt)
	return &c, nil
}

func writeCompletionRow(ctx context.Context, tx *sql.Tx, c *schema.CompletionRecord, pending bool) error {
	pendingFlag := 0
	if pending {
		pendingFlag = 1
	}

	query := `
	INSERT INTO completions (id, habit_id, user_id, date, value, created_at, deleted_at, pending_sync)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(habit_id, date) DO UPDATE SET
		id = excluded.id,
		user_id = excluded.user_id,
		value = excluded.value,
		created_at = excluded.created_at,
		deleted_at = excluded.deleted_at,
		pending_sync = excluded.pending_sync
	`

	_, err := tx.ExecContext(ctx, query,
		c.ID, c.HabitID, c.UserID, c.Date, c.Value,
		formatTime(c.CreatedAt), timeToNull(c.DeletedAt), pendingFlag,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert completion (%s, %s): %w", c.HabitID, c.Date, err)
	}
	return nil
}

func enqueueCompletion(ctx context.Context, tx *sql.Tx, op schema.Operation, c *schema.CompletionRecord) error {
	payload, err := schema.EncodeCompletion(c)
	if err != nil {
		return err
	}
	return enqueueOutbox(ctx, tx, schema.TableCompletions, op, c.ID, payload)
}

func hasPendingOutboxTx(ctx context.Context, tx *sql.Tx, table, recordID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outbox WHERE target_table = ? AND record_id = ?`,
		table, recordID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check outbox for %s: %w", recordID, err)
	}
	return n > 0, nil
}
