package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/habitloop/habitloop/internal/schema"
)

// HabitPatch carries a partial habit update. Nil fields are left
// untouched. GoalID distinguishes "unset" (nil) from "clear" (pointer
// to empty string).
type HabitPatch struct {
	Name     *string
	Category *string
	Schedule *schema.ScheduleRule
	GoalID   *string
	Archived *bool
}

// InsertHabit assigns an id and timestamps to the partial record,
// writes the row, and enqueues an INSERT outbox entry in the same
// transaction. Returns the materialized record.
func (s *Store) InsertHabit(ctx context.Context, h schema.HabitRecord) (*schema.HabitRecord, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = h.CreatedAt
	}
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("invalid habit: %w", err)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	payload, err := schema.EncodeHabit(&h)
	if err != nil {
		return nil, err
	}
	if err := writeHabitRow(ctx, tx, &h, true); err != nil {
		return nil, err
	}
	if err := enqueueOutbox(ctx, tx, schema.TableHabits, schema.OpInsert, h.ID, payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit habit insert: %w", err)
	}
	return &h, nil
}

// UpdateHabit applies only the supplied fields, bumps updated_at, marks
// the row as needing sync, and enqueues an UPDATE outbox entry carrying
// the full current snapshot so replays are self-contained.
func (s *Store) UpdateHabit(ctx context.Context, id string, patch HabitPatch) (*schema.HabitRecord, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	h, err := getHabitTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if h.Deleted() {
		return nil, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}

	if patch.Name != nil {
		h.Name = *patch.Name
	}
	if patch.Category != nil {
		h.Category = *patch.Category
	}
	if patch.Schedule != nil {
		h.Schedule = *patch.Schedule
	}
	if patch.GoalID != nil {
		h.GoalID = *patch.GoalID
	}
	if patch.Archived != nil {
		h.Archived = *patch.Archived
	}
	h.Touch(time.Now())

	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("invalid habit after update: %w", err)
	}
	payload, err := schema.EncodeHabit(h)
	if err != nil {
		return nil, err
	}
	if err := writeHabitRow(ctx, tx, h, true); err != nil {
		return nil, err
	}
	if err := enqueueOutbox(ctx, tx, schema.TableHabits, schema.OpUpdate, h.ID, payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit habit update: %w", err)
	}
	return h, nil
}

// SoftDeleteHabit sets the tombstone and enqueues a DELETE outbox
// entry. The row itself is retained so that a slower device observes
// "deleted" rather than "never existed". Idempotent: deleting an
// already-tombstoned habit is a no-op.
func (s *Store) SoftDeleteHabit(ctx context.Context, id string) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	h, err := getHabitTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if h.Deleted() {
		return tx.Commit()
	}

	h.Touch(time.Now())
	at := h.UpdatedAt
	h.DeletedAt = &at

	payload, err := schema.EncodeHabit(h)
	if err != nil {
		return err
	}
	if err := writeHabitRow(ctx, tx, h, true); err != nil {
		return err
	}
	if err := enqueueOutbox(ctx, tx, schema.TableHabits, schema.OpDelete, h.ID, payload); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit habit delete: %w", err)
	}
	return nil
}

// GetHabit retrieves a habit by id, tombstoned rows included.
// Returns ErrNotFound if no row exists.
func (s *Store) GetHabit(ctx context.Context, id string) (*schema.HabitRecord, error) {
	row := s.conn.QueryRowContext(ctx, habitSelect+` WHERE id = ?`, id)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	return h, err
}

// ListHabits returns all habits for the user. Tombstoned rows are
// excluded unless includeDeleted is set.
func (s *Store) ListHabits(ctx context.Context, userID string, includeDeleted bool) ([]*schema.HabitRecord, error) {
	query := habitSelect + ` WHERE user_id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	var habits []*schema.HabitRecord
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating habits: %w", err)
	}
	return habits, nil
}

// HabitPendingSync reports whether the habit row is marked as having
// unflushed local changes.
func (s *Store) HabitPendingSync(ctx context.Context, id string) (bool, error) {
	var pending int
	err := s.conn.QueryRowContext(ctx, `SELECT pending_sync FROM habits WHERE id = ?`, id).Scan(&pending)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read pending_sync for %s: %w", id, err)
	}
	return pending != 0, nil
}

// ApplyRemoteHabit upserts a cloud-origin habit as already-synced: the
// row is written without an outbox entry and with pending_sync cleared.
// Used by the pull reconciler after conflict resolution has decided the
// remote version wins.
func (s *Store) ApplyRemoteHabit(ctx context.Context, h *schema.HabitRecord) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := writeHabitRow(ctx, tx, h, false); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remote habit: %w", err)
	}
	return nil
}

const habitSelect = `
SELECT id, user_id, name, category, schedule, goal_id, archived,
       created_at, updated_at, deleted_at
FROM habits`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHabit(row rowScanner) (*schema.HabitRecord, error) {
	var h schema.HabitRecord
	var scheduleJSON, createdAt, updatedAt string
	var deletedAt sql.NullString
	var archived int

	err := row.Scan(
		&h.ID,
		&h.UserID,
		&h.Name,
		&h.Category,
		&scheduleJSON,
		&h.GoalID,
		&archived,
		&createdAt,
		&updatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan habit: %w", err)
	}

	if err := json.Unmarshal([]byte(scheduleJSON), &h.Schedule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule: %w", err)
	}
	h.Archived = archived != 0
	h.CreatedAt = parseTime(createdAt)
	h.UpdatedAt = parseTime(updatedAt)
	h.DeletedAt = nullToTime(deletedAt)
	return &h, nil
}

// writeHabitRow upserts the habit row. pending marks the row as having
// local changes the push reconciler still has to deliver.
func writeHabitRow(ctx context.Context, tx *sql.Tx, h *schema.HabitRecord, pending bool) error {
	scheduleJSON, err := json.Marshal(h.Schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	query := `
	INSERT INTO habits (
		id, user_id, name, category, schedule, goal_id, archived,
		created_at, updated_at, deleted_at, pending_sync
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		name = excluded.name,
		category = excluded.category,
		schedule = excluded.schedule,
		goal_id = excluded.goal_id,
		archived = excluded.archived,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		pending_sync = excluded.pending_sync
	`

	pendingFlag := 0
	if pending {
		pendingFlag = 1
	}
	archived := 0
	if h.Archived {
		archived = 1
	}

	_, err = tx.ExecContext(ctx, query,
		h.ID,
		h.UserID,
		h.Name,
		h.Category,
		string(scheduleJSON),
		h.GoalID,
		archived,
		formatTime(h.CreatedAt),
		formatTime(h.UpdatedAt),
		timeToNull(h.DeletedAt),
		pendingFlag,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert habit %s: %w", h.ID, err)
	}
	return nil
}

func getHabitTx(ctx context.Context, tx *sql.Tx, id string) (*schema.HabitRecord, error) {
	row := tx.QueryRowContext(ctx, habitSelect+` WHERE id = ?`, id)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	return h, err
}
