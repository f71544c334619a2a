package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/habitloop/habitloop/internal/schema"
)

// enqueueOutbox appends a mutation to the outbox inside the caller's
// transaction, so the mutation and its outbox entry commit atomically.
func enqueueOutbox(ctx context.Context, tx *sql.Tx, table string, op schema.Operation, recordID string, payload []byte) error {
	entry := schema.OutboxEntry{
		Table:    table,
		Op:       op,
		RecordID: recordID,
		Payload:  payload,
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid outbox entry: %w", err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox (target_table, op, record_id, payload, enqueued_at, attempts)
		VALUES (?, ?, ?, ?, ?, 0)`,
		table, string(op), recordID, string(payload), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox entry for %s: %w", recordID, err)
	}
	return nil
}

// PendingOutbox returns up to limit of the oldest entries with
// attempts < maxAttempts, in sequence order. Entries whose record has
// an earlier parked entry are excluded: delivering them out of order
// would reorder that record's history. Parked entries for one record
// never block draining of other records.
func (s *Store) PendingOutbox(ctx context.Context, limit, maxAttempts int) ([]*schema.OutboxEntry, error) {
	query := `
	SELECT seq, target_table, op, record_id, payload, enqueued_at, attempts
	FROM outbox o
	WHERE attempts < ?
	  AND NOT EXISTS (
		SELECT 1 FROM outbox p
		WHERE p.record_id = o.record_id AND p.attempts >= ? AND p.seq < o.seq
	  )
	ORDER BY seq ASC
	LIMIT ?`

	rows, err := s.conn.QueryContext(ctx, query, maxAttempts, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	return scanOutbox(rows)
}

// ParkedOutbox returns entries excluded from draining because they
// exhausted their attempts. Retained for diagnostics.
func (s *Store) ParkedOutbox(ctx context.Context, maxAttempts int) ([]*schema.OutboxEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT seq, target_table, op, record_id, payload, enqueued_at, attempts
		FROM outbox WHERE attempts >= ? ORDER BY seq ASC`, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to query parked outbox: %w", err)
	}
	defer rows.Close()

	return scanOutbox(rows)
}

// OutboxDepth returns the total number of outbox entries, parked
// entries included.
func (s *Store) OutboxDepth(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}

// MarkOutboxAttempt increments the attempt counter after a failed
// delivery.
func (s *Store) MarkOutboxAttempt(ctx context.Context, seq int64) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("failed to mark outbox attempt %d: %w", seq, err)
	}
	return nil
}

// ParkOutboxEntry pins the entry at maxAttempts so it is excluded from
// draining immediately. Used for permanent delivery failures where
// retrying cannot help.
func (s *Store) ParkOutboxEntry(ctx context.Context, seq int64, maxAttempts int) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE outbox SET attempts = ? WHERE seq = ? AND attempts < ?`,
		maxAttempts, seq, maxAttempts)
	if err != nil {
		return fmt.Errorf("failed to park outbox entry %d: %w", seq, err)
	}
	return nil
}

// DeleteOutboxEntry removes a confirmed entry and, when it was the last
// pending entry for its record, clears the record's pending_sync flag.
func (s *Store) DeleteOutboxEntry(ctx context.Context, entry *schema.OutboxEntry) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox WHERE seq = ?`, entry.Seq); err != nil {
		return fmt.Errorf("failed to delete outbox entry %d: %w", entry.Seq, err)
	}

	var remaining int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE record_id = ?`, entry.RecordID).Scan(&remaining)
	if err != nil {
		return fmt.Errorf("failed to count outbox entries for %s: %w", entry.RecordID, err)
	}

	if remaining == 0 {
		table := "habits"
		if entry.Table == schema.TableCompletions {
			table = "completions"
		}
		query := fmt.Sprintf(`UPDATE %s SET pending_sync = 0 WHERE id = ?`, table)
		if _, err := tx.ExecContext(ctx, query, entry.RecordID); err != nil {
			return fmt.Errorf("failed to clear pending_sync for %s: %w", entry.RecordID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outbox delete: %w", err)
	}
	return nil
}

// HasPendingDelete reports whether the record has an undelivered DELETE
// outbox entry. The pull reconciler uses this to let a pending local
// deletion win over a concurrent remote edit.
func (s *Store) HasPendingDelete(ctx context.Context, table, recordID string) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outbox
		WHERE target_table = ? AND record_id = ? AND op = ?`,
		table, recordID, string(schema.OpDelete)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check pending delete for %s: %w", recordID, err)
	}
	return n > 0, nil
}

func scanOutbox(rows *sql.Rows) ([]*schema.OutboxEntry, error) {
	var entries []*schema.OutboxEntry
	for rows.Next() {
		var e schema.OutboxEntry
		var op, payload, enqueuedAt string
		if err := rows.Scan(&e.Seq, &e.Table, &op, &e.RecordID, &payload, &enqueuedAt, &e.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.Op = schema.Operation(op)
		e.Payload = []byte(payload)
		e.EnqueuedAt = parseTime(enqueuedAt)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox: %w", err)
	}
	return entries, nil
}
