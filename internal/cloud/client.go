// Package cloud defines the cloud store boundary: row-level upserts and
// soft-deletes for habits and completions, plus the pull queries the
// reconcilers use. The engine only ever talks to the cloud through the
// Client interface; the HTTP implementation and the in-memory fake both
// satisfy it.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitloop/habitloop/internal/schema"
)

// Client is the cloud store boundary consumed by the reconcilers.
//
// Upserts are idempotent by record id: at-least-once delivery from the
// outbox combined with idempotent application yields
// exactly-once-effective semantics. Deletes are soft: they set
// deleted_at on the cloud row, never remove it, so other devices
// observe tombstones rather than absence.
type Client interface {
	UpsertHabit(ctx context.Context, h *schema.HabitRecord) error
	DeleteHabit(ctx context.Context, id string, deletedAt time.Time) error

	UpsertCompletion(ctx context.Context, c *schema.CompletionRecord) error
	DeleteCompletion(ctx context.Context, id string, deletedAt time.Time) error

	// FetchHabits returns every habit row owned by the user, tombstones
	// included. Habit cardinality is small enough not to need a window.
	FetchHabits(ctx context.Context, userID string) ([]*schema.HabitRecord, error)

	// FetchCompletions returns the user's completion rows dated on or
	// after since, tombstones included.
	FetchCompletions(ctx context.Context, userID string, since time.Time) ([]*schema.CompletionRecord, error)

	// Ping is a cheap reachability probe used by the connectivity
	// monitor.
	Ping(ctx context.Context) error
}

// Error is a classified cloud failure. Permanent errors (validation
// rejects, malformed payloads) cannot succeed on retry; everything else
// is treated as transient and retried via the outbox attempt counter.
type Error struct {
	Op        string
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("cloud %s: %s failure: %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a cloud failure that retrying
// cannot fix.
func IsPermanent(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Permanent
}
