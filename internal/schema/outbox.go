package schema

import (
	"fmt"
	"time"
)

// Operation is the kind of local mutation an outbox entry carries.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Target table names for outbox entries, matching the cloud store's
// row schema.
const (
	TableHabits      = "habits"
	TableCompletions = "habit_completions"
)

// OutboxEntry is one pending local mutation awaiting delivery to the
// cloud. Entries are created in the same transaction as the mutation
// they represent and deleted once the cloud acknowledges the write.
//
// The payload is a full JSON snapshot of the row at enqueue time, not a
// delta, so a replay is self-contained regardless of what happened to
// the live row since.
type OutboxEntry struct {
	// Seq is the monotonically increasing sequence id. Entries for the
	// same record id are delivered in Seq order.
	Seq int64 `json:"seq"`

	Table    string    `json:"table"`
	Op       Operation `json:"op"`
	RecordID string    `json:"record_id"`
	Payload  []byte    `json:"payload"`

	EnqueuedAt time.Time `json:"enqueued_at"`

	// Attempts counts failed delivery attempts. An entry with
	// Attempts >= the configured maximum is parked: excluded from
	// draining but retained for diagnostics.
	Attempts int `json:"attempts"`
}

// Validate checks the entry has valid field values.
func (e *OutboxEntry) Validate() error {
	switch e.Table {
	case TableHabits, TableCompletions:
	default:
		return fmt.Errorf("unknown outbox table %q", e.Table)
	}
	switch e.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return fmt.Errorf("unknown outbox operation %q", e.Op)
	}
	if e.RecordID == "" {
		return fmt.Errorf("record_id is required")
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	return nil
}
