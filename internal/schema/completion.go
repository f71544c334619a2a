package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for completion keys.
const DateLayout = "2006-01-02"

// CompletionRecord is one day's record of a habit. Its natural identity
// is (habit_id, date, user_id); the ID exists so the cloud store can
// address individual rows. Completions are an append-mostly log: a
// remote row never overwrites a live local row, only tombstone
// propagation does.
type CompletionRecord struct {
	ID      string `json:"id"`
	HabitID string `json:"habit_id"`
	UserID  string `json:"user_id"`

	// Date is the calendar day in DateLayout form.
	Date string `json:"date"`

	// Value is 1 for plain boolean habits; numeric habits store the
	// measured amount.
	Value float64 `json:"value"`

	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the record carries a tombstone.
func (c *CompletionRecord) Deleted() bool {
	return c.DeletedAt != nil
}

// Validate checks the record has valid field values.
func (c *CompletionRecord) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.HabitID == "" {
		return fmt.Errorf("habit_id is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if _, err := time.Parse(DateLayout, c.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", c.Date, err)
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// EncodeCompletion serializes a completion to its outbox payload form.
func EncodeCompletion(c *CompletionRecord) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion %s: %w", c.ID, err)
	}
	return data, nil
}

// DecodeCompletion parses an outbox payload back into a completion.
func DecodeCompletion(data []byte) (*CompletionRecord, error) {
	var c CompletionRecord
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse completion payload: %w", err)
	}
	return &c, nil
}
