// Package schema provides the record types shared by the local store,
// the cloud boundary, and the sync engine.
package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScheduleKind selects how a habit recurs.
type ScheduleKind string

const (
	// ScheduleWeekly recurs on fixed days of the week.
	ScheduleWeekly ScheduleKind = "weekly"

	// ScheduleInterval recurs every N weeks on fixed days.
	ScheduleInterval ScheduleKind = "interval"

	// ScheduleMonthly recurs on a fixed day of the month.
	ScheduleMonthly ScheduleKind = "monthly"
)

// ScheduleRule describes when a habit is due.
//
// TaskDays uses time.Weekday numbering (Sunday=0). WeekInterval is only
// meaningful for ScheduleInterval, MonthDay only for ScheduleMonthly.
type ScheduleRule struct {
	Kind         ScheduleKind `json:"kind"`
	TaskDays     []int        `json:"task_days,omitempty"`
	WeekInterval int          `json:"week_interval,omitempty"`
	MonthDay     int          `json:"month_day,omitempty"`
}

// Validate checks the rule's field values against its kind.
func (r *ScheduleRule) Validate() error {
	switch r.Kind {
	case ScheduleWeekly, ScheduleInterval:
		if len(r.TaskDays) == 0 {
			return fmt.Errorf("schedule kind %q requires task_days", r.Kind)
		}
		for _, d := range r.TaskDays {
			if d < 0 || d > 6 {
				return fmt.Errorf("task day must be between 0 and 6 (got %d)", d)
			}
		}
		if r.Kind == ScheduleInterval && r.WeekInterval < 1 {
			return fmt.Errorf("week_interval must be at least 1 (got %d)", r.WeekInterval)
		}
	case ScheduleMonthly:
		if r.MonthDay < 1 || r.MonthDay > 31 {
			return fmt.Errorf("month_day must be between 1 and 31 (got %d)", r.MonthDay)
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", r.Kind)
	}
	return nil
}

// HabitRecord is a habit row as it exists in the local store and on the
// cloud boundary. Fields are flat with last-write-wins semantics: the
// whole row is replaced on merge, never merged field-by-field, and
// UpdatedAt decides which version survives a conflict.
type HabitRecord struct {
	// ===== Core Identification =====
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// ===== Content =====
	Name     string       `json:"name"`
	Category string       `json:"category,omitempty"`
	Schedule ScheduleRule `json:"schedule"`

	// GoalID optionally links this habit to a parent goal habit owned by
	// the same user. Enforced at the service layer, not by the store.
	GoalID string `json:"goal_id,omitempty"`

	Archived bool `json:"archived,omitempty"`

	// ===== Timestamps (conflict resolution) =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// DeletedAt is the soft-delete tombstone. A nil value means the habit
	// is live. Deletions are synchronized as tombstones, never as row
	// removal, so slower devices observe "deleted" rather than absence.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the record carries a tombstone.
func (h *HabitRecord) Deleted() bool {
	return h.DeletedAt != nil
}

// Validate checks the record has valid field values. Tombstoned records
// skip schedule validation since their payload may predate schema
// changes on another device.
func (h *HabitRecord) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("id is required")
	}
	if h.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if h.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if h.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	if h.UpdatedAt.Before(h.CreatedAt) {
		return fmt.Errorf("updated_at precedes created_at")
	}
	if h.Deleted() {
		return nil
	}
	if h.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(h.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(h.Name))
	}
	if err := h.Schedule.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	if h.GoalID == h.ID && h.GoalID != "" {
		return fmt.Errorf("habit cannot be its own goal")
	}
	return nil
}

// Touch bumps UpdatedAt to now, keeping it strictly after the previous
// value. Device clocks can step backwards (NTP, timezone edits); the
// monotonic bump keeps last-writer-wins stable for same-device edits.
func (h *HabitRecord) Touch(now time.Time) {
	now = now.UTC()
	if !now.After(h.UpdatedAt) {
		now = h.UpdatedAt.Add(time.Millisecond)
	}
	h.UpdatedAt = now
}

// EncodeHabit serializes a habit to its outbox payload form.
func EncodeHabit(h *HabitRecord) ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal habit %s: %w", h.ID, err)
	}
	return data, nil
}

// DecodeHabit parses an outbox payload back into a habit record.
func DecodeHabit(data []byte) (*HabitRecord, error) {
	var h HabitRecord
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse habit payload: %w", err)
	}
	return &h, nil
}
