package schema

import (
	"strings"
	"testing"
	"time"
)

func validHabit() *HabitRecord {
	now := time.Now().UTC()
	return &HabitRecord{
		ID:        "habit-1",
		UserID:    "user-1",
		Name:      "Morning run",
		Schedule:  ScheduleRule{Kind: ScheduleWeekly, TaskDays: []int{1, 3, 5}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestHabitValidate_Success(t *testing.T) {
	if err := validHabit().Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
}

func TestHabitValidate_MissingFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*HabitRecord)
	}{
		{"no id", func(h *HabitRecord) { h.ID = "" }},
		{"no user", func(h *HabitRecord) { h.UserID = "" }},
		{"no name", func(h *HabitRecord) { h.Name = "" }},
		{"long name", func(h *HabitRecord) { h.Name = strings.Repeat("x", 201) }},
		{"no created_at", func(h *HabitRecord) { h.CreatedAt = time.Time{} }},
		{"updated before created", func(h *HabitRecord) { h.UpdatedAt = h.CreatedAt.Add(-time.Hour) }},
		{"self goal", func(h *HabitRecord) { h.GoalID = h.ID }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := validHabit()
			tc.mutate(h)
			if err := h.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}

func TestHabitValidate_TombstoneSkipsContent(t *testing.T) {
	h := validHabit()
	at := h.UpdatedAt
	h.DeletedAt = &at
	h.Name = ""
	h.Schedule = ScheduleRule{}

	if err := h.Validate(); err != nil {
		t.Errorf("Validate() on tombstone failed: %v", err)
	}
}

func TestScheduleValidate(t *testing.T) {
	cases := []struct {
		name    string
		rule    ScheduleRule
		wantErr bool
	}{
		{"weekly", ScheduleRule{Kind: ScheduleWeekly, TaskDays: []int{0, 6}}, false},
		{"weekly no days", ScheduleRule{Kind: ScheduleWeekly}, true},
		{"weekly bad day", ScheduleRule{Kind: ScheduleWeekly, TaskDays: []int{7}}, true},
		{"interval", ScheduleRule{Kind: ScheduleInterval, TaskDays: []int{2}, WeekInterval: 2}, false},
		{"interval zero weeks", ScheduleRule{Kind: ScheduleInterval, TaskDays: []int{2}}, true},
		{"monthly", ScheduleRule{Kind: ScheduleMonthly, MonthDay: 15}, false},
		{"monthly day 0", ScheduleRule{Kind: ScheduleMonthly}, true},
		{"monthly day 32", ScheduleRule{Kind: ScheduleMonthly, MonthDay: 32}, true},
		{"unknown kind", ScheduleRule{Kind: "daily"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

// TestTouch_Monotonic checks that updated_at never moves backwards even
// when the wall clock does.
func TestTouch_Monotonic(t *testing.T) {
	h := validHabit()
	before := h.UpdatedAt

	h.Touch(before.Add(-time.Hour))
	if !h.UpdatedAt.After(before) {
		t.Errorf("Touch() with past clock: updated_at = %v, want after %v", h.UpdatedAt, before)
	}
	if got := h.UpdatedAt.Sub(before); got != time.Millisecond {
		t.Errorf("backwards-clock bump = %v, want 1ms", got)
	}

	prev := h.UpdatedAt
	h.Touch(prev.Add(time.Minute))
	if got := h.UpdatedAt.Sub(prev); got != time.Minute {
		t.Errorf("forwards clock: bump = %v, want 1m", got)
	}
}

func TestHabitCodec_RoundTrip(t *testing.T) {
	h := validHabit()
	h.Category = "health"
	at := h.UpdatedAt
	h.DeletedAt = &at

	data, err := EncodeHabit(h)
	if err != nil {
		t.Fatalf("EncodeHabit() failed: %v", err)
	}
	got, err := DecodeHabit(data)
	if err != nil {
		t.Fatalf("DecodeHabit() failed: %v", err)
	}
	if got.ID != h.ID || got.Category != h.Category || !got.Deleted() {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if !got.UpdatedAt.Equal(h.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, h.UpdatedAt)
	}
}

func TestDecodeHabit_Malformed(t *testing.T) {
	if _, err := DecodeHabit([]byte("{not json")); err == nil {
		t.Error("DecodeHabit() succeeded on garbage")
	}
}
