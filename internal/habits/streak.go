package habits

import (
	"context"
	"fmt"
	"time"

	"github.com/habitloop/habitloop/internal/schema"
)

// streakLookback bounds how far Streak walks backwards. A year of
// unbroken daily completions is far beyond anything the UI renders.
const streakLookback = 366

// Streak returns the habit's current streak: the number of consecutive
// scheduled occurrences, counting backwards from today, that have a
// completion. Days the habit is not due neither extend nor break it.
// Today itself only breaks the streak once it has passed unmissed, so
// an unticked today reports yesterday's streak.
func (s *Service) Streak(ctx context.Context, habitID string, today time.Time) (int, error) {
	if s.CloudOnly() {
		return 0, fmt.Errorf("streaks require local storage")
	}
	h, err := s.store.GetHabit(ctx, habitID)
	if err != nil {
		return 0, err
	}

	start := today.AddDate(0, 0, -streakLookback).Format(schema.DateLayout)
	end := today.Format(schema.DateLayout)
	history, err := s.store.CompletionsForRange(ctx, s.userID, start, end)
	if err != nil {
		return 0, err
	}

	done := make(map[string]bool)
	for date, ids := range history {
		for _, id := range ids {
			if id == habitID {
				done[date] = true
			}
		}
	}

	streak := 0
	for i := 0; i <= streakLookback; i++ {
		day := today.AddDate(0, 0, -i)
		if day.Before(h.CreatedAt.Truncate(24 * time.Hour)) {
			break
		}
		if !dueOn(h, day) {
			continue
		}
		if done[day.Format(schema.DateLayout)] {
			streak++
			continue
		}
		if i == 0 {
			continue
		}
		break
	}
	return streak, nil
}

// dueOn reports whether the habit is scheduled on the given day. The
// interval schedule anchors its week cadence on the week the habit was
// created.
func dueOn(h *schema.HabitRecord, day time.Time) bool {
	rule := h.Schedule
	switch rule.Kind {
	case schema.ScheduleWeekly:
		return containsDay(rule.TaskDays, int(day.Weekday()))
	case schema.ScheduleInterval:
		if !containsDay(rule.TaskDays, int(day.Weekday())) {
			return false
		}
		weeks := int(weekStart(day).Sub(weekStart(h.CreatedAt)).Hours() / (24 * 7))
		return weeks >= 0 && weeks%rule.WeekInterval == 0
	case schema.ScheduleMonthly:
		if day.Day() == rule.MonthDay {
			return true
		}
		// Day 31 in a 30-day month falls on the month's last day.
		next := day.AddDate(0, 0, 1)
		return next.Day() == 1 && day.Day() < rule.MonthDay
	default:
		return false
	}
}

func containsDay(days []int, weekday int) bool {
	for _, d := range days {
		if d == weekday {
			return true
		}
	}
	return false
}

// weekStart truncates to the preceding Sunday at midnight UTC.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return t.AddDate(0, 0, -int(t.Weekday()))
}
