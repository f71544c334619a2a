// Package habits is the application layer over the local store: habit
// CRUD, completion toggles, history views, and streaks. Every mutation
// goes through the store so its outbox write happens in the same
// transaction; the service adds validation, event publication, and the
// cloud-only degraded mode used when local storage cannot be opened.
package habits

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/habitloop/habitloop/internal/cloud"
	"github.com/habitloop/habitloop/internal/events"
	"github.com/habitloop/habitloop/internal/schema"
	"github.com/habitloop/habitloop/internal/store"
)

// Service exposes habit operations. When store is nil the service runs
// in cloud-only mode: reads and writes go straight to the cloud, with
// no offline durability and no outbox.
type Service struct {
	store  *store.Store
	cloud  cloud.Client
	bus    *events.Bus
	logger *log.Logger
	userID string
}

func NewService(st *store.Store, cl cloud.Client, bus *events.Bus, logger *log.Logger, userID string) *Service {
	return &Service{store: st, cloud: cl, bus: bus, logger: logger, userID: userID}
}

// CloudOnly reports whether the service is running without a local
// store.
func (s *Service) CloudOnly() bool {
	return s.store == nil
}

// CreateHabit validates and persists a new habit.
func (s *Service) CreateHabit(ctx context.Context, name, category string, schedule schema.ScheduleRule, goalID string) (*schema.HabitRecord, error) {
	h := schema.HabitRecord{
		UserID:   s.userID,
		Name:     name,
		Category: category,
		Schedule: schedule,
		GoalID:   goalID,
	}
	if goalID != "" {
		if err := s.checkGoal(ctx, goalID); err != nil {
			return nil, err
		}
	}

	if s.CloudOnly() {
		h.ID = uuid.NewString()
		now := time.Now().UTC()
		h.CreatedAt = now
		h.UpdatedAt = now
		if err := h.Validate(); err != nil {
			return nil, err
		}
		if err := s.cloud.UpsertHabit(ctx, &h); err != nil {
			return nil, err
		}
		s.publishHabit(events.HabitCreated, &h)
		return &h, nil
	}

	created, err := s.store.InsertHabit(ctx, h)
	if err != nil {
		return nil, err
	}
	s.publishHabit(events.HabitCreated, created)
	return created, nil
}

// UpdateHabit applies a partial update to a live habit.
func (s *Service) UpdateHabit(ctx context.Context, id string, patch store.HabitPatch) (*schema.HabitRecord, error) {
	if s.CloudOnly() {
		return nil, fmt.Errorf("habit updates require local storage")
	}
	if patch.GoalID != nil && *patch.GoalID != "" {
		if err := s.checkGoal(ctx, *patch.GoalID); err != nil {
			return nil, err
		}
	}
	updated, err := s.store.UpdateHabit(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.publishHabit(events.HabitUpdated, updated)
	return updated, nil
}

// DeleteHabit tombstones a habit. Deleting an already-deleted habit is
// a no-op.
func (s *Service) DeleteHabit(ctx context.Context, id string) error {
	if s.CloudOnly() {
		if err := s.cloud.DeleteHabit(ctx, id, time.Now().UTC()); err != nil {
			return err
		}
		s.publishDeleted(id)
		return nil
	}
	if err := s.store.SoftDeleteHabit(ctx, id); err != nil {
		return err
	}
	s.publishDeleted(id)
	return nil
}

// GetHabit returns the habit, tombstoned or not.
func (s *Service) GetHabit(ctx context.Context, id string) (*schema.HabitRecord, error) {
	if s.CloudOnly() {
		return s.fetchCloudHabit(ctx, id)
	}
	return s.store.GetHabit(ctx, id)
}

// ListHabits returns the user's live habits.
func (s *Service) ListHabits(ctx context.Context) ([]*schema.HabitRecord, error) {
	if s.CloudOnly() {
		all, err := s.cloud.FetchHabits(ctx, s.userID)
		if err != nil {
			return nil, err
		}
		live := all[:0]
		for _, h := range all {
			if !h.Deleted() {
				live = append(live, h)
			}
		}
		return live, nil
	}
	return s.store.ListHabits(ctx, s.userID, false)
}

// Toggle flips the completion state for (habitID, date) and returns
// the new state. Toggling an unknown or deleted habit fails.
func (s *Service) Toggle(ctx context.Context, habitID, date string) (bool, error) {
	if s.CloudOnly() {
		return false, fmt.Errorf("completion toggles require local storage")
	}
	if _, err := time.Parse(schema.DateLayout, date); err != nil {
		return false, fmt.Errorf("invalid date %q: %w", date, err)
	}
	h, err := s.store.GetHabit(ctx, habitID)
	if err != nil {
		return false, err
	}
	if h.Deleted() {
		return false, fmt.Errorf("habit %s is deleted", habitID)
	}

	done, err := s.store.ToggleCompletion(ctx, habitID, s.userID, date)
	if err != nil {
		return false, err
	}
	s.publishToggle(habitID, date, done)
	return done, nil
}

// History returns per-day completed habit ids over [start, end], with
// an entry for every day in the range.
func (s *Service) History(ctx context.Context, start, end string) (map[string][]string, error) {
	if s.CloudOnly() {
		return nil, fmt.Errorf("history requires local storage")
	}
	return s.store.CompletionsForRange(ctx, s.userID, start, end)
}

func (s *Service) checkGoal(ctx context.Context, goalID string) error {
	if s.CloudOnly() {
		return nil
	}
	goal, err := s.store.GetHabit(ctx, goalID)
	if err != nil {
		return fmt.Errorf("goal %s: %w", goalID, err)
	}
	if goal.Deleted() {
		return fmt.Errorf("goal %s is deleted", goalID)
	}
	if goal.UserID != s.userID {
		return fmt.Errorf("goal %s belongs to another user", goalID)
	}
	return nil
}

func (s *Service) fetchCloudHabit(ctx context.Context, id string) (*schema.HabitRecord, error) {
	all, err := s.cloud.FetchHabits(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	for _, h := range all {
		if h.ID == id {
			return h, nil
		}
	}
	return nil, fmt.Errorf("habit %s: %w", id, store.ErrNotFound)
}

// publishHabit emits a habit event carrying the record's new state so
// listeners can react without rereading the store.
func (s *Service) publishHabit(kind string, h *schema.HabitRecord) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(kind, map[string]any{
		"habit_id":   h.ID,
		"name":       h.Name,
		"deleted":    h.Deleted(),
		"updated_at": h.UpdatedAt,
	})
}

func (s *Service) publishDeleted(habitID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.HabitDeleted, map[string]any{
		"habit_id": habitID,
		"deleted":  true,
	})
}

func (s *Service) publishToggle(habitID, date string, done bool) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.HabitCompletionUpdated, map[string]any{
		"habit_id": habitID,
		"date":     date,
		"done":     done,
	})
}
