package cloud

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/habitloop/habitloop/internal/schema"
)

// Fake is an in-memory Client for tests. It applies the same
// last-writer-wins rule a real cloud store would, records every call,
// and can be scripted to fail.
type Fake struct {
	mu          sync.Mutex
	habits      map[string]*schema.HabitRecord
	completions map[string]*schema.CompletionRecord

	// FailWith, when non-nil, is returned from every mutating call and
	// Ping until cleared. Set a *Error to exercise classification.
	FailWith error

	// Calls counts invocations by operation name.
	Calls map[string]int
}

func NewFake() *Fake {
	return &Fake{
		habits:      make(map[string]*schema.HabitRecord),
		completions: make(map[string]*schema.CompletionRecord),
		Calls:       make(map[string]int),
	}
}

func (f *Fake) record(op string) error {
	f.Calls[op]++
	return f.FailWith
}

func (f *Fake) UpsertHabit(ctx context.Context, h *schema.HabitRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpsertHabit"); err != nil {
		return err
	}
	cp := *h
	if prev, ok := f.habits[h.ID]; ok && prev.UpdatedAt.After(h.UpdatedAt) {
		return nil
	}
	f.habits[h.ID] = &cp
	return nil
}

func (f *Fake) DeleteHabit(ctx context.Context, id string, deletedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteHabit"); err != nil {
		return err
	}
	h, ok := f.habits[id]
	if !ok {
		return nil
	}
	if deletedAt.After(h.UpdatedAt) || deletedAt.Equal(h.UpdatedAt) {
		at := deletedAt
		h.DeletedAt = &at
		h.UpdatedAt = deletedAt
	}
	return nil
}

func (f *Fake) UpsertCompletion(ctx context.Context, c *schema.CompletionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpsertCompletion"); err != nil {
		return err
	}
	cp := *c
	f.completions[c.ID] = &cp
	return nil
}

func (f *Fake) DeleteCompletion(ctx context.Context, id string, deletedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteCompletion"); err != nil {
		return err
	}
	if c, ok := f.completions[id]; ok {
		at := deletedAt
		c.DeletedAt = &at
	}
	return nil
}

func (f *Fake) FetchHabits(ctx context.Context, userID string) ([]*schema.HabitRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["FetchHabits"]++
	var out []*schema.HabitRecord
	for _, h := range f.habits {
		if h.UserID != userID {
			continue
		}
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}

func (f *Fake) FetchCompletions(ctx context.Context, userID string, since time.Time) ([]*schema.CompletionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["FetchCompletions"]++
	cutoff := since.Format(schema.DateLayout)
	var out []*schema.CompletionRecord
	for _, c := range f.completions {
		if c.UserID != userID || c.Date < cutoff {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("Ping")
}

// SeedHabit plants a habit row directly, bypassing call accounting.
func (f *Fake) SeedHabit(h *schema.HabitRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *h
	f.habits[h.ID] = &cp
}

// SeedCompletion plants a completion row directly.
func (f *Fake) SeedCompletion(c *schema.CompletionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.completions[c.ID] = &cp
}

// Habit returns the stored habit row, or nil.
func (f *Fake) Habit(id string) *schema.HabitRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.habits[id]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

// Completion returns the stored completion row, or nil.
func (f *Fake) Completion(id string) *schema.CompletionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.completions[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// ErrUnreachable is a ready-made transient failure for tests.
var ErrUnreachable = &Error{Op: "dial", Err: errors.New("connection refused")}
