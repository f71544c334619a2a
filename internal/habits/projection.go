package habits

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/habitloop/habitloop/internal/events"
	"github.com/habitloop/habitloop/internal/store"
)

// Summary is the read model the dashboard and status command render.
type Summary struct {
	Habits        int        `json:"habits"`
	DoneToday     int        `json:"done_today"`
	OutboxDepth   int        `json:"outbox_depth"`
	ParkedEntries int        `json:"parked_entries"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
	LastSyncError string     `json:"last_sync_error,omitempty"`
}

// Projection maintains a Summary refreshed from the store whenever the
// bus signals a change. Events are hints, not state: every refresh
// rereads the store, so a dropped event costs staleness only until the
// next one.
type Projection struct {
	store       *store.Store
	bus         *events.Bus
	logger      *log.Logger
	userID      string
	maxAttempts int

	mu      sync.RWMutex
	summary Summary
}

func NewProjection(st *store.Store, bus *events.Bus, logger *log.Logger, userID string, maxAttempts int) *Projection {
	return &Projection{store: st, bus: bus, logger: logger, userID: userID, maxAttempts: maxAttempts}
}

// Snapshot returns the current summary.
func (p *Projection) Snapshot() Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.summary
}

// Run refreshes once, then again on every bus event until ctx is
// cancelled.
func (p *Projection) Run(ctx context.Context) {
	ch, cancel := p.bus.Subscribe(16)
	defer cancel()

	p.refresh(ctx, nil)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			p.refresh(ctx, &ev)
		}
	}
}

func (p *Projection) refresh(ctx context.Context, ev *events.Event) {
	habits, err := p.store.ListHabits(ctx, p.userID, false)
	if err != nil {
		p.logger.Printf("projection refresh: %v", err)
		return
	}
	today := time.Now().UTC().Format("2006-01-02")
	history, err := p.store.CompletionsForRange(ctx, p.userID, today, today)
	if err != nil {
		p.logger.Printf("projection refresh: %v", err)
		return
	}
	depth, err := p.store.OutboxDepth(ctx)
	if err != nil {
		p.logger.Printf("projection refresh: %v", err)
		return
	}
	parked, err := p.store.ParkedOutbox(ctx, p.maxAttempts)
	if err != nil {
		p.logger.Printf("projection refresh: %v", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.summary.Habits = len(habits)
	p.summary.DoneToday = len(history[today])
	p.summary.OutboxDepth = depth
	p.summary.ParkedEntries = len(parked)
	if ev != nil && ev.Kind == events.SyncCompleted {
		at := ev.At
		p.summary.LastSync = &at
		if msg, ok := ev.Payload["error"].(string); ok {
			p.summary.LastSyncError = msg
		} else {
			p.summary.LastSyncError = ""
		}
	}
}
