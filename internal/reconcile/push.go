package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/habitloop/habitloop/internal/cloud"
	"github.com/habitloop/habitloop/internal/events"
	"github.com/habitloop/habitloop/internal/schema"
	"github.com/habitloop/habitloop/internal/store"
)

// Pusher drains the outbox into the cloud store in enqueue order.
type Pusher struct {
	store       *store.Store
	cloud       cloud.Client
	bus         *events.Bus
	logger      *log.Logger
	batchSize   int
	maxAttempts int
}

// PushReport summarizes one drain pass.
type PushReport struct {
	Pushed int
	Failed int
	Parked int
}

func NewPusher(st *store.Store, cl cloud.Client, bus *events.Bus, logger *log.Logger, batchSize, maxAttempts int) *Pusher {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	return &Pusher{store: st, cloud: cl, bus: bus, logger: logger, batchSize: batchSize, maxAttempts: maxAttempts}
}

// Drain pushes pending outbox entries until the queue is empty or no
// entry in a batch made progress. Entries for a record that already
// failed this pass are skipped so per-record ordering holds; other
// records keep flowing.
func (p *Pusher) Drain(ctx context.Context) (*PushReport, error) {
	report := &PushReport{}
	failed := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := p.store.PendingOutbox(ctx, p.batchSize, p.maxAttempts)
		if err != nil {
			return report, fmt.Errorf("load outbox: %w", err)
		}

		progressed := false
		for _, entry := range batch {
			key := entry.Table + "/" + entry.RecordID
			if failed[key] {
				continue
			}
			if err := p.dispatch(ctx, entry); err != nil {
				failed[key] = true
				report.Failed++
				if cloud.IsPermanent(err) {
					p.park(ctx, entry, err)
					report.Parked++
				} else {
					p.logger.Printf("push %s %s %s failed (attempt %d): %v",
						entry.Op, entry.Table, entry.RecordID, entry.Attempts+1, err)
					if markErr := p.store.MarkOutboxAttempt(ctx, entry.Seq); markErr != nil {
						return report, fmt.Errorf("mark attempt: %w", markErr)
					}
					if entry.Attempts+1 >= p.maxAttempts {
						report.Parked++
						p.publishParked(entry, err)
					}
				}
				continue
			}
			if err := p.store.DeleteOutboxEntry(ctx, entry); err != nil {
				return report, fmt.Errorf("ack outbox entry %d: %w", entry.Seq, err)
			}
			report.Pushed++
			progressed = true
		}

		if !progressed || len(batch) < p.batchSize {
			return report, nil
		}
	}
}

// dispatch replays one outbox entry against the cloud store.
func (p *Pusher) dispatch(ctx context.Context, entry *schema.OutboxEntry) error {
	switch entry.Table {
	case schema.TableHabits:
		h, err := schema.DecodeHabit(entry.Payload)
		if err != nil {
			return &cloud.Error{Op: "decode habit payload", Permanent: true, Err: err}
		}
		if entry.Op == schema.OpDelete {
			return p.cloud.DeleteHabit(ctx, h.ID, deletedAtOr(h.DeletedAt, h.UpdatedAt))
		}
		return p.cloud.UpsertHabit(ctx, h)
	case schema.TableCompletions:
		c, err := schema.DecodeCompletion(entry.Payload)
		if err != nil {
			return &cloud.Error{Op: "decode completion payload", Permanent: true, Err: err}
		}
		if entry.Op == schema.OpDelete {
			return p.cloud.DeleteCompletion(ctx, c.ID, deletedAtOr(c.DeletedAt, c.CreatedAt))
		}
		return p.cloud.UpsertCompletion(ctx, c)
	default:
		return &cloud.Error{Op: "dispatch", Permanent: true, Err: fmt.Errorf("unknown outbox table %q", entry.Table)}
	}
}

func (p *Pusher) park(ctx context.Context, entry *schema.OutboxEntry, cause error) {
	p.logger.Printf("parking outbox entry %d (%s %s %s): %v",
		entry.Seq, entry.Op, entry.Table, entry.RecordID, cause)
	if err := p.store.ParkOutboxEntry(ctx, entry.Seq, p.maxAttempts); err != nil {
		p.logger.Printf("park outbox entry %d: %v", entry.Seq, err)
		return
	}
	p.publishParked(entry, cause)
}

func (p *Pusher) publishParked(entry *schema.OutboxEntry, cause error) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.OutboxParked, map[string]any{
		"seq":       entry.Seq,
		"table":     entry.Table,
		"op":        string(entry.Op),
		"record_id": entry.RecordID,
		"error":     cause.Error(),
	})
}

func deletedAtOr(at *time.Time, fallback time.Time) time.Time {
	if at != nil {
		return *at
	}
	return fallback
}
