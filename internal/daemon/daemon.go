// Package daemon runs the background sync loop: an orchestrator that
// fires push-then-pull cycles on an interval, on demand, and on
// connectivity regain, with overlapping triggers coalesced into the
// cycle already in flight.
package daemon

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/habitloop/habitloop/internal/events"
	"github.com/habitloop/habitloop/internal/reconcile"
	"github.com/habitloop/habitloop/internal/store"
)

// CycleReport captures the outcome of one sync cycle. OutboxDepth is
// the number of entries still pending after the cycle.
type CycleReport struct {
	StartedAt   time.Time             `json:"started_at"`
	Duration    time.Duration         `json:"duration"`
	Push        *reconcile.PushReport `json:"push,omitempty"`
	Pull        *reconcile.PullReport `json:"pull,omitempty"`
	OutboxDepth int                   `json:"outbox_depth"`
	Error       string                `json:"error,omitempty"`
}

// Orchestrator owns the sync cadence. At most one cycle runs at a time;
// TriggerSync during a cycle queues exactly one follow-up.
type Orchestrator struct {
	store    *store.Store
	pusher   *reconcile.Pusher
	puller   *reconcile.Puller
	conn     Provider
	bus      *events.Bus
	logger   *log.Logger
	interval time.Duration

	inFlight atomic.Bool
	trigger  chan struct{}

	mu   sync.Mutex
	last *CycleReport
}

func NewOrchestrator(st *store.Store, pusher *reconcile.Pusher, puller *reconcile.Puller, conn Provider, bus *events.Bus, logger *log.Logger, interval time.Duration) *Orchestrator {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Orchestrator{
		store:    st,
		pusher:   pusher,
		puller:   puller,
		conn:     conn,
		bus:      bus,
		logger:   logger,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// TriggerSync requests a cycle without blocking. If one is already
// running the request coalesces into the pending slot.
func (o *Orchestrator) TriggerSync() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// LastReport returns the most recent cycle report, or nil before the
// first cycle.
func (o *Orchestrator) LastReport() *CycleReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Run drives cycles until ctx is cancelled. An immediate cycle fires on
// startup so a device that was offline overnight converges right away.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.RunCycle(ctx)
		case <-o.trigger:
			o.RunCycle(ctx)
		case online := <-o.conn.Changes():
			if online {
				o.logger.Printf("connectivity regained, syncing")
				o.RunCycle(ctx)
			}
		}
	}
}

// RunCycle executes one push-then-pull cycle. It returns the report, or
// nil when skipped because offline or because a cycle is already in
// flight.
func (o *Orchestrator) RunCycle(ctx context.Context) *CycleReport {
	if !o.conn.Online() {
		o.logger.Printf("offline, skipping sync cycle")
		return nil
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer o.inFlight.Store(false)

	report := &CycleReport{StartedAt: time.Now().UTC()}

	push, err := o.pusher.Drain(ctx)
	report.Push = push
	if err != nil {
		report.Error = err.Error()
		o.snapshotOutbox(ctx, report)
		o.finish(report)
		return report
	}

	pull, err := o.puller.Run(ctx)
	report.Pull = pull
	if err != nil {
		report.Error = err.Error()
	}
	o.snapshotOutbox(ctx, report)
	o.finish(report)
	return report
}

func (o *Orchestrator) snapshotOutbox(ctx context.Context, report *CycleReport) {
	depth, err := o.store.OutboxDepth(ctx)
	if err != nil {
		o.logger.Printf("outbox depth: %v", err)
		return
	}
	report.OutboxDepth = depth
}

func (o *Orchestrator) finish(report *CycleReport) {
	report.Duration = time.Since(report.StartedAt)

	o.mu.Lock()
	o.last = report
	o.mu.Unlock()

	if report.Error != "" {
		o.logger.Printf("sync cycle failed after %s: %s", report.Duration.Round(time.Millisecond), report.Error)
	} else {
		o.logger.Printf("sync cycle done in %s: pushed=%d pulled=%d",
			report.Duration.Round(time.Millisecond), report.Push.Pushed,
			report.Pull.HabitsApplied+report.Pull.CompletionsApplied)
	}

	if o.bus != nil {
		payload := map[string]any{
			"duration_ms": report.Duration.Milliseconds(),
		}
		if report.Push != nil {
			payload["pushed"] = report.Push.Pushed
			payload["parked"] = report.Push.Parked
		}
		if report.Pull != nil {
			payload["habits_applied"] = report.Pull.HabitsApplied
			payload["completions_applied"] = report.Pull.CompletionsApplied
		}
		payload["outbox_depth"] = report.OutboxDepth
		if report.Error != "" {
			payload["error"] = report.Error
		}
		o.bus.Publish(events.SyncCompleted, payload)
	}
}
