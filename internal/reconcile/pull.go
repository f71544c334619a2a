package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/habitloop/habitloop/internal/cloud"
	"github.com/habitloop/habitloop/internal/schema"
	"github.com/habitloop/habitloop/internal/store"
)

// Puller merges cloud rows into the local store.
type Puller struct {
	store      *store.Store
	cloud      cloud.Client
	logger     *log.Logger
	userID     string
	windowDays int
}

// PullReport summarizes one pull pass.
type PullReport struct {
	HabitsApplied      int
	HabitsDeleted      int
	CompletionsApplied int
	Skipped            int
}

func NewPuller(st *store.Store, cl cloud.Client, logger *log.Logger, userID string, windowDays int) *Puller {
	if windowDays <= 0 {
		windowDays = 90
	}
	return &Puller{store: st, cloud: cl, logger: logger, userID: userID, windowDays: windowDays}
}

// Run fetches the user's cloud rows and merges them. Habits come down
// in full; completions only within the pull window, which keeps
// transfer bounded for long-lived accounts.
func (p *Puller) Run(ctx context.Context) (*PullReport, error) {
	report := &PullReport{}

	habits, err := p.cloud.FetchHabits(ctx, p.userID)
	if err != nil {
		return report, fmt.Errorf("fetch habits: %w", err)
	}
	for _, remote := range habits {
		if err := p.mergeHabit(ctx, remote, report); err != nil {
			return report, err
		}
	}

	since := time.Now().UTC().AddDate(0, 0, -p.windowDays)
	completions, err := p.cloud.FetchCompletions(ctx, p.userID, since)
	if err != nil {
		return report, fmt.Errorf("fetch completions: %w", err)
	}
	for _, remote := range completions {
		if err := p.mergeCompletion(ctx, remote, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (p *Puller) mergeHabit(ctx context.Context, remote *schema.HabitRecord, report *PullReport) error {
	local, err := p.store.GetHabit(ctx, remote.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load local habit %s: %w", remote.ID, err)
	}

	deletePending := false
	if local != nil {
		deletePending, err = p.store.HasPendingDelete(ctx, schema.TableHabits, local.ID)
		if err != nil {
			return err
		}
	}

	switch d := DecideHabit(local, deletePending, remote); d {
	case InsertRemote, ApplyRemote:
		if err := p.store.ApplyRemoteHabit(ctx, remote); err != nil {
			return err
		}
		report.HabitsApplied++
	case ApplyRemoteTombstone:
		merged := p.tombstoned(local, remote)
		if err := p.store.ApplyRemoteHabit(ctx, merged); err != nil {
			return err
		}
		report.HabitsDeleted++
		p.logger.Printf("habit %s deleted remotely, tombstone applied", remote.ID)
	default:
		report.Skipped++
	}
	return nil
}

// tombstoned builds the row to persist for an inbound habit tombstone.
// When the remote row is the newer one it is taken wholesale; otherwise
// the local content survives and only the deletion marker comes from
// the remote side.
func (p *Puller) tombstoned(local, remote *schema.HabitRecord) *schema.HabitRecord {
	if remote.UpdatedAt.After(local.UpdatedAt) {
		return remote
	}
	merged := *local
	merged.DeletedAt = remote.DeletedAt
	if merged.DeletedAt == nil {
		at := remote.UpdatedAt
		merged.DeletedAt = &at
	}
	return &merged
}

func (p *Puller) mergeCompletion(ctx context.Context, remote *schema.CompletionRecord, report *PullReport) error {
	local, err := p.store.GetCompletion(ctx, remote.HabitID, remote.Date)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load local completion (%s, %s): %w", remote.HabitID, remote.Date, err)
	}

	deletePending := false
	if local != nil {
		deletePending, err = p.store.HasPendingDelete(ctx, schema.TableCompletions, local.ID)
		if err != nil {
			return err
		}
	}

	switch DecideCompletion(local, deletePending, remote) {
	case InsertRemote, ApplyRemoteTombstone:
		if err := p.store.ApplyRemoteCompletion(ctx, remote); err != nil {
			return err
		}
		report.CompletionsApplied++
	default:
		report.Skipped++
	}
	return nil
}
