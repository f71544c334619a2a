// Package reconcile implements the push and pull halves of a sync
// cycle. Push drains the outbox into the cloud store; pull fetches the
// cloud rows and merges them into the local store under
// last-writer-wins, with local pending deletes exempt and remote habit
// tombstones propagated unconditionally.
package reconcile

import (
	"github.com/habitloop/habitloop/internal/schema"
)

// Decision names what the pull reconciler should do with one remote
// row. Separating the decision from its execution keeps the merge rules
// testable without a database.
type Decision int

const (
	// Skip leaves the local store untouched.
	Skip Decision = iota
	// InsertRemote writes a remote row the device has never seen.
	InsertRemote
	// ApplyRemote overwrites the local row with the newer remote one.
	ApplyRemote
	// ApplyRemoteTombstone marks the local row deleted because the
	// remote row is a tombstone.
	ApplyRemoteTombstone
	// KeepLocal retains the local row; the next push will settle it.
	KeepLocal
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case InsertRemote:
		return "insert-remote"
	case ApplyRemote:
		return "apply-remote"
	case ApplyRemoteTombstone:
		return "apply-remote-tombstone"
	case KeepLocal:
		return "keep-local"
	default:
		return "unknown"
	}
}

// DecideHabit merges one remote habit against its local counterpart.
// local is nil when the device has no row for the id;
// localDeletePending reports whether a DELETE for the row is still
// sitting in the outbox.
//
// Rules, in order:
//  1. Unknown remote tombstones are ignored; live unknowns inserted.
//  2. An unflushed local delete wins over anything remote. Once the
//     delete has been pushed the exemption lapses and the rows compete
//     on timestamps like any others.
//  3. A remote tombstone otherwise propagates inward regardless of
//     timestamps, so a deletion anywhere becomes a deletion everywhere.
//  4. Last-writer-wins on updated_at; ties keep local.
func DecideHabit(local *schema.HabitRecord, localDeletePending bool, remote *schema.HabitRecord) Decision {
	if local == nil {
		if remote.Deleted() {
			return Skip
		}
		return InsertRemote
	}
	if local.Deleted() && localDeletePending {
		return KeepLocal
	}
	if remote.Deleted() {
		if local.Deleted() {
			return Skip
		}
		return ApplyRemoteTombstone
	}
	if remote.UpdatedAt.After(local.UpdatedAt) {
		return ApplyRemote
	}
	return KeepLocal
}

// DecideCompletion merges one remote completion against the local row
// for the same (habit, date) key. Completions never conflict on
// content, only on existence: a missing local row is filled in, a
// remote tombstone propagates unless a local delete is still pending,
// and everything else is left alone.
func DecideCompletion(local *schema.CompletionRecord, localDeletePending bool, remote *schema.CompletionRecord) Decision {
	if local == nil {
		if remote.Deleted() {
			return Skip
		}
		return InsertRemote
	}
	if remote.Deleted() && !local.Deleted() {
		if localDeletePending {
			return KeepLocal
		}
		return ApplyRemoteTombstone
	}
	return Skip
}
