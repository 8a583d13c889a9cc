// Package reconcile decides what to do when a path that should exist on one
// side has gone missing: propagate the deletion to the other side, or treat
// the loss as accidental and keep the surviving copy. The evidence that a
// deletion was deliberate is a matching entry in the user's trash, unless
// the DeleteAlways policy short-circuits the question.
package reconcile

import (
	log "github.com/sirupsen/logrus"

	"github.com/zielen-io/zielen/pkg/errors"
	"github.com/zielen-io/zielen/pkg/store"
	"github.com/zielen-io/zielen/pkg/trash"
)

// Side identifies which side a path went missing from.
type Side int

const (
	SideLocal Side = iota
	SideRemote
)

func (s Side) String() string {
	if s == SideRemote {
		return "remote"
	}
	return "local"
}

// State tracks a deletion event through the decision machine.
type State int

const (
	// StateDetected: the path was reported missing and nothing has been
	// decided yet.
	StateDetected State = iota

	// StateTrashChecked: the trash lookup ran (or failed and was treated as
	// no match).
	StateTrashChecked

	// StatePropagated: the deletion is deliberate and will be applied to
	// the other side; the record is queued for removal.
	StatePropagated

	// StateSuppressed: no evidence the deletion was deliberate; the
	// surviving copy is kept and the record reverts to single-sided
	// residency.
	StateSuppressed
)

// Event is one path reported missing on a side where the metadata store
// previously showed it present.
type Event struct {
	Path string
	Side Side
}

// Outcome is the reconciler's decision for one event.
type Outcome struct {
	Path  string
	State State

	// DeleteLocal/DeleteRemote ask the executor to remove the surviving
	// bytes on that side.
	DeleteLocal  bool
	DeleteRemote bool

	// MarkRemote asks for the remote copy to be renamed to a deletion
	// marker rather than unlinked, leaving a grace window before
	// `empty-trash` purges it. Set when the propagation rests on trash
	// evidence rather than the DeleteAlways policy.
	MarkRemote bool
}

// Lookup is the trash-search collaborator.
type Lookup interface {
	Find(deletedPath string, size int64) (trash.Result, error)
}

// Reconciler applies the deletion policy to detected removals.
type Reconciler struct {
	store        *store.Store
	trash        Lookup
	deleteAlways bool
}

// New returns a Reconciler over the given store and trash lookup.
func New(st *store.Store, lookup Lookup, deleteAlways bool) *Reconciler {
	return &Reconciler{store: st, trash: lookup, deleteAlways: deleteAlways}
}

// Reconcile runs every event through the state machine and updates record
// residency accordingly. Records for propagated deletions move to
// PendingDelete; the executor removes them once both sides confirm.
// Re-running an already-suppressed path is a no-op, because suppression
// rewrites the record's residency so the next scan no longer reports it
// missing.
func (r *Reconciler) Reconcile(events []Event) ([]Outcome, error) {
	var outcomes []Outcome
	for _, event := range events {
		rec, ok := r.store.Get(event.Path)
		if !ok {
			continue
		}
		if r.store.Inflight(event.Path) {
			// An operation on this path is mid-flight; re-evaluate next
			// cycle rather than fighting it.
			continue
		}

		outcome, err := r.reconcileOne(event, rec)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (r *Reconciler) reconcileOne(event Event, rec store.PathRecord) (Outcome, error) {
	outcome := Outcome{Path: event.Path, State: StateDetected}

	matched := false
	if !r.deleteAlways {
		result, err := r.trash.Find(event.Path, rec.Size)
		if err != nil {
			var lookupErr errors.TrashLookupFailure
			if !errors.As(err, &lookupErr) {
				return Outcome{}, errors.WithContext(err, "trash lookup")
			}
			// An unreadable trash root can't prove the deletion was
			// deliberate, so it doesn't.
			log.WithError(err).WithField("path", event.Path).Warn(
				"Trash lookup failed; treating the deletion as accidental")
		} else {
			matched = result.Matched
		}
	}
	outcome.State = StateTrashChecked

	if !matched && !r.deleteAlways {
		return r.suppress(event, rec, outcome)
	}
	return r.propagate(event, rec, outcome, matched)
}

func (r *Reconciler) propagate(event Event, rec store.PathRecord,
	outcome Outcome, matched bool) (Outcome, error) {

	outcome.State = StatePropagated

	otherSideHasCopy := rec.Location == store.LocationSynced
	switch {
	case !otherSideHasCopy:
		// The missing side held the only copy. Propagation is a no-op on
		// the other side; drop the record right away.
		if err := r.store.Remove(event.Path); err != nil {
			return Outcome{}, err
		}
		return outcome, nil

	case event.Side == SideLocal:
		outcome.DeleteRemote = true
		outcome.MarkRemote = matched && !r.deleteAlways

	default:
		outcome.DeleteLocal = true
	}

	err := r.store.Update(event.Path, func(r *store.PathRecord) {
		r.Location = store.LocationPendingDelete
	})
	if err != nil {
		return Outcome{}, err
	}

	log.WithFields(log.Fields{
		"path": event.Path,
		"side": event.Side,
	}).Info("Propagating deletion")
	return outcome, nil
}

// suppress keeps the surviving copy. The record reverts to residency on the
// surviving side; if it turns out nothing survives anywhere, the record is
// dropped.
func (r *Reconciler) suppress(event Event, rec store.PathRecord,
	outcome Outcome) (Outcome, error) {

	outcome.State = StateSuppressed

	survivor := store.LocationRemoteOnly
	if event.Side == SideRemote {
		survivor = store.LocationLocalOnly
	}

	if rec.Location != store.LocationSynced {
		// The record claimed the path only existed on the side that lost
		// it. Nothing survives; there is nothing to re-materialize from.
		if err := r.store.Remove(event.Path); err != nil {
			return Outcome{}, err
		}
		log.WithField("path", event.Path).Warn(
			"Path lost with no surviving copy; forgetting it")
		return outcome, nil
	}

	err := r.store.Update(event.Path, func(r *store.PathRecord) {
		r.Location = survivor
	})
	if err != nil {
		return Outcome{}, err
	}

	log.WithFields(log.Fields{
		"path": event.Path,
		"side": event.Side,
	}).Info("Deletion looks accidental; keeping the surviving copy")
	return outcome, nil
}
