// Package syncer is the top-level reconciliation loop. Each cycle runs a
// fixed sequence of passes: rescan and diff both trees, reconcile detected
// deletions, recompute priorities, allocate the storage budget, and execute
// the resulting plan. The plan is computed against a single consistent
// snapshot; execution is incremental and individually retryable per path.
package syncer

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/zielen-io/zielen/pkg/allocate"
	"github.com/zielen-io/zielen/pkg/errors"
	"github.com/zielen-io/zielen/pkg/executor"
	"github.com/zielen-io/zielen/pkg/priority"
	"github.com/zielen-io/zielen/pkg/profile"
	"github.com/zielen-io/zielen/pkg/reconcile"
	"github.com/zielen-io/zielen/pkg/remote"
	"github.com/zielen-io/zielen/pkg/store"
	"github.com/zielen-io/zielen/pkg/trash"
)

const (
	// Backoff bounds for retrying when the remote mount is down.
	initialBackoff = 30 * time.Second
	maxBackoff     = 10 * time.Minute
)

// Syncer coordinates one profile's reconciliation cycles.
type Syncer struct {
	profile    *profile.Profile
	store      *store.Store
	local      *remote.Tree
	remote     *remote.Tree
	reconciler *reconcile.Reconciler
	executor   *executor.Executor
	clock      clockwork.Clock
}

// New wires up a Syncer for the given profile.
func New(p *profile.Profile, st *store.Store, local, rem *remote.Tree,
	clock clockwork.Clock) *Syncer {

	finder := trash.NewFinder(p.Config.TrashDirList)
	return &Syncer{
		profile:    p,
		store:      st,
		local:      local,
		remote:     rem,
		reconciler: reconcile.New(st, finder, p.Config.GetDeleteAlways()),
		executor:   executor.New(st, local, rem, p.Config.Workers, clock),
		clock:      clock,
	}
}

// RunOnce runs a single reconciliation cycle and returns the plan it
// executed. A RemoteUnavailable error means the cycle was deferred before
// any state changed.
func (s *Syncer) RunOnce(ctx context.Context) (allocate.Plan, error) {
	if err := s.remote.Available(); err != nil {
		return allocate.Plan{}, err
	}

	// Pass 1: rescan both trees.
	localEntries, err := s.scan(s.local)
	if err != nil {
		return allocate.Plan{}, errors.WithContext(err, "scan local")
	}
	remoteEntries, err := s.scan(s.remote)
	if err != nil {
		// A remote listing failure this early means there's nothing
		// consistent to reconcile against.
		return allocate.Plan{}, errors.RemoteUnavailable{Cause: err}
	}

	events, err := s.ingest(localEntries, remoteEntries)
	if err != nil {
		return allocate.Plan{}, errors.WithContext(err, "ingest scan")
	}

	if err := ctx.Err(); err != nil {
		return allocate.Plan{}, err
	}

	// Pass 2: reconcile deletions.
	outcomes, err := s.reconciler.Reconcile(events)
	if err != nil {
		return allocate.Plan{}, errors.WithContext(err, "reconcile deletions")
	}

	if err := ctx.Err(); err != nil {
		return allocate.Plan{}, err
	}

	// Pass 3: recompute sizes and priorities against the injected clock.
	if err := s.store.RollupSizes(); err != nil {
		return allocate.Plan{}, errors.WithContext(err, "roll up sizes")
	}
	opts := priority.Options{
		AccountForSize:  s.profile.Config.GetAccountForSize(),
		InflatePriority: s.profile.Config.GetInflatePriority(),
	}
	if err := priority.Rescore(s.store, s.clock.Now(), opts); err != nil {
		return allocate.Plan{}, errors.WithContext(err, "rescore")
	}

	if err := ctx.Err(); err != nil {
		return allocate.Plan{}, err
	}

	// Pass 4: allocate the budget against one consistent snapshot.
	plan := allocate.Allocate(s.store.Snapshot(),
		s.profile.Config.StorageLimitBytes,
		allocate.Options{SyncExtraFiles: s.profile.Config.GetSyncExtraFiles()})

	for _, outcome := range outcomes {
		switch {
		case outcome.DeleteLocal:
			plan.ToDeleteLocal = append(plan.ToDeleteLocal, outcome.Path)
		case outcome.MarkRemote:
			plan.ToMarkRemote = append(plan.ToMarkRemote, outcome.Path)
		case outcome.DeleteRemote:
			plan.ToDeleteRemote = append(plan.ToDeleteRemote, outcome.Path)
		}
	}

	if err := s.requeuePending(&plan, localEntries, remoteEntries, outcomes); err != nil {
		return allocate.Plan{}, errors.WithContext(err, "requeue pending deletions")
	}

	if err := ctx.Err(); err != nil {
		return allocate.Plan{}, err
	}

	// Pass 5: execute.
	if err := s.executor.Apply(ctx, plan); err != nil {
		return plan, errors.WithContext(err, "apply plan")
	}

	if err := s.pruneDirs(localEntries, remoteEntries); err != nil {
		return plan, errors.WithContext(err, "prune directories")
	}

	if err := s.profile.Info.RecordSync(s.clock.Now()); err != nil {
		return plan, errors.WithContext(err, "record sync time")
	}

	log.WithFields(log.Fields{
		"fetched": len(plan.ToFetch),
		"evicted": len(plan.ToEvict),
		"pushed":  len(plan.ToPush),
	}).Debug("Cycle complete")
	return plan, nil
}

// requeuePending re-adds executor work for deletions propagated in an
// earlier cycle whose removal did not complete, e.g. because the remote
// dropped mid-operation. The missing-path scan no longer reports these
// records, so without the requeue a failed delete would strand them in
// PendingDelete with the doomed copy still on disk.
func (s *Syncer) requeuePending(plan *allocate.Plan, local, rem map[string]remote.Entry,
	outcomes []reconcile.Outcome) error {

	queued := map[string]bool{}
	for _, outcome := range outcomes {
		queued[outcome.Path] = true
	}

	for _, rec := range s.store.All() {
		if rec.Location != store.LocationPendingDelete || queued[rec.Path] {
			continue
		}

		_, onLocal := local[rec.Path]
		_, onRemote := rem[rec.Path]
		switch {
		case onRemote:
			// Propagation without the DeleteAlways policy always rested on
			// trash evidence, so the retry keeps the marker rename.
			if s.profile.Config.GetDeleteAlways() {
				plan.ToDeleteRemote = append(plan.ToDeleteRemote, rec.Path)
			} else {
				plan.ToMarkRemote = append(plan.ToMarkRemote, rec.Path)
			}
		case onLocal:
			plan.ToDeleteLocal = append(plan.ToDeleteLocal, rec.Path)
		default:
			// Both sides are already gone; there is nothing left to apply.
			if err := s.store.Remove(rec.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

// Watch runs cycles until the context is cancelled. A cycle is triggered by
// the poll ticker or by an event on trigger (typically the filesystem
// watcher); a remote outage defers cycles with exponential backoff.
func (s *Syncer) Watch(ctx context.Context, trigger <-chan struct{}) error {
	backoff := initialBackoff

	for {
		_, err := s.RunOnce(ctx)
		switch {
		case err == nil:
			backoff = initialBackoff
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			var unavailable errors.RemoteUnavailable
			if errors.As(err, &unavailable) {
				log.WithError(err).Warnf(
					"Remote directory unavailable. Will retry in %s.", backoff)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-s.clock.After(backoff):
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			log.WithError(err).Error("Sync cycle failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
		case <-s.clock.After(s.profile.Config.PollDuration):
		}
	}
}

// EmptyTrash purges deletion markers from the remote tree. Markers are left
// by propagated deletions that rested on trash evidence; purging them makes
// the deletions final.
func (s *Syncer) EmptyTrash() (int, error) {
	if err := s.remote.Available(); err != nil {
		return 0, err
	}

	entries, err := s.remote.List("")
	if err != nil {
		return 0, errors.RemoteUnavailable{Cause: err}
	}

	purged := 0
	for _, entry := range entries {
		if entry.Kind != store.KindFile || !trash.IsMarker(entry.Path) {
			continue
		}
		if err := s.remote.Delete(entry.Path); err != nil {
			log.WithError(err).WithField("path", entry.Path).Error(
				"Failed to purge deletion marker")
			continue
		}
		purged++
	}
	return purged, nil
}

// conflictPath returns the timestamped name given to the losing copy of a
// conflicted file, e.g. "notes.txt" -> "notes_conflict-20170219-145503.txt".
func conflictPath(p string, now time.Time) string {
	ext := path.Ext(p)
	base := strings.TrimSuffix(p, ext)
	return base + "_conflict-" + now.Format("20060102-150405") + ext
}
