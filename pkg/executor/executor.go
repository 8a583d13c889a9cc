// Package executor applies a materialization plan against the two sides.
// Operations for independent paths run concurrently under a bounded worker
// pool; every operation is individually retryable, and a failure leaves the
// path's recorded residency untouched so the next cycle can try again.
package executor

import (
	"context"
	"os"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/zielen-io/zielen/pkg/allocate"
	"github.com/zielen-io/zielen/pkg/errors"
	"github.com/zielen-io/zielen/pkg/remote"
	"github.com/zielen-io/zielen/pkg/store"
	"github.com/zielen-io/zielen/pkg/trash"
)

// Executor applies plans.
type Executor struct {
	store  *store.Store
	local  *remote.Tree
	remote *remote.Tree
	clock  clockwork.Clock

	workers int64
}

// New returns an Executor with the given worker bound.
func New(st *store.Store, local, rem *remote.Tree, workers int,
	clock clockwork.Clock) *Executor {

	return &Executor{
		store:   st,
		local:   local,
		remote:  rem,
		clock:   clock,
		workers: int64(workers),
	}
}

// Apply runs the plan's phases in order: reconciled deletions first, then
// pushes of local-only content to the remote, then fetches, then evictions.
// Pushes precede evictions so that a local-only file scheduled for both is
// safely on the remote before its local bytes go away.
//
// Per-path failures are logged and skipped; only context cancellation stops
// the pass, and even then operations already started run to completion.
func (e *Executor) Apply(ctx context.Context, plan allocate.Plan) error {
	phases := []struct {
		name  string
		paths []string
		op    func(string) error
	}{
		{"delete local", plan.ToDeleteLocal, e.deleteLocal},
		{"delete remote", plan.ToDeleteRemote, e.deleteRemote},
		{"mark remote", plan.ToMarkRemote, e.markRemote},
		{"push", plan.ToPush, e.push},
		{"fetch", plan.ToFetch, e.fetch},
		{"evict", plan.ToEvict, e.evict},
	}

	sem := semaphore.NewWeighted(e.workers)
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			// Cancelled between phases: nothing partial has been
			// committed for the phases we haven't started.
			return err
		}

		var group errgroup.Group
		for _, path := range phase.paths {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}

			path := path
			phaseName := phase.name
			op := phase.op
			group.Go(func() error {
				defer sem.Release(1)
				if err := op(path); err != nil {
					log.WithError(err).WithFields(log.Fields{
						"path": path,
						"op":   phaseName,
					}).Error("Sync operation failed; will retry next cycle")
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
	}

	// Cancellation during the final phase breaks out of the path loop with
	// no later phase left to notice it.
	return ctx.Err()
}

// fetch copies remote content to the local side and marks the record
// Synced. A partial or interrupted fetch leaves no visible local artifact
// and the record stays RemoteOnly.
func (e *Executor) fetch(path string) error {
	if !e.store.Acquire(path) {
		return errors.ConcurrentModification{Path: path}
	}
	defer e.store.Release(path)

	rec, ok := e.store.Get(path)
	if !ok {
		return nil
	}

	if rec.Kind == store.KindDirectory {
		if err := e.local.MkdirAll(path); err != nil {
			return errors.WithContext(err, "create directory")
		}
		return e.store.Update(path, func(r *store.PathRecord) {
			r.Location = store.LocationSynced
		})
	}

	entry, err := e.remote.Stat(path)
	if err != nil {
		return errors.WithContext(err, "stat remote")
	}
	if entry.Size != rec.Size {
		// The remote copy changed after the plan was computed. Abort and
		// let the next cycle re-evaluate against fresh metadata.
		return errors.ConcurrentModification{Path: path}
	}

	contents, err := e.remote.Open(path)
	if err != nil {
		return errors.WithContext(err, "open remote")
	}
	defer contents.Close()

	written, err := e.local.Write(path, contents)
	if err != nil {
		return errors.WithContext(err, "write local")
	}
	if written != rec.Size {
		if err := e.local.Delete(path); err != nil {
			log.WithError(err).WithField("path", path).Warn(
				"Failed to clean up mismatched fetch")
		}
		return errors.IntegrityMismatch{
			Path:     path,
			Expected: rec.Size,
			Actual:   written,
		}
	}

	return e.store.Update(path, func(r *store.PathRecord) {
		r.Location = store.LocationSynced
	})
}

// push copies a local-only file to the remote side, which holds the
// authoritative full copy.
func (e *Executor) push(path string) error {
	if !e.store.Acquire(path) {
		return errors.ConcurrentModification{Path: path}
	}
	defer e.store.Release(path)

	rec, ok := e.store.Get(path)
	if !ok || rec.Location != store.LocationLocalOnly {
		return nil
	}

	contents, err := e.local.Open(path)
	if err != nil {
		return errors.WithContext(err, "open local")
	}
	defer contents.Close()

	written, err := e.remote.Write(path, contents)
	if err != nil {
		return errors.WithContext(err, "write remote")
	}
	if written != rec.Size {
		// The local file changed while we were reading it. The remote copy
		// is whole (the write was atomic), so just record the new size.
		log.WithField("path", path).Debug("File grew during push")
	}

	return e.store.Update(path, func(r *store.PathRecord) {
		r.Location = store.LocationSynced
		r.Size = written
	})
}

// evict removes local bytes for a path the allocator deselected, leaving a
// remote-backed placeholder. The local copy is only dropped once the remote
// copy is confirmed present and readable.
func (e *Executor) evict(path string) error {
	if !e.store.Acquire(path) {
		return errors.ConcurrentModification{Path: path}
	}
	defer e.store.Release(path)

	rec, ok := e.store.Get(path)
	if !ok {
		return nil
	}

	entry, err := e.remote.Stat(path)
	if err != nil {
		return errors.WithContext(err, "verify remote copy")
	}
	if entry.Size != rec.Size {
		return errors.ConcurrentModification{Path: path}
	}
	reader, err := e.remote.Open(path)
	if err != nil {
		return errors.WithContext(err, "verify remote readable")
	}
	reader.Close()

	if err := e.local.Delete(path); err != nil {
		return errors.WithContext(err, "remove local")
	}
	if err := e.local.Placeholder(path, e.remote); err != nil {
		log.WithError(err).WithField("path", path).Warn(
			"Failed to leave placeholder for evicted file")
	}

	return e.store.Update(path, func(r *store.PathRecord) {
		r.Location = store.LocationRemoteOnly
	})
}

// deleteLocal removes the local bytes for a propagated deletion and, since
// the other side is already gone, forgets the record subtree.
func (e *Executor) deleteLocal(path string) error {
	if !e.store.Acquire(path) {
		return errors.ConcurrentModification{Path: path}
	}
	defer e.store.Release(path)

	if err := e.local.Delete(path); err != nil {
		return errors.WithContext(err, "remove local")
	}
	return e.store.Remove(path)
}

// deleteRemote removes the remote bytes for a propagated deletion.
func (e *Executor) deleteRemote(path string) error {
	if !e.store.Acquire(path) {
		return errors.ConcurrentModification{Path: path}
	}
	defer e.store.Release(path)

	if err := e.remote.Delete(path); err != nil {
		return errors.WithContext(err, "remove remote")
	}
	return e.store.Remove(path)
}

// markRemote propagates a deletion backed by trash evidence: the remote
// copy is renamed to a deletion marker so other clients get a window to
// notice before `empty-trash` purges it.
func (e *Executor) markRemote(path string) error {
	if !e.store.Acquire(path) {
		return errors.ConcurrentModification{Path: path}
	}
	defer e.store.Release(path)

	marker := trash.MarkerPath(path, e.clock.Now())
	if err := e.remote.Rename(path, marker); err != nil && !os.IsNotExist(err) {
		return errors.WithContext(err, "rename to marker")
	}
	return e.store.Remove(path)
}
