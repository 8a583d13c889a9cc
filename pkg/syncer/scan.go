package syncer

import (
	log "github.com/sirupsen/logrus"

	"github.com/zielen-io/zielen/pkg/reconcile"
	"github.com/zielen-io/zielen/pkg/remote"
	"github.com/zielen-io/zielen/pkg/store"
	"github.com/zielen-io/zielen/pkg/trash"
)

// scan lists one side and indexes the entries by path, dropping excluded
// paths and deletion markers.
func (s *Syncer) scan(tree *remote.Tree) (map[string]remote.Entry, error) {
	entries, err := tree.List("")
	if err != nil {
		return nil, err
	}

	indexed := map[string]remote.Entry{}
	for _, entry := range entries {
		if s.profile.Exclude.Matches(entry.Path) || trash.IsMarker(entry.Path) {
			continue
		}
		indexed[entry.Path] = entry
	}
	return indexed, nil
}

// ingest reconciles the scans against the metadata store: creates records
// for newly observed paths, refreshes sizes and access times, renames
// conflicting copies, and reports which recorded paths have gone missing on
// a side.
func (s *Syncer) ingest(local, rem map[string]remote.Entry) ([]reconcile.Event, error) {
	union := map[string]struct{}{}
	for path := range local {
		union[path] = struct{}{}
	}
	for path := range rem {
		union[path] = struct{}{}
	}

	for path := range union {
		localEntry, onLocal := local[path]
		remoteEntry, onRemote := rem[path]

		rec, known := s.store.Get(path)
		if !known {
			if err := s.observe(path, localEntry, onLocal, remoteEntry, onRemote); err != nil {
				return nil, err
			}
			continue
		}

		if err := s.refresh(rec, localEntry, onLocal, remoteEntry, onRemote); err != nil {
			return nil, err
		}
	}

	return s.detectMissing(local, rem), nil
}

// observe creates the record for a path seen for the first time.
func (s *Syncer) observe(path string, localEntry remote.Entry, onLocal bool,
	remoteEntry remote.Entry, onRemote bool) error {

	rec := store.PathRecord{Path: path}

	switch {
	case onLocal && onRemote:
		rec.Kind = remoteEntry.Kind
		rec.Size = remoteEntry.Size
		rec.LastAccess = localEntry.ModTime
		rec.Location = store.LocationSynced
	case onLocal:
		rec.Kind = localEntry.Kind
		rec.Size = localEntry.Size
		rec.LastAccess = localEntry.ModTime
		rec.Location = store.LocationLocalOnly
		// A file born locally gets its priority inflated so it isn't
		// immediately evicted in favor of older content.
		rec.Inflated = s.profile.Config.GetInflatePriority() &&
			rec.Kind == store.KindFile
	default:
		rec.Kind = remoteEntry.Kind
		rec.Size = remoteEntry.Size
		rec.LastAccess = remoteEntry.ModTime
		rec.Location = store.LocationRemoteOnly
	}

	_, err := s.store.Ensure(rec)
	return err
}

// refresh updates an existing record from the scans: access times from
// local activity, sizes from whichever side changed, and conflict handling
// when both sides changed since the last completed cycle.
func (s *Syncer) refresh(rec store.PathRecord, localEntry remote.Entry, onLocal bool,
	remoteEntry remote.Entry, onRemote bool) error {

	if rec.Kind == store.KindDirectory {
		// Directory sizes come from the rollup pass, and directories don't
		// carry access times of their own.
		return nil
	}

	// Modification is judged by mtime against the last completed cycle
	// alone. Sizes are no signal: an edit can leave them unchanged.
	lastSync := s.profile.Info.LastSyncTime()
	localModified := onLocal && localEntry.ModTime.After(lastSync)
	remoteModified := onRemote && remoteEntry.ModTime.After(lastSync)

	if localModified && remoteModified && rec.Location == store.LocationSynced {
		return s.renameConflict(rec.Path, localEntry, remoteEntry)
	}

	return s.store.Update(rec.Path, func(r *store.PathRecord) {
		if onLocal && localEntry.ModTime.After(r.LastAccess) {
			r.LastAccess = localEntry.ModTime
		}

		switch {
		case localModified && r.Location == store.LocationSynced:
			// Changed locally; the stale remote copy needs to be
			// overwritten by a push.
			r.Size = localEntry.Size
			r.Location = store.LocationLocalOnly
		case remoteModified && r.Location == store.LocationSynced:
			// Changed remotely; drop to remote-only so an admitted record
			// is re-fetched.
			r.Size = remoteEntry.Size
			r.Location = store.LocationRemoteOnly
		case onLocal:
			r.Size = localEntry.Size
		case onRemote:
			r.Size = remoteEntry.Size
		}
	})
}

// renameConflict keeps both versions of a file modified on both sides: the
// older copy is renamed with a conflict marker and survives as a regular
// file, and the newer copy stays at the original path.
func (s *Syncer) renameConflict(path string, localEntry, remoteEntry remote.Entry) error {
	newPath := conflictPath(path, s.clock.Now())

	var err error
	if localEntry.ModTime.Before(remoteEntry.ModTime) {
		err = s.local.Rename(path, newPath)
	} else {
		err = s.remote.Rename(path, newPath)
	}
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"path":     path,
		"conflict": newPath,
	}).Warn("File changed on both sides; keeping both copies")

	// Forget the old record. Both paths are (re)discovered by the next
	// scan pass and synced like any other file.
	return s.store.Remove(path)
}

// detectMissing returns a deletion event for every file the store records
// as present on a side where the scan no longer finds it.
func (s *Syncer) detectMissing(local, rem map[string]remote.Entry) []reconcile.Event {
	var events []reconcile.Event
	for _, rec := range s.store.All() {
		if rec.Kind != store.KindFile || rec.Location == store.LocationPendingDelete {
			continue
		}

		_, onLocal := local[rec.Path]
		_, onRemote := rem[rec.Path]

		localExpected := rec.Location == store.LocationSynced ||
			rec.Location == store.LocationLocalOnly
		remoteExpected := rec.Location == store.LocationSynced ||
			rec.Location == store.LocationRemoteOnly

		if localExpected && !onLocal {
			events = append(events, reconcile.Event{Path: rec.Path, Side: reconcile.SideLocal})
		} else if remoteExpected && !onRemote {
			events = append(events, reconcile.Event{Path: rec.Path, Side: reconcile.SideRemote})
		}
	}
	return events
}

// pruneDirs forgets directory records whose subtree has emptied out and
// which no longer exist in either scan. Directories are never deleted
// explicitly; they disappear when their files do.
func (s *Syncer) pruneDirs(local, rem map[string]remote.Entry) error {
	for {
		pruned := false
		for _, rec := range s.store.All() {
			if rec.Kind != store.KindDirectory {
				continue
			}
			if len(s.store.Children(rec.Path)) > 0 {
				continue
			}

			_, onLocal := local[rec.Path]
			_, onRemote := rem[rec.Path]
			if onLocal || onRemote {
				continue
			}

			if err := s.store.Remove(rec.Path); err != nil {
				return err
			}
			pruned = true
		}
		if !pruned {
			return nil
		}
	}
}
