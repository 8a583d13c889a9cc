// Package store is the durable metadata store for the sync engine. It holds
// one PathRecord per known path in an arena keyed by relative path, with
// child lists tracked by key rather than pointers, and persists every
// mutation to SQLite so that a restart resumes reconciliation without a full
// rescan.
package store

import (
	"sort"
	"sync"

	"github.com/zielen-io/zielen/pkg/errors"
)

// Store is the single source of truth for path metadata. It is mutated only
// by the orchestrator's sequential passes and by executor completion
// callbacks; per-record inflight markers keep those from stepping on each
// other.
type Store struct {
	db *database

	mu           sync.Mutex
	records      map[string]*PathRecord
	children     map[string]map[string]struct{}
	inflight     map[string]struct{}
	nextObserved int64
}

// Open loads the store at dbPath, creating it if necessary.
func Open(dbPath string) (*Store, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, errors.WithContext(err, "open database")
	}

	records, err := db.loadAll()
	if err != nil {
		db.close()
		return nil, errors.WithContext(err, "load records")
	}

	st := &Store{
		db:       db,
		records:  map[string]*PathRecord{},
		children: map[string]map[string]struct{}{},
		inflight: map[string]struct{}{},
	}
	for _, rec := range records {
		rec := rec
		st.index(&rec)
		if rec.Observed >= st.nextObserved {
			st.nextObserved = rec.Observed + 1
		}
	}
	return st, nil
}

// Close flushes nothing (writes are write-through) and releases the
// database handle.
func (st *Store) Close() error {
	return st.db.close()
}

// index adds rec to the in-memory maps. Callers hold st.mu.
func (st *Store) index(rec *PathRecord) {
	st.records[rec.Path] = rec
	parent := Parent(rec.Path)
	if st.children[parent] == nil {
		st.children[parent] = map[string]struct{}{}
	}
	st.children[parent][rec.Path] = struct{}{}
}

// Get returns a copy of the record for path.
func (st *Store) Get(path string) (PathRecord, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, ok := st.records[path]
	if !ok {
		return PathRecord{}, false
	}
	return *rec, true
}

// Ensure inserts rec if no record exists for its path yet, assigning it the
// next observation index. If a record already exists, it is returned
// unchanged. Either way the current record is returned.
func (st *Store) Ensure(rec PathRecord) (PathRecord, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if existing, ok := st.records[rec.Path]; ok {
		return *existing, nil
	}

	rec.Observed = st.nextObserved
	st.nextObserved++
	st.index(&rec)
	if err := st.db.upsert(rec); err != nil {
		return PathRecord{}, errors.WithContext(err, "persist record")
	}
	return rec, nil
}

// Update applies fn to the record for path and persists the result. It is a
// no-op if the path is unknown.
func (st *Store) Update(path string, fn func(*PathRecord)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, ok := st.records[path]
	if !ok {
		return nil
	}
	fn(rec)
	if err := st.db.upsert(*rec); err != nil {
		return errors.WithContext(err, "persist record")
	}
	return nil
}

// Remove deletes the record for path and its whole subtree. Records are
// structural owners of their children: a record only disappears when its
// subtree does, which is why there is no single-record delete.
func (st *Store) Remove(path string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	for p := range st.records {
		if IsWithin(p, path) {
			delete(st.children[Parent(p)], p)
			delete(st.records, p)
			delete(st.inflight, p)
		}
	}
	delete(st.children, path)

	if err := st.db.deleteSubtree(path); err != nil {
		return errors.WithContext(err, "delete records")
	}
	return nil
}

// All returns copies of every record, sorted by path.
func (st *Store) All() []PathRecord {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sortedLocked(func(PathRecord) bool { return true })
}

// Children returns the direct children of path, sorted by path. The empty
// string addresses the sync root.
func (st *Store) Children(path string) []PathRecord {
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []PathRecord
	for child := range st.children[path] {
		out = append(out, *st.records[child])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (st *Store) sortedLocked(keep func(PathRecord) bool) []PathRecord {
	var out []PathRecord
	for _, rec := range st.records {
		if keep(*rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// RollupSizes recomputes every directory's size as the sum of its direct
// children's sizes, bottom-up. File sizes are taken as-is.
func (st *Store) RollupSizes() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	var dirs []*PathRecord
	for _, rec := range st.records {
		if rec.Kind == KindDirectory {
			dirs = append(dirs, rec)
		}
	}
	// Deepest first so that child totals exist before their parents sum
	// them.
	sort.Slice(dirs, func(i, j int) bool {
		return Depth(dirs[i].Path) > Depth(dirs[j].Path)
	})

	for _, dir := range dirs {
		var total int64
		for child := range st.children[dir.Path] {
			total += st.records[child].Size
		}
		if total == dir.Size {
			continue
		}
		dir.Size = total
		if err := st.db.upsert(*dir); err != nil {
			return errors.WithContext(err, "persist rollup")
		}
	}
	return nil
}

// Acquire marks path as having an operation in flight. It returns false if
// the path is already inflight, in which case the caller must not schedule
// a conflicting operation.
func (st *Store) Acquire(path string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.inflight[path]; ok {
		return false
	}
	st.inflight[path] = struct{}{}
	return true
}

// Release clears the inflight marker for path.
func (st *Store) Release(path string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.inflight, path)
}

// Inflight reports whether path, or any path inside it, has an operation in
// progress. A directory is never evicted while a child is mid-fetch.
func (st *Store) Inflight(path string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	for p := range st.inflight {
		if IsWithin(p, path) || IsWithin(path, p) {
			return true
		}
	}
	return false
}

// Snapshot returns an immutable view of the store for plan computation. The
// allocator works against a single consistent snapshot per cycle.
func (st *Store) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap := Snapshot{
		records:  make(map[string]PathRecord, len(st.records)),
		inflight: make(map[string]struct{}, len(st.inflight)),
	}
	for path, rec := range st.records {
		snap.records[path] = *rec
	}
	for path := range st.inflight {
		snap.inflight[path] = struct{}{}
	}
	return snap
}

// Snapshot is a point-in-time copy of the store's records.
type Snapshot struct {
	records  map[string]PathRecord
	inflight map[string]struct{}
}

// Get returns the snapshot's record for path.
func (snap Snapshot) Get(path string) (PathRecord, bool) {
	rec, ok := snap.records[path]
	return rec, ok
}

// All returns every record in the snapshot, sorted by path.
func (snap Snapshot) All() []PathRecord {
	var out []PathRecord
	for _, rec := range snap.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Children returns the direct children of path, sorted by path.
func (snap Snapshot) Children(path string) []PathRecord {
	var out []PathRecord
	for p, rec := range snap.records {
		if p != path && Parent(p) == path {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// TopLevel returns the records directly under the sync root.
func (snap Snapshot) TopLevel() []PathRecord {
	return snap.Children("")
}

// Inflight reports whether the path overlaps any inflight operation.
func (snap Snapshot) Inflight(path string) bool {
	for p := range snap.inflight {
		if IsWithin(p, path) || IsWithin(path, p) {
			return true
		}
	}
	return false
}
