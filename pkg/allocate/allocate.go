// Package allocate decides which content deserves local residency: a greedy
// priority knapsack over the directory tree, whole directories first, with
// an optional file-granularity pass over whatever budget remains.
package allocate

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/zielen-io/zielen/pkg/errors"
	"github.com/zielen-io/zielen/pkg/store"
)

// Options mirror the config switches that affect allocation.
type Options struct {
	// SyncExtraFiles enables the file-granularity pass after whole-directory
	// admission.
	SyncExtraFiles bool
}

// Plan is the transient output of one allocation pass. It is computed fresh
// against a single snapshot each cycle and never persisted.
type Plan struct {
	// ToFetch are paths to materialize locally.
	ToFetch []string

	// ToEvict are local file paths to drop in favor of remote-backed
	// placeholders.
	ToEvict []string

	// ToPush are local-only files to copy to the remote side, which is the
	// authoritative full copy.
	ToPush []string

	// ToDeleteLocal and ToDeleteRemote carry reconciled deletions into the
	// executor. The allocator doesn't populate them; the orchestrator does,
	// from the deletion reconciler's decisions.
	ToDeleteLocal  []string
	ToDeleteRemote []string

	// ToMarkRemote are remote paths whose deletion is propagated by
	// renaming to a deletion marker rather than unlinking.
	ToMarkRemote []string

	// ExceedsBudget are non-fatal notes about single items larger than the
	// entire storage limit. They stay remote-only.
	ExceedsBudget []errors.BudgetExceeded
}

// Empty reports whether the plan contains no work. Two consecutive cycles
// with no external change produce an empty second plan.
func (p Plan) Empty() bool {
	return len(p.ToFetch) == 0 && len(p.ToEvict) == 0 && len(p.ToPush) == 0 &&
		len(p.ToDeleteLocal) == 0 && len(p.ToDeleteRemote) == 0 &&
		len(p.ToMarkRemote) == 0
}

// Allocate selects the maximal-priority set of directories (and, with
// SyncExtraFiles, individual files) that fits limitBytes, and derives the
// fetch/evict work needed to converge the local side onto that set.
//
// Candidates are ranked by score descending; ties go to the smaller
// candidate, then first-observation order, then lexical path, so allocation
// is deterministic. A candidate that doesn't fit the remaining budget is
// skipped rather than ending the pass, which is what makes boundary ties
// favor the smaller item.
func Allocate(snap store.Snapshot, limitBytes int64, opts Options) Plan {
	var plan Plan

	admitted := map[string]bool{}
	remaining := limitBytes

	// Pass 1: whole top-level directories.
	var dirs []store.PathRecord
	for _, rec := range snap.TopLevel() {
		if rec.Kind == store.KindDirectory && eligible(snap, rec) {
			dirs = append(dirs, rec)
		}
	}
	rank(dirs)

	for _, dir := range dirs {
		if dir.Size > limitBytes {
			// Not even an empty budget would ever admit it whole; the file
			// pass may still pick out pieces.
			continue
		}
		if dir.Size > remaining {
			continue
		}
		admitted[dir.Path] = true
		remaining -= dir.Size
	}

	// Pass 2: individual files outside the admitted directories.
	if opts.SyncExtraFiles {
		var files []store.PathRecord
		for _, rec := range snap.All() {
			if rec.Kind != store.KindFile || !eligible(snap, rec) {
				continue
			}
			if coveredBy(rec.Path, admitted) {
				continue
			}
			files = append(files, rec)
		}
		rank(files)

		for _, file := range files {
			if file.Size > limitBytes {
				plan.ExceedsBudget = append(plan.ExceedsBudget, errors.BudgetExceeded{
					Path:  file.Path,
					Size:  file.Size,
					Limit: limitBytes,
				})
				continue
			}
			if file.Size > remaining {
				continue
			}
			admitted[file.Path] = true
			remaining -= file.Size
		}
	} else {
		// Oversize items are still worth surfacing without the file pass.
		for _, rec := range snap.All() {
			if rec.Kind == store.KindFile && eligible(snap, rec) &&
				rec.Size > limitBytes && !coveredBy(rec.Path, admitted) {
				plan.ExceedsBudget = append(plan.ExceedsBudget, errors.BudgetExceeded{
					Path:  rec.Path,
					Size:  rec.Size,
					Limit: limitBytes,
				})
			}
		}
	}

	// Derive the work. Membership in the admitted set is what transitions a
	// record between local and remote residency.
	for _, rec := range snap.All() {
		if rec.Location == store.LocationPendingDelete || snap.Inflight(rec.Path) {
			continue
		}

		inSet := coveredBy(rec.Path, admitted)
		local := rec.Location == store.LocationSynced ||
			rec.Location == store.LocationLocalOnly

		if rec.Kind == store.KindFile && rec.Location == store.LocationLocalOnly {
			plan.ToPush = append(plan.ToPush, rec.Path)
		}

		switch {
		case inSet && rec.Location == store.LocationRemoteOnly:
			plan.ToFetch = append(plan.ToFetch, rec.Path)
		case !inSet && local && rec.Kind == store.KindFile:
			plan.ToEvict = append(plan.ToEvict, rec.Path)
		}
	}

	sort.Strings(plan.ToFetch)
	sort.Strings(plan.ToEvict)
	sort.Strings(plan.ToPush)

	if len(plan.ExceedsBudget) > 0 {
		for _, note := range plan.ExceedsBudget {
			log.WithField("path", note.Path).Info(
				"File exceeds the storage limit and will stay remote-only")
		}
	}
	return plan
}

// eligible filters out records the allocator must not touch: inflight
// operations and queued deletions.
func eligible(snap store.Snapshot, rec store.PathRecord) bool {
	return rec.Location != store.LocationPendingDelete && !snap.Inflight(rec.Path)
}

// coveredBy reports whether path is in the admitted set, directly or via an
// admitted ancestor directory.
func coveredBy(path string, admitted map[string]bool) bool {
	for p := path; p != ""; p = store.Parent(p) {
		if admitted[p] {
			return true
		}
	}
	return false
}

// rank sorts candidates by score descending, then smaller size, then
// first-observation order, then path.
func rank(records []store.PathRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Size != b.Size {
			return a.Size < b.Size
		}
		if a.Observed != b.Observed {
			return a.Observed < b.Observed
		}
		return a.Path < b.Path
	})
}
