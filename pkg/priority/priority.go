// Package priority computes priority scores: the ranking the allocator uses
// to decide which content deserves local residency. Scoring is a pure
// function of record state and an injected "now"; the only mutation is the
// explicit Rescore pass the orchestrator runs once per cycle.
package priority

import (
	"math"
	"sort"
	"time"

	"github.com/zielen-io/zielen/pkg/store"
)

const (
	// halfLife is how long it takes an untouched file's base score to halve.
	halfLife = 7 * 24 * time.Hour

	// graceWindow is how long a newly created file keeps its inflated
	// priority before decaying like everything else.
	graceWindow = 24 * time.Hour

	// inflationBoost multiplies the score of records inside the grace
	// window.
	inflationBoost = 4.0
)

// Options mirror the config switches that affect scoring.
type Options struct {
	AccountForSize  bool
	InflatePriority bool
}

// Score computes the priority of a single file record at the given time.
// It is a total function: any record yields a finite, non-negative score.
func Score(rec store.PathRecord, now time.Time, opts Options) float64 {
	age := now.Sub(rec.LastAccess)
	if age < 0 {
		age = 0
	}

	score := math.Exp2(-age.Hours() / halfLife.Hours())

	if opts.InflatePriority && rec.Inflated && age <= graceWindow {
		score *= inflationBoost
	}

	if opts.AccountForSize && rec.Size > 0 {
		// Smaller files score relatively higher; ties between equally
		// sized files are broken by recency exactly as without the
		// adjustment.
		score /= float64(rec.Size)
	}

	return score
}

// Rescore recomputes the score of every record. File scores come from
// Score; a directory's score is the size-weighted average of its direct
// children, computed bottom-up, so that sibling directories are comparably
// ranked no matter how their bytes are distributed. Records whose inflation
// grace period has passed have the flag cleared.
func Rescore(st *store.Store, now time.Time, opts Options) error {
	records := st.All()

	// Files first.
	for _, rec := range records {
		if rec.Kind != store.KindFile {
			continue
		}

		expired := rec.Inflated && now.Sub(rec.LastAccess) > graceWindow
		score := Score(rec, now, opts)
		err := st.Update(rec.Path, func(r *store.PathRecord) {
			r.Score = score
			if expired {
				r.Inflated = false
			}
		})
		if err != nil {
			return err
		}
	}

	// Directories deepest-first so child scores are final before parents
	// aggregate them.
	var dirs []store.PathRecord
	for _, rec := range records {
		if rec.Kind == store.KindDirectory {
			dirs = append(dirs, rec)
		}
	}
	sort.Slice(dirs, func(i, j int) bool {
		return store.Depth(dirs[i].Path) > store.Depth(dirs[j].Path)
	})

	for _, dir := range dirs {
		score := aggregate(st.Children(dir.Path))
		if err := st.Update(dir.Path, func(r *store.PathRecord) {
			r.Score = score
		}); err != nil {
			return err
		}
	}
	return nil
}

// aggregate folds child scores into a directory score. Zero-size children
// (empty subdirectories) carry weight one so they still contribute.
func aggregate(children []store.PathRecord) float64 {
	if len(children) == 0 {
		return 0
	}

	var weighted, total float64
	for _, child := range children {
		weight := float64(child.Size)
		if weight <= 0 {
			weight = 1
		}
		weighted += child.Score * weight
		total += weight
	}
	return weighted / total
}
