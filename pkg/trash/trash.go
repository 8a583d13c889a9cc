// Package trash answers one question for the deletion reconciler: does a
// file that vanished from the local mirror have a matching entry in the
// user's trash? A match is evidence the deletion was deliberate rather than
// an accident (a bad script, a half-finished mv), and therefore safe to
// propagate to the remote side.
package trash

import (
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/zielen-io/zielen/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Result is the verdict for a single lookup.
type Result struct {
	Matched bool

	// MatchedPath is the trash entry that matched, when one did.
	MatchedPath string

	// ModTime of the matched entry. Informational only.
	ModTime time.Time
}

// Finder searches a list of trash root directories.
type Finder struct {
	roots []string
}

// NewFinder returns a Finder over the configured trash roots.
func NewFinder(roots []string) *Finder {
	return &Finder{roots: roots}
}

// Find searches every root for an entry matching the deleted file by base
// name and exact size. An unreadable root doesn't end the search: evidence
// in a later root still counts. Only when no root matched is the failure
// reported as a TrashLookupFailure, which callers treat conservatively as
// "no match found".
func (f *Finder) Find(deletedPath string, size int64) (Result, error) {
	name := filepath.Base(deletedPath)

	var firstErr error
	for _, root := range f.roots {
		result, err := searchRoot(root, name, size)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if result.Matched {
			log.WithFields(log.Fields{
				"path":  deletedPath,
				"trash": result.MatchedPath,
			}).Debug("Found trash entry for deleted file")
			return result, nil
		}
	}
	return Result{}, firstErr
}

func searchRoot(root, name string, size int64) (Result, error) {
	if _, err := fs.Stat(root); err != nil {
		if os.IsNotExist(err) {
			// An absent trash directory just means nothing was trashed
			// there.
			return Result{}, nil
		}
		return Result{}, errors.TrashLookupFailure{Root: root, Cause: err}
	}

	var found Result
	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if found.Matched || fi.IsDir() {
			return nil
		}
		if fi.Name() == name && fi.Size() == size {
			found = Result{
				Matched:     true,
				MatchedPath: path,
				ModTime:     fi.ModTime(),
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, errors.TrashLookupFailure{Root: root, Cause: err}
	}
	return found, nil
}
