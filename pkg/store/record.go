package store

import (
	"strings"
	"time"
)

// Kind distinguishes files from directories.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Location is a path's residency state relative to the two sides.
type Location int

const (
	// LocationRemoteOnly means the content only exists on the remote side.
	LocationRemoteOnly Location = iota

	// LocationLocalOnly means the content only exists locally, e.g. a newly
	// created file that hasn't been pushed yet.
	LocationLocalOnly

	// LocationSynced means the content is present and reachable on both
	// sides.
	LocationSynced

	// LocationPendingDelete means a propagated deletion is queued; the
	// record is removed once both sides confirm.
	LocationPendingDelete
)

func (l Location) String() string {
	switch l {
	case LocationLocalOnly:
		return "local-only"
	case LocationSynced:
		return "synced"
	case LocationPendingDelete:
		return "pending-delete"
	default:
		return "remote-only"
	}
}

// PathRecord is the durable metadata for one known path, keyed by its
// slash-separated path relative to the sync root.
type PathRecord struct {
	Path string
	Kind Kind

	// Size in bytes. For directories, the sum of the direct children's
	// sizes, maintained by Store.RollupSizes.
	Size int64

	// Score is the last computed priority. Higher scores are more likely to
	// stay local.
	Score float64

	// LastAccess is updated whenever a local read or write is observed.
	LastAccess time.Time

	// Inflated marks files that were newly created locally. It suppresses
	// normal decay until the grace period passes.
	Inflated bool

	Location Location

	// Observed is the order in which paths were first seen. It breaks
	// allocation ties deterministically.
	Observed int64
}

// Parent returns the path of the record's parent directory, or "" for
// top-level paths.
func Parent(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// Depth returns how many directories deep the path is. Top-level paths have
// depth zero.
func Depth(path string) int {
	return strings.Count(path, "/")
}

// IsWithin reports whether path is equal to or contained in root. The empty
// root contains everything.
func IsWithin(path, root string) bool {
	if root == "" || path == root {
		return true
	}
	return strings.HasPrefix(path, root+"/")
}
