package trash

import (
	"path"
	"regexp"
	"strings"
	"time"
)

// Deletions propagated to the remote side on trash evidence are renamed
// with a marker instead of unlinked, so that other clients of the remote
// tree get a chance to notice the deletion before the bytes go away for
// good. `zielen empty-trash` purges the markers.

const markerTimeFormat = "20060102-150405"

var markerRegex = regexp.MustCompile(`_deleted-[0-9]{8}-[0-9]{6}`)

// MarkerPath returns the marker name for a path deleted at the given time,
// e.g. "notes.txt" -> "notes_deleted-20170219-145503.txt".
func MarkerPath(p string, now time.Time) string {
	ext := path.Ext(p)
	base := strings.TrimSuffix(p, ext)
	return base + "_deleted-" + now.Format(markerTimeFormat) + ext
}

// IsMarker reports whether the path names a deletion marker.
func IsMarker(p string) bool {
	return markerRegex.MatchString(path.Base(p))
}
