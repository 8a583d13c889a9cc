package trash

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/zielen-io/zielen/pkg/errors"
)

// statDenyFs fails Stat for one path, standing in for a trash root the
// process can't read.
type statDenyFs struct {
	afero.Fs
	denied string
}

func (d statDenyFs) Stat(name string) (os.FileInfo, error) {
	if name == d.denied {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrPermission}
	}
	return d.Fs.Stat(name)
}

func TestFind(t *testing.T) {
	fs = afero.NewMemMapFs()
	assert.NoError(t, afero.WriteFile(fs, "/trash/files/notes.txt", []byte("12345"), 0644))
	assert.NoError(t, afero.WriteFile(fs, "/trash/files/sub/photo.jpg", []byte("123"), 0644))

	// Roots that don't exist are searched past, not errors.
	finder := NewFinder([]string{"/missing", "/trash/files"})

	result, err := finder.Find("docs/notes.txt", 5)
	assert.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "/trash/files/notes.txt", result.MatchedPath)

	// Matches are found at any depth within a root.
	result, err = finder.Find("pictures/photo.jpg", 3)
	assert.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "/trash/files/sub/photo.jpg", result.MatchedPath)

	// The base name matching but the size differing is not a match: it is
	// probably an older trashed copy of a different file.
	result, err = finder.Find("docs/notes.txt", 6)
	assert.NoError(t, err)
	assert.False(t, result.Matched)

	result, err = finder.Find("docs/other.txt", 5)
	assert.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestFindContinuesPastFailingRoot(t *testing.T) {
	base := afero.NewMemMapFs()
	assert.NoError(t, afero.WriteFile(base, "/trash/files/notes.txt", []byte("12345"), 0644))
	fs = statDenyFs{Fs: base, denied: "/denied"}

	finder := NewFinder([]string{"/denied", "/trash/files"})

	// Evidence in a later root still counts even when an earlier root is
	// unreadable.
	result, err := finder.Find("docs/notes.txt", 5)
	assert.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "/trash/files/notes.txt", result.MatchedPath)

	// With no match anywhere the failure is reported so the caller can take
	// its conservative path.
	_, err = finder.Find("docs/other.txt", 5)
	var failure errors.TrashLookupFailure
	assert.True(t, errors.As(err, &failure))
}

func TestFindNoRoots(t *testing.T) {
	fs = afero.NewMemMapFs()

	result, err := NewFinder(nil).Find("a.txt", 1)
	assert.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestMarkerPath(t *testing.T) {
	at := time.Date(2017, 2, 19, 14, 55, 3, 0, time.UTC)

	assert.Equal(t, "notes_deleted-20170219-145503.txt", MarkerPath("notes.txt", at))
	assert.Equal(t, "docs/notes_deleted-20170219-145503.txt", MarkerPath("docs/notes.txt", at))
	assert.Equal(t, "docs/Makefile_deleted-20170219-145503", MarkerPath("docs/Makefile", at))
}

func TestIsMarker(t *testing.T) {
	assert.True(t, IsMarker("notes_deleted-20170219-145503.txt"))
	assert.True(t, IsMarker("docs/Makefile_deleted-20170219-145503"))
	assert.False(t, IsMarker("notes.txt"))
	assert.False(t, IsMarker("notes_deleted.txt"))

	// Only the base name counts. A file inside a marked directory is not
	// itself a marker.
	assert.False(t, IsMarker("old_deleted-20170219-145503/file.txt"))
}
