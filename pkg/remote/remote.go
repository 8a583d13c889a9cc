// Package remote provides the file-tree access the engine consumes for both
// sides of the sync. The remote side is expected to be a mounted network
// filesystem path; mounting, reconnecting, and transport are entirely
// external. Local and remote are the same type because every operation the
// engine needs (list, read, write, delete, rename) is side-agnostic.
package remote

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/zielen-io/zielen/pkg/errors"
	"github.com/zielen-io/zielen/pkg/store"
)

// Entry is one path in a tree listing.
type Entry struct {
	// Path relative to the tree root, slash-separated.
	Path    string
	Kind    store.Kind
	Size    int64
	ModTime time.Time
}

// partialSuffix marks files from staged writes that haven't been renamed
// into place yet.
const partialSuffix = ".zielen-partial"

// Tree is a rooted view of a filesystem.
type Tree struct {
	fs   afero.Fs
	root string
}

// NewTree returns a Tree rooted at root on the given filesystem. Tests pass
// an afero.NewMemMapFs.
func NewTree(filesystem afero.Fs, root string) *Tree {
	return &Tree{fs: filesystem, root: filepath.Clean(root)}
}

// NewOsTree returns a Tree over the real filesystem.
func NewOsTree(root string) *Tree {
	return NewTree(afero.NewOsFs(), root)
}

// Root returns the tree's root path.
func (t *Tree) Root() string {
	return t.root
}

// Available verifies the tree root is reachable. For the remote side this is
// the cheap "is the mount up" probe run at the start of every cycle.
func (t *Tree) Available() error {
	fi, err := t.fs.Stat(t.root)
	if err != nil {
		return errors.RemoteUnavailable{Cause: err}
	}
	if !fi.IsDir() {
		return errors.RemoteUnavailable{
			Cause: errors.New("root is not a directory"),
		}
	}
	return nil
}

// abs resolves a relative slash path against the root.
func (t *Tree) abs(rel string) string {
	return filepath.Join(t.root, filepath.FromSlash(rel))
}

// rel converts an absolute path back to the tree-relative slash form.
func (t *Tree) rel(abs string) (string, error) {
	relative, err := filepath.Rel(t.root, abs)
	if err != nil || strings.HasPrefix(relative, "..") {
		return "", errors.WithContext(err, "path escapes root")
	}
	return filepath.ToSlash(relative), nil
}

// List walks the subtree under rel and returns every entry, excluding the
// subtree root itself. Symlinks (local placeholders for evicted files) are
// skipped: they have no bytes of their own. Leftover staged writes from an
// interrupted fetch are skipped too, so a crash can't promote one to a real
// file.
func (t *Tree) List(rel string) ([]Entry, error) {
	var entries []Entry
	start := t.abs(rel)

	err := afero.Walk(t.fs, start, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == start {
			return nil
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if strings.HasSuffix(path, partialSuffix) {
			return nil
		}

		relative, err := t.rel(path)
		if err != nil {
			return err
		}

		kind := store.KindFile
		size := fi.Size()
		if fi.IsDir() {
			kind = store.KindDirectory
			size = 0
		}
		entries = append(entries, Entry{
			Path:    relative,
			Kind:    kind,
			Size:    size,
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: rel}
		}
		return nil, err
	}
	return entries, nil
}

// Stat returns the entry for a single path.
func (t *Tree) Stat(rel string) (Entry, error) {
	fi, err := t.fs.Stat(t.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, errors.FileNotFound{Path: rel}
		}
		return Entry{}, err
	}

	kind := store.KindFile
	if fi.IsDir() {
		kind = store.KindDirectory
	}
	return Entry{Path: rel, Kind: kind, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Open opens the file at rel for reading.
func (t *Tree) Open(rel string) (io.ReadCloser, error) {
	f, err := t.fs.Open(t.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: rel}
		}
		return nil, err
	}
	return f, nil
}

// Write streams contents into the file at rel, creating parent directories
// as needed. The write goes to a temporary name first and is renamed into
// place so a partial write never becomes visible under the final path.
func (t *Tree) Write(rel string, contents io.Reader) (int64, error) {
	abs := t.abs(rel)
	if err := t.fs.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return 0, errors.WithContext(err, "create parent")
	}

	tmp := abs + partialSuffix
	f, err := t.fs.Create(tmp)
	if err != nil {
		return 0, errors.WithContext(err, "create")
	}

	written, err := io.Copy(f, contents)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		t.fs.Remove(tmp)
		return 0, errors.WithContext(err, "write")
	}

	if err := t.fs.Rename(tmp, abs); err != nil {
		t.fs.Remove(tmp)
		return 0, errors.WithContext(err, "rename into place")
	}
	return written, nil
}

// MkdirAll creates the directory at rel and any missing parents.
func (t *Tree) MkdirAll(rel string) error {
	return t.fs.MkdirAll(t.abs(rel), 0755)
}

// Delete removes the path at rel, recursively for directories.
func (t *Tree) Delete(rel string) error {
	err := t.fs.RemoveAll(t.abs(rel))
	if err != nil && os.IsNotExist(err) {
		// Deleting something already gone is a no-op.
		return nil
	}
	return err
}

// Rename moves oldRel to newRel within the tree.
func (t *Tree) Rename(oldRel, newRel string) error {
	return t.fs.Rename(t.abs(oldRel), t.abs(newRel))
}

// Placeholder replaces the evicted file at rel with a symlink pointing at
// the equivalent path in target, so that opening the local path still
// reaches the remote-backed bytes. Filesystems without symlink support
// (notably the in-memory one used in tests) just leave the path absent; the
// metadata record is the placeholder that matters.
func (t *Tree) Placeholder(rel string, target *Tree) error {
	linker, ok := t.fs.(afero.Symlinker)
	if !ok {
		return nil
	}
	return linker.SymlinkIfPossible(target.abs(rel), t.abs(rel))
}
