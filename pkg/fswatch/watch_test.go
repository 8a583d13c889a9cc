package fswatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zielen-io/zielen/pkg/errors"
)

func awaitUpdate(t *testing.T, updates chan struct{}) {
	select {
	case <-updates:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a filesystem update")
	}
}

func TestWatchSignalsOnChange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))

	updates, stop, err := Watch(dir)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))
	awaitUpdate(t, updates)

	// Subdirectories present at watch time are covered too.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("x"), 0644))
	awaitUpdate(t, updates)
}

func TestWatchCoversNewDirectories(t *testing.T) {
	dir := t.TempDir()

	updates, stop, err := Watch(dir)
	require.NoError(t, err)
	defer stop()

	newDir := filepath.Join(dir, "created-later")
	require.NoError(t, os.Mkdir(newDir, 0755))
	awaitUpdate(t, updates)

	// Give the watcher a moment to pick up the new directory, then change
	// something inside it.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(newDir, "c.txt"), []byte("x"), 0644))
	awaitUpdate(t, updates)
}

func TestWatchMissingRoot(t *testing.T) {
	_, _, err := Watch(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)

	var notFound errors.FileNotFound
	assert.True(t, errors.As(err, &notFound))
}
