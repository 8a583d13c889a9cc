// Package fswatch watches the local mirror for changes so that the watch
// loop can react to them quickly instead of waiting for the next poll.
package fswatch

import (
	"os"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/zielen-io/zielen/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Watch watches the directory tree rooted at root. It sends an event on the
// returned channel whenever anything under root changes. Call the returned
// stop function to release the watcher's file handles.
func Watch(root string) (chan struct{}, func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, errors.WithContext(err, "create watcher")
	}

	// fsnotify doesn't recurse, so every directory is added individually.
	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
	if err != nil {
		// Close the watcher so that we release the file handles for the
		// previously added paths.
		if closeErr := watcher.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Failed to close file watcher")
		}
		if os.IsNotExist(err) {
			return nil, nil, errors.FileNotFound{Path: root}
		}
		return nil, nil, errors.WithContext(err, "watch tree")
	}

	stop := func() {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close file watcher")
		}
	}
	return combineUpdates(watcher), stop, nil
}

// combineUpdates collapses bursts of filesystem events into a single-slot
// trigger channel, and keeps the watcher covering directories created after
// the initial walk.
func combineUpdates(watcher *fsnotify.Watcher) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		for event := range watcher.Events {
			if event.Op&fsnotify.Create != 0 {
				if fi, err := fs.Stat(event.Name); err == nil && fi.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						log.WithError(err).WithField("path", event.Name).Debug(
							"Failed to watch new directory")
					}
				}
			}

			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	go func() {
		for err := range watcher.Errors {
			log.WithError(err).Warn("File watcher error")
		}
	}()
	return combined
}
