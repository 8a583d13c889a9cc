// Package profile manages the per-profile state directory: the
// configuration file, the info file recording the initializing version and
// last sync time, the exclude pattern file, and the lock that keeps two
// processes from operating on one profile at once.
package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/zielen-io/zielen/pkg/config"
	"github.com/zielen-io/zielen/pkg/errors"
	"github.com/zielen-io/zielen/pkg/version"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

const (
	configFile  = "config.yaml"
	infoFile    = "info.json"
	excludeFile = "exclude"
	lockFile    = "lock"

	// DatabaseFile is the metadata store, relative to the profile dir.
	DatabaseFile = "metadata.db"
)

// Profile is a loaded profile directory.
type Profile struct {
	Dir     string
	Config  config.Config
	Info    *Info
	Exclude *ExcludeFile

	locked bool
}

// Info is the profile metadata persisted in info.json.
type Info struct {
	// Version of the binary that initialized the profile.
	Version string `json:"version"`

	// ID uniquely identifies this client to the remote tree.
	ID string `json:"id"`

	// LastSync is the unix time of the last completed cycle, zero if none.
	LastSync int64 `json:"lastSync"`

	path string
}

// Load reads the profile at dir and verifies it was initialized by a
// compatible version.
func Load(dir string) (*Profile, error) {
	cfg, err := config.Parse(filepath.Join(dir, configFile))
	if err != nil {
		return nil, errors.WithContext(err, "parse config")
	}

	info, err := loadInfo(filepath.Join(dir, infoFile))
	if err != nil {
		return nil, errors.WithContext(err, "load info")
	}
	if err := version.CheckProfileCompatibility(info.Version); err != nil {
		return nil, err
	}

	exclude, err := LoadExcludeFile(filepath.Join(dir, excludeFile))
	if err != nil {
		return nil, errors.WithContext(err, "load exclude patterns")
	}

	return &Profile{
		Dir:     dir,
		Config:  cfg,
		Info:    info,
		Exclude: exclude,
	}, nil
}

// DatabasePath returns the metadata store location for this profile.
func (p *Profile) DatabasePath() string {
	return filepath.Join(p.Dir, DatabaseFile)
}

// Lock takes the profile lock. It fails if another process holds it.
func (p *Profile) Lock() error {
	path := filepath.Join(p.Dir, lockFile)
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errors.NewFriendlyError(
				"Another zielen process is already operating on this "+
					"profile.\nIf that's wrong, remove %q and retry.", path)
		}
		return errors.WithContext(err, "create lock")
	}
	f.Close()
	p.locked = true
	return nil
}

// Unlock releases the profile lock.
func (p *Profile) Unlock() {
	if !p.locked {
		return
	}
	fs.Remove(filepath.Join(p.Dir, lockFile))
	p.locked = false
}

func loadInfo(path string) (*Info, error) {
	info := &Info{path: path}

	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			// A fresh profile. The info file is created on the first
			// completed cycle.
			info.Version = version.Version
			return info, nil
		}
		return nil, errors.WithContext(err, "read")
	}

	if err := json.Unmarshal(contents, info); err != nil {
		return nil, errors.WithContext(err, "parse")
	}
	return info, nil
}

// LastSyncTime returns the time of the last completed cycle, or the zero
// time if none has completed yet.
func (info *Info) LastSyncTime() time.Time {
	if info.LastSync == 0 {
		return time.Time{}
	}
	return time.Unix(info.LastSync, 0)
}

// RecordSync persists the completion of a cycle at the given time.
func (info *Info) RecordSync(now time.Time) error {
	info.LastSync = now.Unix()
	if info.Version == "" {
		info.Version = version.Version
	}

	contents, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return errors.WithContext(err, "marshal")
	}
	if err := afero.WriteFile(fs, info.path, contents, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}
