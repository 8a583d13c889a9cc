package util

import (
	"github.com/jonboulle/clockwork"

	"github.com/zielen-io/zielen/pkg/errors"
	"github.com/zielen-io/zielen/pkg/profile"
	"github.com/zielen-io/zielen/pkg/remote"
	"github.com/zielen-io/zielen/pkg/store"
	"github.com/zielen-io/zielen/pkg/syncer"
)

// LoadSyncer loads the profile at profileDir, takes its lock, opens the
// metadata store, and wires up the sync engine. The returned cleanup
// releases the lock and the store.
func LoadSyncer(profileDir string) (*syncer.Syncer, *profile.Profile, func(), error) {
	p, err := profile.Load(profileDir)
	if err != nil {
		return nil, nil, nil, errors.WithContext(err, "load profile")
	}

	if err := p.Lock(); err != nil {
		return nil, nil, nil, err
	}

	st, err := store.Open(p.DatabasePath())
	if err != nil {
		p.Unlock()
		return nil, nil, nil, errors.WithContext(err, "open metadata store")
	}

	local := remote.NewOsTree(p.Config.LocalDir)
	rem := remote.NewOsTree(p.Config.RemoteDir)
	engine := syncer.New(p, st, local, rem, clockwork.NewRealClock())

	cleanup := func() {
		st.Close()
		p.Unlock()
	}
	return engine, p, cleanup, nil
}
