package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zielen-io/zielen/pkg/allocate"
	"github.com/zielen-io/zielen/pkg/remote"
	"github.com/zielen-io/zielen/pkg/store"
)

type fixture struct {
	store    *store.Store
	localFs  afero.Fs
	remoteFs afero.Fs
	executor *Executor
}

func newFixture(t *testing.T) *fixture {
	st, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	localFs := afero.NewMemMapFs()
	remoteFs := afero.NewMemMapFs()
	local := remote.NewTree(localFs, "/local")
	rem := remote.NewTree(remoteFs, "/remote")

	clock := clockwork.NewFakeClockAt(
		time.Date(2017, 2, 19, 14, 55, 3, 0, time.UTC))
	return &fixture{
		store:    st,
		localFs:  localFs,
		remoteFs: remoteFs,
		executor: New(st, local, rem, 2, clock),
	}
}

func (f *fixture) seed(t *testing.T, rec store.PathRecord) {
	_, err := f.store.Ensure(rec)
	require.NoError(t, err)
}

func (f *fixture) location(t *testing.T, path string) store.Location {
	rec, ok := f.store.Get(path)
	require.True(t, ok, path)
	return rec.Location
}

func TestFetch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.remoteFs, "/remote/docs/a.txt", []byte("hello"), 0644))
	f.seed(t, store.PathRecord{Path: "docs", Kind: store.KindDirectory,
		Location: store.LocationRemoteOnly})
	f.seed(t, store.PathRecord{Path: "docs/a.txt", Kind: store.KindFile, Size: 5,
		Location: store.LocationRemoteOnly})

	err := f.executor.Apply(context.Background(), allocate.Plan{
		ToFetch: []string{"docs", "docs/a.txt"},
	})
	require.NoError(t, err)

	contents, err := afero.ReadFile(f.localFs, "/local/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(contents))
	assert.Equal(t, store.LocationSynced, f.location(t, "docs"))
	assert.Equal(t, store.LocationSynced, f.location(t, "docs/a.txt"))
}

func TestFetchAbortsOnChangedRemote(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.remoteFs, "/remote/a.txt", []byte("longer than expected"), 0644))
	f.seed(t, store.PathRecord{Path: "a.txt", Kind: store.KindFile, Size: 5,
		Location: store.LocationRemoteOnly})

	err := f.executor.Apply(context.Background(), allocate.Plan{ToFetch: []string{"a.txt"}})
	require.NoError(t, err)

	// The failure is logged, not fatal; no local artifact appears and the
	// record is unchanged so the next cycle retries with fresh metadata.
	exists, err := afero.Exists(f.localFs, "/local/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, store.LocationRemoteOnly, f.location(t, "a.txt"))
}

func TestPush(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.localFs, "/local/new.txt", []byte("fresh"), 0644))
	f.seed(t, store.PathRecord{Path: "new.txt", Kind: store.KindFile, Size: 5,
		Location: store.LocationLocalOnly})

	err := f.executor.Apply(context.Background(), allocate.Plan{ToPush: []string{"new.txt"}})
	require.NoError(t, err)

	contents, err := afero.ReadFile(f.remoteFs, "/remote/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(contents))

	rec, ok := f.store.Get("new.txt")
	require.True(t, ok)
	assert.Equal(t, store.LocationSynced, rec.Location)
	assert.Equal(t, int64(5), rec.Size)
}

func TestPushSkipsNonLocalOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.localFs, "/local/a.txt", []byte("hello"), 0644))
	f.seed(t, store.PathRecord{Path: "a.txt", Kind: store.KindFile, Size: 5,
		Location: store.LocationSynced})

	err := f.executor.Apply(context.Background(), allocate.Plan{ToPush: []string{"a.txt"}})
	require.NoError(t, err)

	exists, err := afero.Exists(f.remoteFs, "/remote/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEvict(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.localFs, "/local/a.txt", []byte("hello"), 0644))
	require.NoError(t, afero.WriteFile(f.remoteFs, "/remote/a.txt", []byte("hello"), 0644))
	f.seed(t, store.PathRecord{Path: "a.txt", Kind: store.KindFile, Size: 5,
		Location: store.LocationSynced})

	err := f.executor.Apply(context.Background(), allocate.Plan{ToEvict: []string{"a.txt"}})
	require.NoError(t, err)

	exists, err := afero.Exists(f.localFs, "/local/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, store.LocationRemoteOnly, f.location(t, "a.txt"))
}

func TestEvictRequiresRemoteCopy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.localFs, "/local/a.txt", []byte("hello"), 0644))
	f.seed(t, store.PathRecord{Path: "a.txt", Kind: store.KindFile, Size: 5,
		Location: store.LocationSynced})

	err := f.executor.Apply(context.Background(), allocate.Plan{ToEvict: []string{"a.txt"}})
	require.NoError(t, err)

	// No verified remote copy means the local bytes are the only bytes.
	// Eviction refuses to drop them.
	exists, err := afero.Exists(f.localFs, "/local/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, store.LocationSynced, f.location(t, "a.txt"))
}

func TestDeleteLocal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.localFs, "/local/a.txt", []byte("hello"), 0644))
	f.seed(t, store.PathRecord{Path: "a.txt", Kind: store.KindFile, Size: 5,
		Location: store.LocationPendingDelete})

	err := f.executor.Apply(context.Background(), allocate.Plan{ToDeleteLocal: []string{"a.txt"}})
	require.NoError(t, err)

	exists, err := afero.Exists(f.localFs, "/local/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
	_, ok := f.store.Get("a.txt")
	assert.False(t, ok)
}

func TestDeleteRemote(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.remoteFs, "/remote/a.txt", []byte("hello"), 0644))
	f.seed(t, store.PathRecord{Path: "a.txt", Kind: store.KindFile, Size: 5,
		Location: store.LocationPendingDelete})

	err := f.executor.Apply(context.Background(), allocate.Plan{ToDeleteRemote: []string{"a.txt"}})
	require.NoError(t, err)

	exists, err := afero.Exists(f.remoteFs, "/remote/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
	_, ok := f.store.Get("a.txt")
	assert.False(t, ok)
}

func TestMarkRemote(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.remoteFs, "/remote/notes.txt", []byte("hello"), 0644))
	f.seed(t, store.PathRecord{Path: "notes.txt", Kind: store.KindFile, Size: 5,
		Location: store.LocationPendingDelete})

	err := f.executor.Apply(context.Background(), allocate.Plan{ToMarkRemote: []string{"notes.txt"}})
	require.NoError(t, err)

	exists, err := afero.Exists(f.remoteFs, "/remote/notes.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	// Renamed to a marker stamped with the injected clock's time.
	marked, err := afero.Exists(f.remoteFs, "/remote/notes_deleted-20170219-145503.txt")
	require.NoError(t, err)
	assert.True(t, marked)

	_, ok := f.store.Get("notes.txt")
	assert.False(t, ok)
}

func TestApplyStopsBetweenPhasesOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.executor.Apply(ctx, allocate.Plan{ToFetch: []string{"a.txt"}})
	assert.Equal(t, context.Canceled, err)
}

// cancellingFs cancels its context on the first Stat, then behaves normally.
type cancellingFs struct {
	afero.Fs
	cancel context.CancelFunc
}

func (c *cancellingFs) Stat(name string) (os.FileInfo, error) {
	c.cancel()
	return c.Fs.Stat(name)
}

func TestApplyReportsCancelDuringLastPhase(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.localFs, "/local/a.txt", []byte("hello"), 0644))
	require.NoError(t, afero.WriteFile(f.remoteFs, "/remote/a.txt", []byte("hello"), 0644))
	f.seed(t, store.PathRecord{Path: "a.txt", Kind: store.KindFile, Size: 5,
		Location: store.LocationSynced})

	// Eviction is the last phase. The cancellation lands while its only
	// operation runs, so no later phase check can observe it; Apply has to
	// report it itself.
	ctx, cancel := context.WithCancel(context.Background())
	rem := remote.NewTree(&cancellingFs{Fs: f.remoteFs, cancel: cancel}, "/remote")
	executor := New(f.store, remote.NewTree(f.localFs, "/local"), rem, 2,
		clockwork.NewFakeClock())

	err := executor.Apply(ctx, allocate.Plan{ToEvict: []string{"a.txt"}})
	assert.Equal(t, context.Canceled, err)
}
