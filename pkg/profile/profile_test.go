package profile

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zielen-io/zielen/pkg/errors"
)

func TestLockIsExclusive(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/profile", 0755))

	first := &Profile{Dir: "/profile"}
	require.NoError(t, first.Lock())

	second := &Profile{Dir: "/profile"}
	err := second.Lock()
	require.Error(t, err)

	var friendly errors.FriendlyError
	assert.True(t, errors.As(err, &friendly))

	first.Unlock()
	assert.NoError(t, second.Lock())
	second.Unlock()
}

func TestInfoRoundTrip(t *testing.T) {
	fs = afero.NewMemMapFs()

	info, err := loadInfo("/profile/info.json")
	require.NoError(t, err)
	assert.True(t, info.LastSyncTime().IsZero())

	at := time.Date(2017, 2, 19, 14, 55, 3, 0, time.UTC)
	require.NoError(t, info.RecordSync(at))

	reloaded, err := loadInfo("/profile/info.json")
	require.NoError(t, err)
	assert.True(t, at.Truncate(time.Second).Equal(reloaded.LastSyncTime()))
}
