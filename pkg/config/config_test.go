package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/zielen-io/zielen/pkg/errors"
)

func TestParse(t *testing.T) {
	fs = afero.NewMemMapFs()

	configPath := "/profile/config.yaml"
	contents := `localDir: /home/user/mirror
remoteDir: /mnt/remote
storageLimit: 10GiB
trashDirs: /home/user/.trash:/tmp/trash
workers: 2
pollInterval: 5m
`
	assert.NoError(t, afero.WriteFile(fs, configPath, []byte(contents), 0644))

	config, err := Parse(configPath)
	assert.NoError(t, err)
	assert.Equal(t, "/home/user/mirror", config.LocalDir)
	assert.Equal(t, "/mnt/remote", config.RemoteDir)
	assert.Equal(t, int64(10)<<30, config.StorageLimitBytes)
	assert.Equal(t, []string{"/home/user/.trash", "/tmp/trash"}, config.TrashDirList)
	assert.Equal(t, 2, config.Workers)
	assert.Equal(t, 5*time.Minute, config.PollDuration)
}

func TestParseDefaults(t *testing.T) {
	fs = afero.NewMemMapFs()

	configPath := "/profile/config.yaml"
	contents := `localDir: /local
remoteDir: /remote
storageLimit: 1GiB
`
	assert.NoError(t, afero.WriteFile(fs, configPath, []byte(contents), 0644))

	config, err := Parse(configPath)
	assert.NoError(t, err)
	assert.Equal(t, defaultWorkers, config.Workers)
	assert.Equal(t, defaultPollInterval, config.PollDuration)
	assert.False(t, config.GetDeleteAlways())
	assert.True(t, config.GetSyncExtraFiles())
	assert.True(t, config.GetInflatePriority())
	assert.True(t, config.GetAccountForSize())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{
			name:     "ExtraFields",
			contents: "localDir: /l\nremoteDir: /r\nstorageLimit: 1GiB\nbogus: true\n",
		},
		{
			name:     "MissingLocalDir",
			contents: "remoteDir: /r\nstorageLimit: 1GiB\n",
		},
		{
			name:     "MissingRemoteDir",
			contents: "localDir: /l\nstorageLimit: 1GiB\n",
		},
		{
			name:     "RelativeLocalDir",
			contents: "localDir: relative/path\nremoteDir: /r\nstorageLimit: 1GiB\n",
		},
		{
			name:     "BadStorageLimit",
			contents: "localDir: /l\nremoteDir: /r\nstorageLimit: lots\n",
		},
		{
			name:     "BadPollInterval",
			contents: "localDir: /l\nremoteDir: /r\nstorageLimit: 1GiB\npollInterval: often\n",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			configPath := "/profile/config.yaml"
			assert.NoError(t, afero.WriteFile(fs, configPath, []byte(test.contents), 0644))

			_, err := Parse(configPath)
			assert.Error(t, err)

			var friendly errors.FriendlyError
			assert.True(t, errors.As(err, &friendly),
				"config errors should be presentable to the user")
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	fs = afero.NewMemMapFs()

	_, err := Parse("/profile/config.yaml")
	var notFound errors.FileNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestParseStorageLimit(t *testing.T) {
	tests := []struct {
		input    string
		expBytes int64
		expError bool
	}{
		{input: "512B", expBytes: 512},
		{input: "512K", expBytes: 512 << 10},
		{input: "512KB", expBytes: 512 << 10},
		{input: "512KiB", expBytes: 512 << 10},
		{input: "10M", expBytes: 10 << 20},
		{input: "10 MB", expBytes: 10 << 20},
		{input: "10GiB", expBytes: 10 << 30},
		{input: "10GB", expBytes: 10 << 30},
		{input: "10", expError: true},
		{input: "10TB", expError: true},
		{input: "-1MB", expError: true},
		{input: "", expError: true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			bytes, err := ParseStorageLimit(test.input)
			if test.expError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, test.expBytes, bytes)
		})
	}
}
