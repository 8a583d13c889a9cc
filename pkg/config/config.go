package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/zielen-io/zielen/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// parseConfigErrTemplate is a template for when we fail to parse the profile
// configuration file. This can happen for a multitude of reasons, including
// extraneous fields and incorrect field types. However, the yaml library
// constructs errors in a way that loses context, and so we can only pass the
// error message on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// Config is the parsed profile configuration. String fields that need
// normalization (unit suffixes, colon-separated lists, `~` expansion) are
// resolved by Parse; the engine only ever sees the normalized values.
type Config struct {
	// LocalDir is the root of the local mirror.
	LocalDir string `json:"localDir"`

	// RemoteDir is the mountpoint of the remote directory. Mounting it is
	// external to this program; SshfsOptions is passed through to whatever
	// does the mounting.
	RemoteDir    string `json:"remoteDir"`
	SshfsOptions string `json:"sshfsOptions,omitempty"`

	// StorageLimit caps the bytes kept in LocalDir, e.g. "10GiB". Binary
	// units are used even when the metric spelling is given.
	StorageLimit string `json:"storageLimit"`

	// TrashDirs is a colon-separated list of trash directories searched for
	// evidence that a deletion was deliberate.
	TrashDirs string `json:"trashDirs,omitempty"`

	DeleteAlways    *bool `json:"deleteAlways,omitempty"`
	SyncExtraFiles  *bool `json:"syncExtraFiles,omitempty"`
	InflatePriority *bool `json:"inflatePriority,omitempty"`
	AccountForSize  *bool `json:"accountForSize,omitempty"`

	// Workers bounds how many fetch/evict/delete operations run at once.
	Workers int `json:"workers,omitempty"`

	// PollInterval is how often `zielen watch` runs a cycle when no
	// filesystem events arrive, e.g. "10m".
	PollInterval string `json:"pollInterval,omitempty"`

	// Normalized values, populated by Parse.
	StorageLimitBytes int64         `json:"-"`
	TrashDirList      []string      `json:"-"`
	PollDuration      time.Duration `json:"-"`
}

const (
	defaultWorkers      = 4
	defaultPollInterval = 10 * time.Minute
)

var storageLimitRegex = regexp.MustCompile(
	`^([0-9]+)\s*(B|K|KB|KiB|M|MB|MiB|G|GB|GiB)$`)

// Parse reads and validates the profile configuration at `path`.
func Parse(path string) (Config, error) {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, errors.FileNotFound{Path: path}
		}
		return Config{}, errors.WithContext(err, "read file")
	}

	var config Config
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return Config{}, errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	// Do a strict unmarshal to check for any extra fields. We do a
	// non-strict unmarshal first so that type errors are reported before
	// unknown-field errors.
	if err := yaml.UnmarshalStrict(configBytes, &config, yaml.DisallowUnknownFields); err != nil {
		return Config{}, errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	if err := config.normalize(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (config *Config) normalize() error {
	if config.LocalDir == "" {
		return errors.NewFriendlyError("localDir must be set")
	}
	if config.RemoteDir == "" {
		return errors.NewFriendlyError("remoteDir must be set")
	}

	var err error
	if config.LocalDir, err = expandPath(config.LocalDir); err != nil {
		return errors.WithContext(err, "expand localDir")
	}
	if config.RemoteDir, err = expandPath(config.RemoteDir); err != nil {
		return errors.WithContext(err, "expand remoteDir")
	}

	config.StorageLimitBytes, err = ParseStorageLimit(config.StorageLimit)
	if err != nil {
		return err
	}

	trashDirs := config.TrashDirs
	if trashDirs == "" {
		trashDirs = defaultTrashDirs()
	}
	for _, dir := range strings.Split(trashDirs, ":") {
		if dir == "" {
			continue
		}
		expanded, err := expandPath(dir)
		if err != nil {
			return errors.WithContext(err, "expand trash dir")
		}
		config.TrashDirList = append(config.TrashDirList, expanded)
	}

	if config.Workers == 0 {
		config.Workers = defaultWorkers
	}
	if config.Workers < 0 {
		return errors.NewFriendlyError("workers must be positive")
	}

	config.PollDuration = defaultPollInterval
	if config.PollInterval != "" {
		config.PollDuration, err = time.ParseDuration(config.PollInterval)
		if err != nil {
			return errors.NewFriendlyError(
				"pollInterval %q is not a valid duration (e.g. \"10m\")",
				config.PollInterval)
		}
	}

	return nil
}

// GetDeleteAlways defaults to false: deletions are only propagated when the
// trash search suggests they were deliberate.
func (config Config) GetDeleteAlways() bool {
	return config.DeleteAlways != nil && *config.DeleteAlways
}

// GetSyncExtraFiles defaults to true.
func (config Config) GetSyncExtraFiles() bool {
	return config.SyncExtraFiles == nil || *config.SyncExtraFiles
}

// GetInflatePriority defaults to true.
func (config Config) GetInflatePriority() bool {
	return config.InflatePriority == nil || *config.InflatePriority
}

// GetAccountForSize defaults to true.
func (config Config) GetAccountForSize() bool {
	return config.AccountForSize == nil || *config.AccountForSize
}

// ParseStorageLimit converts a human-readable size like "10GiB" into bytes.
// Binary units are used even when the user writes the metric notation, so
// "10GB" and "10GiB" both mean 10*2^30.
func ParseStorageLimit(limit string) (int64, error) {
	match := storageLimitRegex.FindStringSubmatch(strings.TrimSpace(limit))
	if match == nil {
		return 0, errors.NewFriendlyError(
			"storageLimit %q must be an integer followed by a unit (e.g. 10GiB)",
			limit)
	}

	num, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, errors.WithContext(err, "parse storageLimit")
	}

	switch match[2] {
	case "B":
		return num, nil
	case "K", "KB", "KiB":
		return num << 10, nil
	case "M", "MB", "MiB":
		return num << 20, nil
	default:
		return num << 30, nil
	}
}

func defaultTrashDirs() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "Trash/files")
	}

	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local/share/Trash/files")
}

func expandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		return "", errors.NewFriendlyError("%q must be an absolute path", path)
	}
	return filepath.Clean(expanded), nil
}
