package version

import (
	goversion "github.com/hashicorp/go-version"

	"github.com/zielen-io/zielen/pkg/errors"
)

// EmptyValue is the value we use when running a version that wasn't compiled
// by `make`. This is helpful for telling when we're running in a unit test.
const EmptyValue = "set-by-make"

// Version is the latest tag on git for releases. On non-release commits, it
// may include additional information such as the most recent commit hash.
var Version = EmptyValue

// CheckProfileCompatibility returns an error if a profile initialized by
// `profileVersion` can't be operated on by this binary. Profiles are
// compatible across patch and minor releases, but not across major ones.
func CheckProfileCompatibility(profileVersion string) error {
	if Version == EmptyValue || profileVersion == "" {
		// Unit tests and hand-built binaries skip the check.
		return nil
	}

	ours, err := goversion.NewVersion(Version)
	if err != nil {
		return errors.WithContext(err, "parse binary version")
	}

	theirs, err := goversion.NewVersion(profileVersion)
	if err != nil {
		return errors.WithContext(err, "parse profile version")
	}

	if ours.Segments()[0] != theirs.Segments()[0] {
		return errors.NewFriendlyError(
			"This profile was initialized by zielen %s, which is "+
				"incompatible with this binary (%s).\n"+
				"Re-initialize the profile, or install a matching release.",
			profileVersion, Version)
	}
	return nil
}
