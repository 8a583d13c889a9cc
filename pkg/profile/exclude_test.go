package profile

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadExclude(t *testing.T, contents string) *ExcludeFile {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/profile/exclude", []byte(contents), 0644))

	exclude, err := LoadExcludeFile("/profile/exclude")
	require.NoError(t, err)
	return exclude
}

func TestExcludeAnchored(t *testing.T) {
	exclude := loadExclude(t, "/build\n")

	assert.True(t, exclude.Matches("build"))
	assert.True(t, exclude.Matches("build/out.bin"))
	assert.False(t, exclude.Matches("src/build"))
	assert.False(t, exclude.Matches("buildings"))
}

func TestExcludeUnanchored(t *testing.T) {
	exclude := loadExclude(t, "node_modules\n*.log\n")

	assert.True(t, exclude.Matches("node_modules"))
	assert.True(t, exclude.Matches("web/node_modules"))
	assert.True(t, exclude.Matches("web/node_modules/left-pad/index.js"))
	assert.True(t, exclude.Matches("debug.log"))
	assert.True(t, exclude.Matches("a/b/c/debug.log"))
	assert.False(t, exclude.Matches("debug.log.txt"))
	assert.False(t, exclude.Matches("src/main.go"))
}

func TestExcludeMultiSegmentPattern(t *testing.T) {
	exclude := loadExclude(t, "docs/*.tmp\n")

	assert.True(t, exclude.Matches("docs/a.tmp"))
	assert.True(t, exclude.Matches("project/docs/a.tmp"))
	assert.False(t, exclude.Matches("docs/a.txt"))
}

func TestExcludeCommentsAndBlanks(t *testing.T) {
	exclude := loadExclude(t, "# generated files\n\n  \n*.o\n")

	assert.True(t, exclude.Matches("main.o"))
	assert.False(t, exclude.Matches("# generated files"))
}

func TestExcludeMissingFile(t *testing.T) {
	fs = afero.NewMemMapFs()

	exclude, err := LoadExcludeFile("/profile/exclude")
	require.NoError(t, err)
	assert.False(t, exclude.Matches("anything"))
}
