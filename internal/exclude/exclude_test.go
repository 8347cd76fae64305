package exclude

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetMatches(t *testing.T) {
	set, err := Compile([]string{
		"*.tmp",
		"Android/data/",
		"!Android/data/keep.txt",
	})
	require.NoError(t, err)

	assert.True(t, set.Matches("foo.tmp", false))
	assert.False(t, set.Matches("foo.jpg", false))
	assert.True(t, set.Matches("Android/data", true))
	assert.True(t, set.Matches("Android/data/com.example/cache", false))
}

func TestEmptySetMatchesNothing(t *testing.T) {
	set := Empty()
	assert.False(t, set.Matches("anything", false))
	assert.False(t, set.Matches("anything", true))
}

func TestNilSetMatchesNothing(t *testing.T) {
	var set *Set
	assert.False(t, set.Matches("anything", false))
}

func TestReadPatternFileStripsCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exclude.txt")
	content := "# comment\n\n*.log\n  \nDCIM/.thumbnails/\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	lines, err := ReadPatternFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.log", "DCIM/.thumbnails/"}, lines)
}

func TestMerge(t *testing.T) {
	got := Merge([]string{"a", "b"}, []string{"c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
