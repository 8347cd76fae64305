package hardlink

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func TestProbeSupportedOnSameFilesystem(t *testing.T) {
	reference := t.TempDir()
	local := t.TempDir()

	support, err := Probe(reference, local)
	require.NoError(t, err)
	assert.Equal(t, Supported, support)
}

func TestProbeEmptyPathsAreUnsupported(t *testing.T) {
	support, err := Probe("", "")
	require.NoError(t, err)
	assert.Equal(t, Unsupported, support)
}

func TestProbeCleansUpItsTempFiles(t *testing.T) {
	reference := t.TempDir()
	local := t.TempDir()

	_, err := Probe(reference, local)
	require.NoError(t, err)

	refEntries, err := readDirNames(reference)
	require.NoError(t, err)
	assert.Empty(t, refEntries)

	localEntries, err := readDirNames(local)
	require.NoError(t, err)
	assert.Empty(t, localEntries)
}
