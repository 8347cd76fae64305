package remotescan

import (
	"testing"

	"github.com/adbsnap/adbsnap/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntryFile(t *testing.T) {
	rec, relPath, err := parseEntry("f\t1234\t1700000000.5000000\t/sdcard/DCIM/img.jpg", "/sdcard")
	require.NoError(t, err)
	assert.Equal(t, "DCIM/img.jpg", relPath)
	assert.Equal(t, model.KindFile, rec.Kind)
	assert.Equal(t, int64(1234), rec.Size)
	assert.Equal(t, int64(1700000000), rec.Mtime)
}

func TestParseEntryDirectorySizeIsZeroed(t *testing.T) {
	rec, relPath, err := parseEntry("d\t4096\t1700000000\t/sdcard/DCIM", "/sdcard")
	require.NoError(t, err)
	assert.Equal(t, "DCIM", relPath)
	assert.Equal(t, model.KindDir, rec.Kind)
	assert.Equal(t, int64(0), rec.Size)
}

func TestParseEntryRootIsEmptyRelPath(t *testing.T) {
	_, relPath, err := parseEntry("d\t4096\t1700000000\t/sdcard", "/sdcard")
	require.NoError(t, err)
	assert.Equal(t, "", relPath)
}

func TestParseEntryRejectsMalformedLine(t *testing.T) {
	_, _, err := parseEntry("not enough fields", "/sdcard")
	assert.Error(t, err)
}

func TestParseEntrySymlinkAndOther(t *testing.T) {
	rec, _, err := parseEntry("l\t0\t1700000000\t/sdcard/link", "/sdcard")
	require.NoError(t, err)
	assert.Equal(t, model.KindSymlink, rec.Kind)

	rec, _, err = parseEntry("c\t0\t1700000000\t/sdcard/dev", "/sdcard")
	require.NoError(t, err)
	assert.Equal(t, model.KindOther, rec.Kind)
}

func TestIsUnsupportedFindError(t *testing.T) {
	assert.True(t, isUnsupportedFindError(errString("find: unrecognized: -printf")))
	assert.True(t, isUnsupportedFindError(errString("busybox find: bad option -printf")))
	assert.False(t, isUnsupportedFindError(errString("permission denied")))
}

type errString string

func (e errString) Error() string { return string(e) }
