package pullengine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/adbsnap/adbsnap/internal/pullerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPullRequiresRemoteAndLocalRoot(t *testing.T) {
	_, err := Pull(context.Background(), "", "", Options{})
	require.Error(t, err)
	_, ok := err.(*pullerr.ConfigError)
	assert.True(t, ok)
}

func TestResolveAbsMakesPathAbsolute(t *testing.T) {
	dir := t.TempDir()
	rel := filepath.Base(dir)

	abs, err := ResolveAbs(filepath.Join(filepath.Dir(dir), rel))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))
	assert.Equal(t, dir, abs)
}

func TestMatcherOrNilPreservesTrueNil(t *testing.T) {
	assert.Nil(t, matcherOrNil(nil))
}

func TestWithDefaultsFillsConcurrencyAndEmitter(t *testing.T) {
	opts := Options{DeviceSerial: "emulator-5554"}
	opts.withDefaults()
	assert.Equal(t, 4, opts.Concurrency)
	assert.NotNil(t, opts.Emitter)
	assert.NotNil(t, opts.Log)
	assert.NotNil(t, opts.Adb)
}
