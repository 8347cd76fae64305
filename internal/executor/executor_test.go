package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adbsnap/adbsnap/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, localRoot, referenceRoot string) *Executor {
	t.Helper()
	return New(Config{
		LocalRoot:     localRoot,
		ReferenceRoot: referenceRoot,
		Concurrency:   2,
	})
}

func TestExecuteCreateDir(t *testing.T) {
	local := t.TempDir()
	exec := newTestExecutor(t, local, "")

	summary, err := exec.Execute(context.Background(), []reconcile.Action{
		{Kind: reconcile.CreateDir, Path: "DCIM/Camera"},
	})
	require.NoError(t, err)
	assert.Empty(t, summary.Failures)

	info, statErr := os.Stat(filepath.Join(local, "DCIM", "Camera"))
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestExecuteCreateDirFailureIsFatal(t *testing.T) {
	local := t.TempDir()
	// Create a file where a directory needs to go, so MkdirAll fails.
	blocker := filepath.Join(local, "DCIM")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	exec := newTestExecutor(t, local, "")
	_, err := exec.Execute(context.Background(), []reconcile.Action{
		{Kind: reconcile.CreateDir, Path: "DCIM/Camera"},
	})
	require.Error(t, err)
}

func TestExecuteDeleteRemovesLocalFile(t *testing.T) {
	local := t.TempDir()
	target := filepath.Join(local, "stale.jpg")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	exec := newTestExecutor(t, local, "")
	summary, err := exec.Execute(context.Background(), []reconcile.Action{
		{Kind: reconcile.Delete, Path: "stale.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesDeleted)

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExecuteDeleteMissingFileIsNotAFailure(t *testing.T) {
	local := t.TempDir()
	exec := newTestExecutor(t, local, "")

	summary, err := exec.Execute(context.Background(), []reconcile.Action{
		{Kind: reconcile.Delete, Path: "already-gone.jpg"},
	})
	require.NoError(t, err)
	assert.Empty(t, summary.Failures)
}

func TestExecuteLinkOrCopyLinksWhenHardlinkSupported(t *testing.T) {
	local := t.TempDir()
	reference := t.TempDir()

	refFile := filepath.Join(reference, "a.jpg")
	require.NoError(t, os.WriteFile(refFile, []byte("hello"), 0o644))

	cfg := Config{LocalRoot: local, ReferenceRoot: reference, Concurrency: 1, HardlinkSupported: true}
	exec := New(cfg)

	mtime := time.Now().Unix()
	summary, err := exec.Execute(context.Background(), []reconcile.Action{
		{Kind: reconcile.LinkOrCopy, Path: "a.jpg", SourcePath: "a.jpg", ExpectedSize: 5, ExpectedMtime: mtime},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesLinked)

	destInfo, statErr := os.Stat(filepath.Join(local, "a.jpg"))
	require.NoError(t, statErr)
	refInfo, statErr := os.Stat(refFile)
	require.NoError(t, statErr)
	assert.True(t, os.SameFile(destInfo, refInfo))
}

func TestExecuteLinkOrCopyFallsBackToCopyWhenUnsupported(t *testing.T) {
	local := t.TempDir()
	reference := t.TempDir()

	refFile := filepath.Join(reference, "a.jpg")
	require.NoError(t, os.WriteFile(refFile, []byte("hello"), 0o644))

	cfg := Config{LocalRoot: local, ReferenceRoot: reference, Concurrency: 1, HardlinkSupported: false}
	exec := New(cfg)

	mtime := time.Now().Unix()
	summary, err := exec.Execute(context.Background(), []reconcile.Action{
		{Kind: reconcile.LinkOrCopy, Path: "a.jpg", SourcePath: "a.jpg", ExpectedSize: 5, ExpectedMtime: mtime},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesCopied)

	destInfo, statErr := os.Stat(filepath.Join(local, "a.jpg"))
	require.NoError(t, statErr)
	refInfo, statErr := os.Stat(refFile)
	require.NoError(t, statErr)
	assert.False(t, os.SameFile(destInfo, refInfo))
}

func TestExecuteDryRunMakesNoChanges(t *testing.T) {
	local := t.TempDir()
	cfg := Config{LocalRoot: local, Concurrency: 1, DryRun: true}
	exec := New(cfg)

	summary, err := exec.Execute(context.Background(), []reconcile.Action{
		{Kind: reconcile.CreateDir, Path: "DCIM"},
	})
	require.NoError(t, err)
	assert.Empty(t, summary.Failures)

	_, statErr := os.Stat(filepath.Join(local, "DCIM"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCleanStaleStagingRemovesOnlyTmpFiles(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, StagingPrefix+"abc-file.jpg")
	keep := filepath.Join(root, "file.jpg")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(keep, []byte("y"), 0o644))

	require.NoError(t, CleanStaleStaging(root))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(keep)
	assert.NoError(t, err)
}

func TestCleanStaleStagingOnMissingRootIsNotAnError(t *testing.T) {
	assert.NoError(t, CleanStaleStaging(filepath.Join(t.TempDir(), "does-not-exist")))
}
