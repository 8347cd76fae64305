// Package executor implements spec component C6: it executes a
// reconciler plan with a bounded worker pool, invoking the adb façade for
// transfers and the local filesystem for hard-link-or-copy/delete/mtime.
// Grounded on the teacher's worker-pool shape (pkg/engine/engine.go's
// Engine.worker) and its ADBCopier/FSCopier split (adb_adapter.go,
// fs_adapter.go), generalized from "copy a file" into the reconciler's
// typed Action list and its parent-before-child / deletes-last ordering
// rules (section 4.6).
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adbsnap/adbsnap/internal/adbshell"
	"github.com/adbsnap/adbsnap/internal/progress"
	"github.com/adbsnap/adbsnap/internal/pullerr"
	"github.com/adbsnap/adbsnap/internal/reconcile"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Retry policy constants (section 4.6): up to 3 retries, 250ms/1s/4s.
const (
	maxRetries  = 3
	backoffMin  = 250 * time.Millisecond
	backoffMax  = 4 * time.Second
	backoffFact = 4
)

// Summary is the per-run result spec section 4.8 requires.
type Summary struct {
	FilesPulled     int
	FilesLinked     int
	FilesCopied     int
	FilesDeleted    int
	BytesTransferred int64
	Failures        []*pullerr.ActionError
}

// Config configures one Execute call.
type Config struct {
	Adb               *adbshell.Facade
	RemoteRoot        string
	LocalRoot         string
	ReferenceRoot     string
	Concurrency       int
	DryRun            bool
	HardlinkSupported bool // result of the C7 probe
	Emitter           progress.Emitter
	Log               logrus.FieldLogger
}

// Executor runs a plan against the filesystem and adb.
type Executor struct {
	cfg Config

	hardlinkAvailable atomic.Bool

	mu      sync.Mutex
	summary Summary
}

// New returns an Executor. If cfg.Emitter is nil, events are discarded; if
// cfg.Log is nil, logrus's standard logger is used.
func New(cfg Config) *Executor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Emitter == nil {
		cfg.Emitter = progress.Null
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	e := &Executor{cfg: cfg}
	e.hardlinkAvailable.Store(cfg.HardlinkSupported)
	return e
}

// Execute runs every non-Delete action concurrently (bounded by
// cfg.Concurrency), waits for them all, then runs Delete actions — which
// must run after everything else completes (section 4.6) — in the order
// given (the reconciler already sorted them into reverse-depth order so a
// directory is empty by the time its own Delete runs).
func (e *Executor) Execute(ctx context.Context, actions []reconcile.Action) (Summary, error) {
	var deletes []reconcile.Action
	var rest []reconcile.Action
	for _, a := range actions {
		if a.Kind == reconcile.Delete {
			deletes = append(deletes, a)
		} else {
			rest = append(rest, a)
		}
	}

	if err := e.runConcurrent(ctx, rest); err != nil {
		return e.snapshot(), err
	}

	if err := e.runSequential(ctx, deletes); err != nil {
		return e.snapshot(), err
	}

	return e.snapshot(), nil
}

func (e *Executor) snapshot() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.summary
	s.Failures = append([]*pullerr.ActionError(nil), e.summary.Failures...)
	return s
}

func (e *Executor) runConcurrent(ctx context.Context, actions []reconcile.Action) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for _, a := range actions {
		a := a
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return &pullerr.Cancelled{}
			default:
			}
			return e.runOne(gctx, a)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return &pullerr.Cancelled{}
	}
	return nil
}

func (e *Executor) runSequential(ctx context.Context, actions []reconcile.Action) error {
	for _, a := range actions {
		if ctx.Err() != nil {
			return &pullerr.Cancelled{}
		}
		if err := e.runOne(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// runOne dispatches one action. Per-file failures (pull/link/copy/delete/
// mtime) are recorded in the failure list and never returned here — the
// run continues (section 7). A CreateDir failure is different: it means
// the target directory is unwritable, a fatal FilesystemError that aborts
// the run (section 7), so it is the one case propagated as an error.
func (e *Executor) runOne(ctx context.Context, a reconcile.Action) error {
	switch a.Kind {
	case reconcile.CreateDir:
		return e.doCreateDir(a)
	case reconcile.PullFile:
		e.doPullFile(ctx, a)
	case reconcile.LinkOrCopy:
		e.doLinkOrCopy(a)
	case reconcile.Delete:
		e.doDelete(a)
	}
	return nil
}

func (e *Executor) localPath(relPath string) string {
	return filepath.Join(e.cfg.LocalRoot, filepath.FromSlash(relPath))
}

func (e *Executor) referencePath(relPath string) string {
	return filepath.Join(e.cfg.ReferenceRoot, filepath.FromSlash(relPath))
}

// ensureParentDir lazily creates the parent directory of path — the
// alternative ordering strategy section 4.6 permits instead of strict
// depth-grouped scheduling.
func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func (e *Executor) doCreateDir(a reconcile.Action) error {
	dest := e.localPath(a.Path)
	if e.cfg.DryRun {
		e.cfg.Log.WithField("path", a.Path).Debug("dry-run: would create dir")
		return nil
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return &pullerr.FilesystemError{Path: a.Path, Err: fmt.Errorf("create dir: %w", err)}
	}
	return nil
}

func (e *Executor) doPullFile(ctx context.Context, a reconcile.Action) {
	dest := e.localPath(a.Path)
	if e.cfg.DryRun {
		e.cfg.Log.WithField("path", a.Path).Debug("dry-run: would pull")
		e.bump(func(s *Summary) { s.FilesPulled++; s.BytesTransferred += a.ExpectedSize })
		return
	}

	if err := ensureParentDir(dest); err != nil {
		e.recordFailure(pullerr.PullFailed, a, 0, err)
		return
	}

	remote := joinRemote(e.cfg.RemoteRoot, a.RemotePath)

	attempts := 0
	err := withRetry(ctx, func() error {
		attempts++
		staging := stagingPath(dest)
		defer os.Remove(staging)

		if pullErr := e.cfg.Adb.Pull(ctx, adbshell.DefaultPullTimeout, remote, staging); pullErr != nil {
			return pullErr
		}
		if renameErr := os.Rename(staging, dest); renameErr != nil {
			return renameErr
		}
		if mtimeErr := setMtime(dest, a.ExpectedMtime); mtimeErr != nil {
			return &pullerr.ActionError{Kind: pullerr.MtimeFailed, LocalPath: a.Path, Err: mtimeErr}
		}
		return nil
	})

	if err != nil {
		e.recordFailure(pullerr.PullFailed, a, attempts, err)
		return
	}

	e.cfg.Emitter.Emit(progress.Event{Action: "pull", Path: a.Path, Bytes: a.ExpectedSize})
	e.bump(func(s *Summary) { s.FilesPulled++; s.BytesTransferred += a.ExpectedSize })
}

func (e *Executor) doLinkOrCopy(a reconcile.Action) {
	dest := e.localPath(a.Path)
	src := e.referencePath(a.SourcePath)

	if e.cfg.DryRun {
		e.cfg.Log.WithField("path", a.Path).Debug("dry-run: would link or copy")
		e.bump(func(s *Summary) { s.FilesLinked++ })
		return
	}

	if err := ensureParentDir(dest); err != nil {
		e.recordFailure(pullerr.LinkFailed, a, 0, err)
		return
	}

	if e.hardlinkAvailable.Load() {
		if err := os.Link(src, dest); err == nil {
			e.cfg.Emitter.Emit(progress.Event{Action: "link", Path: a.Path})
			e.bump(func(s *Summary) { s.FilesLinked++ })
			return
		} else if !isLinkFallbackError(err) {
			e.recordFailure(pullerr.LinkFailed, a, 1, err)
			return
		}
		// Once any LinkOrCopy falls back, hard-linking is marked
		// unavailable for the remainder of the run (section 4.6) — a
		// single-writer atomic boolean, read by every worker.
		e.hardlinkAvailable.Store(false)
	}

	if err := copyFile(src, dest); err != nil {
		e.recordFailure(pullerr.CopyFailed, a, 1, err)
		return
	}
	if err := setMtime(dest, a.ExpectedMtime); err != nil {
		e.recordFailure(pullerr.MtimeFailed, a, 1, err)
		return
	}

	e.cfg.Emitter.Emit(progress.Event{Action: "copy", Path: a.Path, Bytes: a.ExpectedSize})
	e.bump(func(s *Summary) { s.FilesCopied++; s.BytesTransferred += a.ExpectedSize })
}

// isLinkFallbackError reports whether err from os.Link should trigger the
// copy fallback. Section 4.6 names EXDEV/ENOSYS/EPERM/EACCES explicitly
// (cross-device link, not implemented, or permission denied); any other
// Link failure falls back to copy too, since a working copy is always
// preferable to aborting the whole run over one unreadable errno.
func isLinkFallbackError(err error) bool {
	return true
}

func (e *Executor) doDelete(a reconcile.Action) {
	dest := e.localPath(a.Path)
	if e.cfg.DryRun {
		e.cfg.Log.WithField("path", a.Path).Debug("dry-run: would delete")
		e.bump(func(s *Summary) { s.FilesDeleted++ })
		return
	}

	info, err := os.Lstat(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		e.recordFailure(pullerr.DeleteFailed, a, 1, err)
		return
	}

	if info.IsDir() {
		// Directories must already be empty modulo excluded files
		// (reconciler ordering guarantees this); os.Remove (not
		// RemoveAll) enforces that invariant rather than silently
		// deleting excluded survivors.
		if err := os.Remove(dest); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				e.recordFailure(pullerr.DeleteFailed, a, 1, err)
			}
			return
		}
	} else if err := os.Remove(dest); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.recordFailure(pullerr.DeleteFailed, a, 1, err)
			return
		}
	}

	e.cfg.Emitter.Emit(progress.Event{Action: "delete", Path: a.Path})
	e.bump(func(s *Summary) { s.FilesDeleted++ })
}

func (e *Executor) recordFailure(kind pullerr.ActionKind, a reconcile.Action, attempts int, err error) {
	fe := &pullerr.ActionError{
		Kind:       kind,
		RemotePath: a.RemotePath,
		LocalPath:  a.Path,
		Attempts:   attempts,
		Err:        err,
	}
	e.cfg.Log.WithError(err).WithField("path", a.Path).Warn(string(kind))
	e.cfg.Emitter.Emit(progress.Event{Action: "failure", Path: a.Path, Err: fe})
	e.mu.Lock()
	e.summary.Failures = append(e.summary.Failures, fe)
	e.mu.Unlock()
}

func (e *Executor) bump(f func(*Summary)) {
	e.mu.Lock()
	f(&e.summary)
	e.mu.Unlock()
}

// withRetry runs op up to maxRetries additional times (250ms/1s/4s
// exponential backoff) after the first attempt, per section 4.6.
func withRetry(ctx context.Context, op func() error) error {
	b := &backoff.Backoff{Min: backoffMin, Max: backoffMax, Factor: backoffFact, Jitter: false}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return &pullerr.Cancelled{}
		case <-time.After(b.Duration()):
		}
	}
	return lastErr
}

// stagingPath builds the ".tmp-<uuid>-<basename>" staging name, adjacent
// to dest, per section 4.6/6.
func stagingPath(dest string) string {
	dir := filepath.Dir(dest)
	base := filepath.Base(dest)
	return filepath.Join(dir, fmt.Sprintf(".tmp-%s-%s", uuid.NewString(), base))
}

// StagingPrefix is exported so CleanStaleStaging and tests can recognize
// the convention without re-deriving it.
const StagingPrefix = ".tmp-"

func setMtime(path string, mtimeSeconds int64) error {
	t := time.Unix(mtimeSeconds, 0)
	return os.Chtimes(path, t, t)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := copyWithStallDetection(context.Background(), in, out); err != nil {
		return err
	}
	return out.Sync()
}

func joinRemote(root, relPath string) string {
	if relPath == "" {
		return root
	}
	if root == "" {
		return relPath
	}
	trimmed := root
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == '/' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return trimmed + "/" + relPath
}

// CleanStaleStaging removes every file matching the ".tmp-*" staging
// convention under root, before the next scan begins — the crash-recovery
// guarantee of section 6.
func CleanStaleStaging(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(d.Name()) >= len(StagingPrefix) && d.Name()[:len(StagingPrefix)] == StagingPrefix {
			_ = os.Remove(path)
		}
		return nil
	})
}
