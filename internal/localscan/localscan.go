// Package localscan implements spec component C3: it walks a local
// directory tree depth-first, recording size and mtime. Grounded on the
// directory-walking shape of the teacher's fs_adapter.go FSScanner, but
// simplified: the pull engine's local scan is a synchronous inventory
// build (no job channel, no per-directory timeout) since it only ever
// walks the host filesystem, never a flaky MTP mount.
package localscan

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adbsnap/adbsnap/internal/model"
	"github.com/sirupsen/logrus"
)

// ExcludeMatcher is the subset of exclude.Set's behavior the scanner
// depends on; kept local (rather than importing package exclude) so this
// package's dependency surface stays at the data model, matching the same
// pattern reconcile.ExcludeMatcher uses.
type ExcludeMatcher interface {
	Matches(relPath string, isDirectory bool) bool
}

// Scanner walks a local directory tree.
type Scanner struct {
	Log      logrus.FieldLogger
	Excludes ExcludeMatcher
}

// New returns a Scanner. If log is nil, logrus's standard logger is used.
// excludes may be nil, meaning nothing is excluded.
func New(log logrus.FieldLogger, excludes ExcludeMatcher) *Scanner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scanner{Log: log, Excludes: excludes}
}

// Scan walks root and returns an Inventory keyed by path relative to root.
// Errors reading a subtree are logged and do not abort the walk (section
// 4.3); a missing root simply yields an empty inventory. An excluded
// directory short-circuits descent (section 4.4): its subtree is never
// read, so excluded files never enter the inventory regardless of whether
// the matcher itself would also match each descendant path individually.
func (s *Scanner) Scan(root string) (model.Inventory, error) {
	inv := make(model.Inventory)

	if _, err := os.Lstat(root); err != nil {
		if os.IsNotExist(err) {
			return inv, nil
		}
		return nil, err
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.Log.WithError(err).WithField("path", path).Warn("error reading local subtree entry")
			return nil
		}
		if path == root {
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			s.Log.WithError(relErr).WithField("path", path).Warn("failed to compute relative path")
			return nil
		}
		relPath = model.NormalizePath(relPath)

		if s.Excludes != nil && s.Excludes.Matches(relPath, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			s.Log.WithError(infoErr).WithField("path", path).Warn("error statting local entry")
			return nil
		}

		rec := recordFor(relPath, d, info)
		inv[relPath] = rec
		return nil
	})

	return inv, walkErr
}

// recordFor classifies a directory entry. Symlinks are never followed;
// they are recorded but treated as "other" for reconciliation so they are
// never overwritten and never counted as equivalent to a remote regular
// file (section 4.3).
func recordFor(relPath string, d fs.DirEntry, info fs.FileInfo) model.FileRecord {
	switch {
	case d.Type()&fs.ModeSymlink != 0:
		return model.FileRecord{Path: relPath, Kind: model.KindOther, Size: 0, Mtime: info.ModTime().Unix()}
	case d.IsDir():
		return model.FileRecord{Path: relPath, Kind: model.KindDir, Size: 0, Mtime: info.ModTime().Unix()}
	case info.Mode().IsRegular():
		return model.FileRecord{Path: relPath, Kind: model.KindFile, Size: info.Size(), Mtime: info.ModTime().Unix()}
	default:
		return model.FileRecord{Path: relPath, Kind: model.KindOther, Size: 0, Mtime: info.ModTime().Unix()}
	}
}
