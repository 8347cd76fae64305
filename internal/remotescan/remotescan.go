// Package remotescan implements spec component C2: it enumerates a remote
// subtree via a single "adb shell find" invocation and parses the output
// into an Inventory. Grounded on the teacher's adb_adapter.go ADBScanner,
// generalized from "find -type f" (files only, priority-path driven) into
// the full typed listing spec section 4.2 requires (dirs, symlinks,
// "other", with size/mtime) via "find -printf".
package remotescan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adbsnap/adbsnap/internal/adbshell"
	"github.com/adbsnap/adbsnap/internal/model"
	"github.com/adbsnap/adbsnap/internal/pullerr"
	"github.com/sirupsen/logrus"
)

// printfFormat encodes per-entry fields as type\tsize\tmtime\tpath, NUL
// terminated, per spec section 6 "Remote find invocation".
const printfFormat = `%y\t%s\t%T@\t%p\0`

// ExcludeMatcher is the subset of exclude.Set's behavior the scanner
// depends on; kept local (rather than importing package exclude) so this
// package's dependency surface stays at the data model, matching the same
// pattern localscan.ExcludeMatcher and reconcile.ExcludeMatcher use.
type ExcludeMatcher interface {
	Matches(relPath string, isDirectory bool) bool
}

// Scanner scans a remote directory through an adb façade.
type Scanner struct {
	Adb      *adbshell.Facade
	Timeout  time.Duration
	Log      logrus.FieldLogger
	Excludes ExcludeMatcher
}

// New returns a Scanner bound to adb. excludes may be nil, meaning nothing
// is excluded.
func New(adb *adbshell.Facade, log logrus.FieldLogger, excludes ExcludeMatcher) *Scanner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	timeout := adbshell.DefaultShellTimeout
	return &Scanner{Adb: adb, Timeout: timeout, Log: log, Excludes: excludes}
}

// excludedDirs tracks directory paths already confirmed excluded, so
// descendants encountered later in the stream can be pruned without
// re-evaluating the matcher on every individual path (section 4.4,
// "directory matches short-circuit descent in both scanners"). This relies
// on find's pre-order traversal: GNU find and busybox find both emit a
// directory before any of its contents, so a directory's exclusion is known
// by the time its children are seen.
type excludedDirs struct {
	prefixes []string
}

func (e *excludedDirs) add(relPath string) {
	e.prefixes = append(e.prefixes, relPath+"/")
}

func (e *excludedDirs) covers(relPath string) bool {
	for _, p := range e.prefixes {
		if strings.HasPrefix(relPath, p) {
			return true
		}
	}
	return false
}

// Scan enumerates remoteRoot and returns an Inventory keyed by path
// relative to remoteRoot. The root itself is emitted as the empty path by
// find and is skipped. Entries under an excluded directory are dropped as
// soon as they're parsed, independent of whether the matcher itself would
// also match each descendant path individually; a streamed "adb shell
// find" can't be stopped mid-subtree the way a local os.WalkDir can, so
// pruning happens at parse time instead of at traversal time.
func (s *Scanner) Scan(ctx context.Context, remoteRoot string) (model.Inventory, error) {
	inv := make(model.Inventory)
	excluded := &excludedDirs{}

	quoted := adbshell.QuotePOSIX(remoteRoot)
	args := []string{"shell", "find", quoted, "-printf", adbshell.QuotePOSIX(printfFormat)}

	var parseErr error
	err := s.Adb.RunStreamingSplit(ctx, s.Timeout, adbshell.ScanNUL, func(entry string) error {
		if entry == "" {
			return nil
		}
		rec, relPath, perr := parseEntry(entry, remoteRoot)
		if perr != nil {
			parseErr = &pullerr.ScannerParseError{Line: entry, Err: perr}
			return parseErr
		}
		if relPath == "" {
			// The root itself.
			return nil
		}
		if excluded.covers(relPath) {
			return nil
		}
		if s.Excludes != nil && s.Excludes.Matches(relPath, rec.Kind == model.KindDir) {
			if rec.Kind == model.KindDir {
				excluded.add(relPath)
			}
			return nil
		}
		inv[relPath] = rec
		return nil
	}, args...)

	if parseErr != nil {
		return nil, parseErr
	}
	if err != nil {
		if isUnsupportedFindError(err) {
			s.Log.WithError(err).Warn("remote find -printf unsupported, falling back to stat-based scan")
			return s.scanFallback(ctx, remoteRoot)
		}
		return nil, err
	}

	return inv, nil
}

// parseEntry parses one "type\tsize\tmtime\tpath" record and computes the
// path relative to remoteRoot.
func parseEntry(entry, remoteRoot string) (model.FileRecord, string, error) {
	fields := strings.SplitN(entry, "\t", 4)
	if len(fields) != 4 {
		return model.FileRecord{}, "", fmt.Errorf("expected 4 tab-separated fields, got %d", len(fields))
	}

	kind, err := parseKind(fields[0])
	if err != nil {
		return model.FileRecord{}, "", err
	}

	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return model.FileRecord{}, "", fmt.Errorf("bad size %q: %w", fields[1], err)
	}

	// %T@ is seconds-since-epoch with a fractional part; truncate to
	// whole seconds for comparison (section 6).
	mtimeStr := fields[2]
	if dot := strings.IndexByte(mtimeStr, '.'); dot >= 0 {
		mtimeStr = mtimeStr[:dot]
	}
	mtime, err := strconv.ParseInt(mtimeStr, 10, 64)
	if err != nil {
		return model.FileRecord{}, "", fmt.Errorf("bad mtime %q: %w", fields[2], err)
	}

	path := fields[3]
	relPath := model.NormalizePath(strings.TrimPrefix(strings.TrimPrefix(path, remoteRoot), "/"))

	if kind == model.KindDir {
		size = 0
	}

	return model.FileRecord{Path: relPath, Kind: kind, Size: size, Mtime: mtime}, relPath, nil
}

func parseKind(y string) (model.Kind, error) {
	switch y {
	case "f":
		return model.KindFile, nil
	case "d":
		return model.KindDir, nil
	case "l":
		return model.KindSymlink, nil
	default:
		return model.KindOther, nil
	}
}

func isUnsupportedFindError(err error) bool {
	msg := err.Error()
	var te *pullerr.TransportError
	if errors.As(err, &te) && te.Err != nil {
		// Only the device's stderr is inspected: the transport message
		// repeats the find argv, which always contains "-printf".
		msg = te.Err.Error()
	}
	return strings.Contains(msg, "unrecognized") || strings.Contains(msg, "-printf") || strings.Contains(msg, "unknown option") || strings.Contains(msg, "bad option")
}

// scanFallback implements the documented two-phase "find + stat" strategy
// for devices whose find lacks -printf (section 6).
func (s *Scanner) scanFallback(ctx context.Context, remoteRoot string) (model.Inventory, error) {
	inv := make(model.Inventory)
	excluded := &excludedDirs{}
	quoted := adbshell.QuotePOSIX(remoteRoot)

	var paths []string
	err := s.Adb.RunStreaming(ctx, s.Timeout, func(line string) error {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
		return nil
	}, "shell", "find", quoted)

	if err != nil {
		return nil, &pullerr.ScannerUnsupportedError{Reason: fmt.Sprintf("stat fallback find failed: %v", err)}
	}

	for _, p := range paths {
		relPath := model.NormalizePath(strings.TrimPrefix(strings.TrimPrefix(p, remoteRoot), "/"))
		if relPath == "" {
			continue
		}
		if excluded.covers(relPath) {
			continue
		}
		statQuoted := adbshell.QuotePOSIX(p)
		rec, statErr := s.statOne(ctx, statQuoted, relPath)
		if statErr != nil {
			return nil, &pullerr.ScannerUnsupportedError{Reason: fmt.Sprintf("stat fallback failed for %s: %v", p, statErr)}
		}
		// Stat (not the bare path) is what reveals directory-ness, so the
		// matcher can only be consulted correctly after this point; find's
		// pre-order traversal still guarantees a directory's own entry is
		// stated and recorded as excluded before any descendant is stated.
		if s.Excludes != nil && s.Excludes.Matches(relPath, rec.Kind == model.KindDir) {
			if rec.Kind == model.KindDir {
				excluded.add(relPath)
			}
			continue
		}
		inv[relPath] = rec
	}
	return inv, nil
}

func (s *Scanner) statOne(ctx context.Context, quotedPath, relPath string) (model.FileRecord, error) {
	args := []string{"shell", "stat", "-c", "%F\t%s\t%Y", quotedPath}
	var line string
	err := s.Adb.RunStreaming(ctx, s.Timeout, func(l string) error {
		if strings.TrimSpace(l) != "" {
			line = l
		}
		return nil
	}, args...)
	if err != nil {
		return model.FileRecord{}, err
	}

	r := bufio.NewReader(strings.NewReader(line))
	text, _ := r.ReadString(0)
	fields := strings.Split(strings.TrimSpace(text), "\t")
	if len(fields) != 3 {
		return model.FileRecord{}, fmt.Errorf("unexpected stat output %q", line)
	}

	var kind model.Kind
	switch {
	case strings.Contains(fields[0], "directory"):
		kind = model.KindDir
	case strings.Contains(fields[0], "symbolic link"):
		kind = model.KindSymlink
	case strings.Contains(fields[0], "regular"):
		kind = model.KindFile
	default:
		kind = model.KindOther
	}

	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return model.FileRecord{}, err
	}
	mtime, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return model.FileRecord{}, err
	}
	if kind == model.KindDir {
		size = 0
	}
	return model.FileRecord{Path: relPath, Kind: kind, Size: size, Mtime: mtime}, nil
}
