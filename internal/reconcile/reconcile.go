// Package reconcile implements spec component C5: diffing a remote
// inventory against a local inventory (and an optional reference
// snapshot inventory) into an ordered plan of actions.
package reconcile

import (
	"sort"
	"strings"

	"github.com/adbsnap/adbsnap/internal/model"
)

// ActionKind is the tag of the Action sum type (spec section 3).
type ActionKind string

const (
	CreateDir  ActionKind = "CreateDir"
	PullFile   ActionKind = "PullFile"
	LinkOrCopy ActionKind = "LinkOrCopy"
	Delete     ActionKind = "Delete"
	SetMtime   ActionKind = "SetMtime"
)

// Action is one step of the plan. Not every field is meaningful for every
// Kind: CreateDir and Delete only use Path; PullFile uses RemotePath/Path;
// LinkOrCopy uses SourcePath (inside the reference snapshot)/Path.
// SetMtime is never emitted directly by Plan — it is performed by the
// executor as the last step of PullFile/LinkOrCopy (section 4.6) — but the
// kind is part of the sum type so the executor can report it in logs.
type Action struct {
	Kind         ActionKind
	Path         string // local path, relative to local_root
	RemotePath   string // remote path, relative to remote_root (PullFile)
	SourcePath   string // path inside reference snapshot, relative (LinkOrCopy)
	ExpectedSize int64
	ExpectedMtime int64
}

// Tolerance controls how close two mtimes must be to be considered
// identical (section 4.5). FAT/exFAT targets should use ToleranceFAT.
type Tolerance int64

const (
	ToleranceDefault Tolerance = 1
	ToleranceFAT     Tolerance = 2
)

// Warning is emitted for remote entries the reconciler intentionally
// skips (symlinks, "other" kinds — section 4.5 rule 3 — and remote files
// whose local counterpart is a symlink or special file).
type Warning struct {
	Path    string
	Message string
}

// Options configures one Plan call.
type Options struct {
	DeleteExtraneous bool
	Tolerance        Tolerance
	Excludes         ExcludeMatcher
	// PriorityPaths, if set, orders the emitted action list so paths
	// under these top-level directories are scheduled first — the
	// teacher's PriorityPaths convention (DCIM, Camera, ... ahead of
	// everything else), generalized into a scheduling hint rather than a
	// reconciliation rule: it changes action *order*, never which
	// actions are emitted.
	PriorityPaths []string
}

// ExcludeMatcher is the subset of exclude.Set's behavior Plan depends on,
// so this package does not import exclude directly (keeping the
// reconciler's dependency surface to the data model).
type ExcludeMatcher interface {
	Matches(relPath string, isDirectory bool) bool
}

// Result is the output of Plan: the ordered action list plus the warnings
// collected along the way.
type Result struct {
	Actions  []Action
	Warnings []Warning
}

// Plan diffs remote against local (and, in multi-version mode, against
// reference) and produces the ordered action list (spec section 4.5).
func Plan(remote, local model.Inventory, reference model.Inventory, opts Options) Result {
	var result Result

	paths := sortedKeys(remote)

	for _, p := range paths {
		r := remote[p]

		if opts.Excludes != nil && opts.Excludes.Matches(p, r.Kind == model.KindDir) {
			// Excluded: treated as if the remote did not list it; local
			// presence under this path is ignored by reconciliation
			// (section 3 invariants).
			continue
		}

		switch r.Kind {
		case model.KindDir:
			if _, ok := local[p]; !ok {
				result.Actions = append(result.Actions, Action{Kind: CreateDir, Path: p})
			}

		case model.KindFile:
			l, hasLocal := local[p]
			if hasLocal && l.Kind == model.KindFile && l.Size == r.Size && model.MtimeWithinTolerance(l.Mtime, r.Mtime, int64(opts.Tolerance)) {
				// Identical: nothing to do.
				continue
			}
			if hasLocal && l.Kind == model.KindOther {
				// A local symlink or special file is never overwritten.
				result.Warnings = append(result.Warnings, Warning{
					Path:    p,
					Message: "local symlink or special file is never overwritten",
				})
				continue
			}

			if reference != nil {
				if ref, ok := reference[p]; ok && ref.Kind == model.KindFile && ref.Size == r.Size && model.MtimeWithinTolerance(ref.Mtime, r.Mtime, int64(opts.Tolerance)) {
					result.Actions = append(result.Actions, Action{
						Kind:          LinkOrCopy,
						Path:          p,
						SourcePath:    p,
						ExpectedSize:  r.Size,
						ExpectedMtime: r.Mtime,
					})
					continue
				}
			}

			result.Actions = append(result.Actions, Action{
				Kind:          PullFile,
				Path:          p,
				RemotePath:    p,
				ExpectedSize:  r.Size,
				ExpectedMtime: r.Mtime,
			})

		case model.KindSymlink, model.KindOther:
			result.Warnings = append(result.Warnings, Warning{
				Path:    p,
				Message: "remote symlink or special file is never pulled",
			})
		}
	}

	if opts.DeleteExtraneous {
		result.Actions = append(result.Actions, deletions(remote, local, opts.Excludes)...)
	}

	sortByPriority(result.Actions, opts.PriorityPaths)

	return result
}

// deletions emits Delete for every local path not present in the remote
// inventory and not excluded, in reverse-depth order so directories are
// empty before removal (section 4.5).
func deletions(remote, local model.Inventory, excludes ExcludeMatcher) []Action {
	var stale []string
	for p, l := range local {
		if _, ok := remote[p]; ok {
			continue
		}
		if excludes != nil && excludes.Matches(p, l.Kind == model.KindDir) {
			continue
		}
		stale = append(stale, p)
	}

	sort.Slice(stale, func(i, j int) bool {
		di, dj := depth(stale[i]), depth(stale[j])
		if di != dj {
			return di > dj // deeper paths first
		}
		return stale[i] > stale[j]
	})

	actions := make([]Action, 0, len(stale))
	for _, p := range stale {
		actions = append(actions, Action{Kind: Delete, Path: p})
	}
	return actions
}

func depth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

func sortedKeys(inv model.Inventory) []string {
	keys := make([]string, 0, len(inv))
	for k := range inv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortByPriority stably reorders non-Delete actions so ones rooted under a
// PriorityPaths entry come first, in PriorityPaths order; ties keep the
// original (lexicographic) order. Delete actions keep their reverse-depth
// order and are never reshuffled ahead of creates/pulls.
func sortByPriority(actions []Action, priority []string) {
	if len(priority) == 0 {
		return
	}
	rank := func(p string) int {
		for i, pp := range priority {
			if p == pp || strings.HasPrefix(p, pp+"/") {
				return i
			}
		}
		return len(priority)
	}

	sort.SliceStable(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if (a.Kind == Delete) != (b.Kind == Delete) {
			return b.Kind == Delete // non-deletes before deletes
		}
		if a.Kind == Delete {
			return false // preserve deletions' relative order
		}
		return rank(a.Path) < rank(b.Path)
	})
}
