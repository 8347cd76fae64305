// Package model holds the data model shared by the scanners, the
// reconciler and the executor, per spec section 3.
package model

import "strings"

// Kind is the type of a FileRecord.
type Kind string

const (
	KindFile    Kind = "file"
	KindDir     Kind = "dir"
	KindSymlink Kind = "symlink"
	KindOther   Kind = "other"
)

// FileRecord describes one entry of a scanned tree. Path is POSIX-style,
// relative to the scan root, never leading with "/" and never containing
// "." or ".." segments after normalization.
type FileRecord struct {
	Path  string
	Kind  Kind
	Size  int64
	Mtime int64 // seconds since epoch
}

// Inventory maps relative path to FileRecord. Insertion order is not
// meaningful; keys are unique.
type Inventory map[string]FileRecord

// NormalizePath converts a path to the POSIX-relative form FileRecord.Path
// requires: forward slashes, no leading slash, "." and ".." segments
// collapsed/rejected.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	if p == "." {
		return ""
	}
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			// A ".." removes the preceding segment; a leading ".." has
			// nothing to remove and is dropped, so the result never
			// climbs above the scan root.
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	return strings.Join(out, "/")
}

// MtimeWithinTolerance reports whether two mtimes are close enough to be
// considered identical, per spec section 4.5. FAT/exFAT filesystems round
// to a coarser granularity than ext4/APFS/NTFS, so callers pass a larger
// tolerance for those targets.
func MtimeWithinTolerance(a, b int64, toleranceSeconds int64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= toleranceSeconds
}
