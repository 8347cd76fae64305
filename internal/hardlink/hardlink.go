// Package hardlink implements spec component C7: a one-shot probe that
// detects whether the local filesystem supports hard links between a
// reference snapshot directory and the new target directory.
package hardlink

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Support is the result of Probe.
type Support int

const (
	Unsupported Support = iota
	Supported
)

// Probe creates a zero-byte file in referenceRoot, attempts to hard-link
// it into localRoot, inspects the resulting link count, then removes both
// sides (section 4.7). The probe file name is uuid-suffixed, grounded on
// the teacher's use of github.com/google/uuid (pulled in transitively via
// wails) for collision-free temp names.
func Probe(referenceRoot, localRoot string) (Support, error) {
	if referenceRoot == "" || localRoot == "" {
		return Unsupported, nil
	}

	name := ".adbsnap-probe-" + uuid.NewString()
	refPath := filepath.Join(referenceRoot, name)
	localPath := filepath.Join(localRoot, name)

	f, err := os.Create(refPath)
	if err != nil {
		return Unsupported, nil
	}
	f.Close()
	defer os.Remove(refPath)

	if err := os.Link(refPath, localPath); err != nil {
		return Unsupported, nil
	}
	defer os.Remove(localPath)

	info, err := os.Stat(localPath)
	if err != nil {
		return Unsupported, nil
	}

	if linkCount(info) >= 2 {
		return Supported, nil
	}
	return Unsupported, nil
}
