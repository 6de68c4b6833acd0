package tree

import (
	"os"
	"path/filepath"

	"github.com/provide-io/flavor/go/venv/internal/fsutil"
)

// Policy is how interpreter aliases are materialized. One policy applies to
// every alias of an environment.
type Policy int

const (
	PolicySymlink Policy = iota
	PolicyCopy
)

func (p Policy) String() string {
	switch p {
	case PolicySymlink:
		return "symlink"
	case PolicyCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// PolicyFor selects the materialization policy for an operating system.
func PolicyFor(goos string) Policy {
	if goos == "windows" {
		return PolicyCopy
	}
	return PolicySymlink
}

// materialize creates dst from src under policy p, replacing any existing file.
func (p Policy) materialize(src, dst string) error {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	if p == PolicyCopy {
		return fsutil.CopyFile(src, dst)
	}
	return os.Symlink(src, dst)
}

// runtimeLibraries lists the DLLs a copied Windows interpreter needs next to it.
func runtimeLibraries(baseDir string) []string {
	var libs []string
	for _, pattern := range []string{"python3.dll", "python3*.dll", "vcruntime140*.dll"} {
		matches, _ := filepath.Glob(filepath.Join(baseDir, pattern))
		for _, m := range matches {
			if !contains(libs, m) {
				libs = append(libs, m)
			}
		}
	}
	return libs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
