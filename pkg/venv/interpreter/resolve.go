package interpreter

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

// DefaultSelector returns the interpreter used when none is requested.
func DefaultSelector(goos string) string {
	if goos == "windows" {
		return "python"
	}
	return "python3"
}

// versionSelector matches "3", "3.11", "py3.11", "python3.11" and "cpython3.11".
var versionSelector = regexp.MustCompile(`^(?i:c?python|py)?(\d+(?:\.\d+)?)$`)

// candidateNames maps a non-path selector to executable names searched on PATH.
func candidateNames(selector string) []string {
	m := versionSelector.FindStringSubmatch(selector)
	if m == nil {
		return []string{selector}
	}
	return []string{"python" + m[1]}
}

func isPathSelector(selector string) bool {
	if strings.ContainsAny(selector, `/\`) {
		return true
	}
	info, err := os.Stat(selector)
	return err == nil && !info.IsDir()
}

// locate turns a selector into an absolute executable path without resolving
// symlinks, so an environment's own bin/python is still recognisable.
func locate(selector string) (string, error) {
	if isPathSelector(selector) {
		abs, err := filepath.Abs(selector)
		if err != nil {
			return "", venverrors.Wrap(venverrors.ErrInterpreterNotFound, err, "invalid path %s", selector)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", venverrors.Wrap(venverrors.ErrInterpreterNotFound, err, "no interpreter at %s", abs)
		}
		if info.IsDir() {
			return "", venverrors.Wrap(venverrors.ErrInterpreterNotFound, nil, "%s is a directory", abs)
		}
		return abs, nil
	}

	for _, name := range candidateNames(selector) {
		found, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		abs, err := filepath.Abs(found)
		if err != nil {
			continue
		}
		return abs, nil
	}
	return "", venverrors.Wrap(venverrors.ErrInterpreterNotFound, nil, "no interpreter matches %q on PATH", selector)
}

// Resolve turns selector into the absolute path of an executable. Symlinks
// are kept. An empty selector selects the prober's default selector.
func (p *Prober) Resolve(selector string) (string, error) {
	if selector == "" {
		selector = p.defaultSelector
	}
	return locate(selector)
}

func resolveLinks(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", venverrors.Wrap(venverrors.ErrInterpreterNotFound, err, "cannot resolve %s", path)
	}
	return real, nil
}
