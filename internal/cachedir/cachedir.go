// Package cachedir locates and manages the per-user cache used for interpreter
// facts, downloaded wheels and target locks.
package cachedir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Subdirectories of the cache root.
const (
	InterpreterInfoDir = "interpreter-info"
	WheelsDir          = "wheels"
	LocksDir           = "locks"
)

// Dir is a cache root.
type Dir struct {
	root string
}

// New returns a cache rooted at root. An empty root selects Root().
func New(root string) Dir {
	if root == "" {
		root = Root()
	}
	return Dir{root: root}
}

// Root returns the default cache directory
func Root() string {
	// Check environment variable first
	if cacheDir := os.Getenv("FLAVOR_VENV_CACHE_DIR"); cacheDir != "" {
		return cacheDir
	}

	// Use platform-specific defaults
	switch runtime.GOOS {
	case "darwin":
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, "Library", "Caches", "flavor-venv")
		}
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "flavor-venv", "cache")
		}
	default:
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "flavor-venv")
		}
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, ".cache", "flavor-venv")
		}
	}

	// Fallback to temp directory
	return filepath.Join(os.TempDir(), "flavor-venv", "cache")
}

// Path returns the cache root.
func (d Dir) Path() string {
	return d.root
}

// Join returns a path below the cache root without creating it.
func (d Dir) Join(elem ...string) string {
	return filepath.Join(append([]string{d.root}, elem...)...)
}

// Ensure creates the named subdirectory and returns its path.
func (d Dir) Ensure(sub string) (string, error) {
	path := d.Join(sub)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", sub, err)
	}
	return path, nil
}

// Key derives a stable file name component from s.
func Key(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
