// Package tree creates the directory skeleton and interpreter aliases of an
// environment.
package tree

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/venv/internal/fsutil"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
	"github.com/provide-io/flavor/go/venv/pkg/venv/interpreter"
	"github.com/provide-io/flavor/go/venv/pkg/venv/layout"
)

// Files written next to the installed packages to patch distutils at startup.
const (
	PatchModule = "_virtualenv.py"
	PatchPth    = "_virtualenv.pth"
)

//go:embed runtime/virtualenv_patch.py
var patchModule []byte

const gitignore = "# created by flavor-venv automatically\n*\n"

// Report describes what Build materialized.
type Report struct {
	Policy    Policy
	Aliases   []string
	Libraries []string
}

// Prepare makes the target directory ready to receive an environment.
// A non-empty target is only reused when clear is set, in which case
// everything inside it is removed but the directory itself is kept.
func Prepare(paths *layout.Paths, clear bool, logger hclog.Logger) error {
	info, err := os.Stat(paths.Root)
	switch {
	case os.IsNotExist(err):
		logger.Debug("📁 Creating target directory", "path", paths.Root)
		if err := os.MkdirAll(paths.Root, 0o755); err != nil {
			return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot create %s", paths.Root)
		}
		return nil
	case err != nil:
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot access %s", paths.Root)
	case !info.IsDir():
		return venverrors.Wrap(venverrors.ErrFilesystem, nil, "%s exists and is not a directory", paths.Root)
	}

	entries, err := os.ReadDir(paths.Root)
	if err != nil {
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot read %s", paths.Root)
	}
	if len(entries) == 0 {
		return nil
	}
	if !clear {
		return venverrors.Wrap(venverrors.ErrFilesystem, nil,
			"%s already exists and is not empty (use --clear to replace it)", paths.Root)
	}
	if err := refuseClear(paths.Root); err != nil {
		return err
	}

	logger.Info("🧹 Clearing target directory", "path", paths.Root, "entries", len(entries))
	for _, entry := range entries {
		path := filepath.Join(paths.Root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot remove %s", path)
		}
	}
	return nil
}

func refuseClear(root string) error {
	if filepath.Dir(root) == root {
		return venverrors.Wrap(venverrors.ErrFilesystem, nil, "refusing to clear filesystem root %s", root)
	}
	if home, err := os.UserHomeDir(); err == nil && sameDir(home, root) {
		return venverrors.Wrap(venverrors.ErrFilesystem, nil, "refusing to clear home directory %s", root)
	}
	return nil
}

func sameDir(a, b string) bool {
	ai, errA := os.Stat(a)
	bi, errB := os.Stat(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return os.SameFile(ai, bi)
}

// Build creates the directories, helper files and interpreter aliases.
// Nothing is rolled back on failure.
func Build(paths *layout.Paths, interp *interpreter.Interpreter, logger hclog.Logger) (*Report, error) {
	for _, dir := range []string{paths.Bin, paths.SitePackages, paths.Include} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot create %s", dir)
		}
	}

	if paths.Lib64Link != "" {
		if err := os.Symlink("lib", paths.Lib64Link); err != nil && !os.IsExist(err) {
			return nil, venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot link %s", paths.Lib64Link)
		}
	}

	files := []struct {
		path string
		data []byte
	}{
		{filepath.Join(paths.Root, ".gitignore"), []byte(gitignore)},
		{filepath.Join(paths.SitePackages, PatchModule), patchModule},
		{filepath.Join(paths.SitePackages, PatchPth), []byte("import _virtualenv")},
	}
	for _, f := range files {
		if err := os.WriteFile(f.path, f.data, 0o644); err != nil {
			return nil, venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot write %s", f.path)
		}
	}

	report, err := materializeAliases(paths, interp, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("🏗️ Environment tree built",
		"root", paths.Root,
		"policy", report.Policy.String(),
		"aliases", len(report.Aliases))
	return report, nil
}

func materializeAliases(paths *layout.Paths, interp *interpreter.Interpreter, logger hclog.Logger) (*Report, error) {
	policy := PolicyFor(paths.GOOS)
	report := &Report{Policy: policy}
	baseDir := filepath.Dir(interp.Executable)

	for _, name := range paths.Executables {
		src := interp.Executable
		if name == "pythonw.exe" {
			if w := filepath.Join(baseDir, "pythonw.exe"); fileExists(w) {
				src = w
			}
		}
		dst := filepath.Join(paths.Bin, name)
		logger.Trace("Materializing alias", "policy", policy.String(), "src", src, "dst", dst)
		if err := policy.materialize(src, dst); err != nil {
			return nil, venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot %s %s to %s", policy, src, dst)
		}
		report.Aliases = append(report.Aliases, dst)
	}

	if policy == PolicyCopy {
		for _, lib := range runtimeLibraries(baseDir) {
			dst := filepath.Join(paths.Bin, filepath.Base(lib))
			if err := fsutil.CopyFile(lib, dst); err != nil {
				return nil, venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot copy %s", lib)
			}
			report.Libraries = append(report.Libraries, dst)
		}
	}
	return report, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (r *Report) String() string {
	return fmt.Sprintf("%d aliases via %s", len(r.Aliases), r.Policy)
}
