package tree

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
	"github.com/provide-io/flavor/go/venv/pkg/venv/interpreter"
	"github.com/provide-io/flavor/go/venv/pkg/venv/layout"
)

func fakeBase(t *testing.T, name string) *interpreter.Interpreter {
	t.Helper()
	dir := t.TempDir()
	exe := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(exe, []byte("interpreter"), 0o755))
	return &interpreter.Interpreter{
		Executable:     exe,
		Version:        interpreter.Version{Major: 3, Minor: 11, Micro: 4, ReleaseLevel: "final"},
		Implementation: interpreter.ImplementationCPython,
		Pointer64:      true,
	}
}

func plan(t *testing.T, interp *interpreter.Interpreter, goos string) *layout.Paths {
	t.Helper()
	paths, err := layout.Plan(interp, goos, filepath.Join(t.TempDir(), "venv"))
	require.NoError(t, err)
	return paths
}

func TestPrepare(t *testing.T) {
	logger := hclog.NewNullLogger()
	interp := fakeBase(t, "python3.11")

	t.Run("missing target is created", func(t *testing.T) {
		paths := plan(t, interp, runtime.GOOS)
		require.NoError(t, Prepare(paths, false, logger))
		assert.DirExists(t, paths.Root)
	})

	t.Run("file target is refused", func(t *testing.T) {
		paths := plan(t, interp, runtime.GOOS)
		require.NoError(t, os.WriteFile(paths.Root, []byte("x"), 0o644))
		assert.ErrorIs(t, Prepare(paths, true, logger), venverrors.ErrFilesystem)
	})

	t.Run("non-empty target without clear is untouched", func(t *testing.T) {
		paths := plan(t, interp, runtime.GOOS)
		keep := filepath.Join(paths.Root, "keep.txt")
		require.NoError(t, os.MkdirAll(paths.Root, 0o755))
		require.NoError(t, os.WriteFile(keep, []byte("data"), 0o644))

		assert.ErrorIs(t, Prepare(paths, false, logger), venverrors.ErrFilesystem)
		assert.FileExists(t, keep)
	})

	t.Run("clear empties the target and keeps the root", func(t *testing.T) {
		paths := plan(t, interp, runtime.GOOS)
		require.NoError(t, os.MkdirAll(filepath.Join(paths.Root, "lib", "deep"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(paths.Root, "pyvenv.cfg"), []byte("x"), 0o644))

		require.NoError(t, Prepare(paths, true, logger))
		entries, err := os.ReadDir(paths.Root)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestRefuseClear(t *testing.T) {
	root := string(filepath.Separator)
	if runtime.GOOS == "windows" {
		root = `C:\`
	}
	assert.ErrorIs(t, refuseClear(root), venverrors.ErrFilesystem)

	home, err := os.UserHomeDir()
	if err == nil {
		assert.ErrorIs(t, refuseClear(home), venverrors.ErrFilesystem)
	}
	assert.NoError(t, refuseClear(t.TempDir()))
}

func TestBuild_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	interp := fakeBase(t, "python3.11")
	paths := plan(t, interp, "linux")
	require.NoError(t, Prepare(paths, false, hclog.NewNullLogger()))

	report, err := Build(paths, interp, hclog.NewNullLogger())
	require.NoError(t, err)

	assert.Equal(t, PolicySymlink, report.Policy)
	assert.Len(t, report.Aliases, 3)
	for _, alias := range report.Aliases {
		target, err := os.Readlink(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, interp.Executable, target)
	}
	assert.Empty(t, report.Libraries)

	link, err := os.Readlink(paths.Lib64Link)
	require.NoError(t, err)
	assert.Equal(t, "lib", link)

	assert.DirExists(t, paths.Include)
	assert.FileExists(t, filepath.Join(paths.SitePackages, PatchModule))
	pth, err := os.ReadFile(filepath.Join(paths.SitePackages, PatchPth))
	require.NoError(t, err)
	assert.Equal(t, "import _virtualenv", string(pth), "no trailing newline")
	ignore, err := os.ReadFile(filepath.Join(paths.Root, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(ignore), "*\n")
}

func TestBuild_CopyPolicy(t *testing.T) {
	interp := fakeBase(t, "python.exe")
	baseDir := filepath.Dir(interp.Executable)
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "pythonw.exe"), []byte("windowed"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "python3.dll"), []byte("dll"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "python311.dll"), []byte("dll"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "vcruntime140.dll"), []byte("dll"), 0o644))

	paths := plan(t, interp, "windows")
	require.NoError(t, Prepare(paths, false, hclog.NewNullLogger()))

	report, err := Build(paths, interp, hclog.NewNullLogger())
	require.NoError(t, err)

	assert.Equal(t, PolicyCopy, report.Policy)
	require.Len(t, report.Aliases, 4)
	for _, alias := range report.Aliases {
		info, err := os.Lstat(alias)
		require.NoError(t, err)
		assert.True(t, info.Mode().IsRegular(), "%s must be a copy", alias)
	}

	data, err := os.ReadFile(filepath.Join(paths.Bin, "python3.11.exe"))
	require.NoError(t, err)
	assert.Equal(t, "interpreter", string(data))
	data, err = os.ReadFile(filepath.Join(paths.Bin, "pythonw.exe"))
	require.NoError(t, err)
	assert.Equal(t, "windowed", string(data))

	assert.Len(t, report.Libraries, 3)
	assert.Empty(t, paths.Lib64Link)
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, PolicyCopy, PolicyFor("windows"))
	assert.Equal(t, PolicySymlink, PolicyFor("linux"))
	assert.Equal(t, PolicySymlink, PolicyFor("darwin"))
	assert.Equal(t, "copy", PolicyCopy.String())
}
