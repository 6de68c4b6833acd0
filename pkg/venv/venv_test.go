package venv

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/flavor/go/venv/internal/cachedir"
	"github.com/provide-io/flavor/go/venv/pkg/shellparse"
	"github.com/provide-io/flavor/go/venv/pkg/venv/bootstrap"
	"github.com/provide-io/flavor/go/venv/pkg/venv/bootstrap/wheeltest"
	"github.com/provide-io/flavor/go/venv/pkg/venv/descriptor"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
	"github.com/provide-io/flavor/go/venv/pkg/venv/interpreter"
	"github.com/provide-io/flavor/go/venv/pkg/venv/interpreter/interpretertest"
)

type fixture struct {
	python string
	cache  cachedir.Dir
	engine *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		python: interpretertest.CPython(t, filepath.Join(t.TempDir(), "python"), 3, 11, 4),
		cache:  cachedir.New(t.TempDir()),
	}
	defaults := []Option{
		WithLogger(hclog.New(&hclog.LoggerOptions{Name: "venv-test", Level: hclog.Debug})),
		WithCache(f.cache),
		WithSource(bootstrap.NewTable(bootstrap.OriginEmbedded, wheeltest.Pinned(t))),
	}
	f.engine = NewEngine(append(defaults, opts...)...)
	return f
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	target := filepath.Join(t.TempDir(), "env")

	result, err := f.engine.Create(context.Background(), Request{
		Target:      target,
		Python:      f.python,
		Options:     Options{Prompt: "demo"},
		CommandLine: []string{"flavor-venv", "-p", f.python, target},
	})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("CPython3.11.4.final.0-%d", strconv.IntSize), result.Interpreter.Spec())
	assert.Equal(t, target, result.Paths.Root)
	assert.Len(t, result.Packages, 3)
	for _, pkg := range result.Packages {
		assert.Equal(t, bootstrap.OriginEmbedded, pkg.Origin)
	}

	for _, alias := range result.Paths.Aliases() {
		assert.FileExists(t, alias)
	}
	assert.FileExists(t, filepath.Join(target, ".gitignore"))
	assert.FileExists(t, filepath.Join(result.Paths.SitePackages, "pip", "__init__.py"))
	assert.NotEmpty(t, result.Activators)

	desc, err := descriptor.Read(result.Paths.Descriptor)
	require.NoError(t, err)
	home, _ := desc.Get("home")
	assert.Equal(t, filepath.Dir(result.Interpreter.Executable), home)
	prompt, _ := desc.Get("prompt")
	assert.Equal(t, "demo", prompt)
	system, _ := desc.Get("include-system-site-packages")
	assert.Equal(t, "false", system)
	tool, _ := desc.Get(descriptor.ToolKey)
	assert.Equal(t, Version, tool)
	_, ok := desc.Get("command")
	assert.True(t, ok)

	locks, err := os.ReadDir(f.cache.Join(cachedir.LocksDir))
	require.NoError(t, err)
	assert.Empty(t, locks, "the target lock must be released")
}

// snapshot maps every entry below root to its content, or to its link
// target for symlinks.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if d.Type()&fs.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			out[filepath.ToSlash(rel)] = "-> " + link
			return err
		}
		data, err := os.ReadFile(path)
		out[filepath.ToSlash(rel)] = string(data)
		return err
	})
	require.NoError(t, err)
	return out
}

func TestCreate_Reproducible(t *testing.T) {
	f := newFixture(t, WithStrategy(bootstrap.Pool{Size: 3}))
	target := filepath.Join(t.TempDir(), "env")
	req := Request{
		Target:      target,
		Python:      f.python,
		Options:     Options{Prompt: "demo", Clear: true},
		CommandLine: []string{"flavor-venv", "--prompt", "demo", target},
	}

	_, err := f.engine.Create(context.Background(), req)
	require.NoError(t, err)
	first := snapshot(t, target)

	_, err = f.engine.Create(context.Background(), req)
	require.NoError(t, err)
	second := snapshot(t, target)

	assert.Contains(t, first, "pyvenv.cfg")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("trees differ (-first +second):\n%s", diff)
	}
}

func TestCreate_SeedSelection(t *testing.T) {
	records := map[string]string{
		"pip":        "pip-23.2.1.dist-info/RECORD",
		"setuptools": "setuptools-68.2.0.dist-info/RECORD",
		"wheel":      "wheel-0.41.2.dist-info/RECORD",
	}
	tests := []struct {
		name    string
		opts    Options
		skipped string
	}{
		{"no pip", Options{NoPip: true}, "pip"},
		{"no setuptools", Options{NoSetuptools: true}, "setuptools"},
		{"no wheel", Options{NoWheel: true}, "wheel"},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.engine.Create(context.Background(), Request{
				Target:  filepath.Join(t.TempDir(), "env"),
				Python:  f.python,
				Options: tt.opts,
			})
			require.NoError(t, err)
			assert.Len(t, result.Packages, 2)

			for name, record := range records {
				path := filepath.Join(result.Paths.SitePackages, filepath.FromSlash(record))
				if name == tt.skipped {
					assert.NoFileExists(t, path)
				} else {
					assert.FileExists(t, path)
				}
			}
		})
	}
}

func TestCreate_Bare(t *testing.T) {
	f := newFixture(t, WithSource(bootstrap.NewTable(bootstrap.OriginEmbedded, nil)))
	target := filepath.Join(t.TempDir(), "env")

	result, err := f.engine.Create(context.Background(), Request{
		Target:  target,
		Python:  f.python,
		Options: Options{Bare: true, SystemSitePackages: true},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Packages)

	entries, err := os.ReadDir(result.Paths.SitePackages)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"_virtualenv.py", "_virtualenv.pth"}, names)

	desc, err := descriptor.Read(result.Paths.Descriptor)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"home", "implementation", "version_info", descriptor.ToolKey,
		"include-system-site-packages", "base-prefix", "base-exec-prefix",
		"base-executable", "command",
	}, desc.Keys())
	system, _ := desc.Get("include-system-site-packages")
	assert.Equal(t, "true", system)
	command, _ := desc.Get("command")
	assert.Equal(t, shellparse.Join(os.Args), command)
}

func TestCreate_DefaultPython(t *testing.T) {
	python := interpretertest.CPython(t, filepath.Join(t.TempDir(), "python"), 3, 12, 1)
	f := newFixture(t, WithDefaultPython(python), WithQueryTimeout(time.Second))

	result, err := f.engine.Create(context.Background(), Request{
		Target:  filepath.Join(t.TempDir(), "env"),
		Options: Options{Bare: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "3.12.1.final.0", result.Interpreter.Version.String())
}

func TestCreate_PromptFromCurrentDirectory(t *testing.T) {
	f := newFixture(t)
	wd := filepath.Join(t.TempDir(), "project-x")
	require.NoError(t, os.MkdirAll(wd, 0o755))
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(wd))
	t.Cleanup(func() { _ = os.Chdir(orig) })

	result, err := f.engine.Create(context.Background(), Request{
		Target:  ".venv",
		Python:  f.python,
		Options: Options{Prompt: CurrentDirPrompt, Bare: true},
	})
	require.NoError(t, err)

	desc, err := descriptor.Read(result.Paths.Descriptor)
	require.NoError(t, err)
	prompt, _ := desc.Get("prompt")
	assert.Equal(t, "project-x", prompt)
}

func TestCreate_FromDerivedEnvironment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("aliases are copies on Windows")
	}
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Create(ctx, Request{Target: filepath.Join(t.TempDir(), "first"), Python: f.python, Options: Options{Bare: true}})
	require.NoError(t, err)

	second, err := f.engine.Create(ctx, Request{
		Target:  filepath.Join(t.TempDir(), "second"),
		Python:  first.Paths.Python(),
		Options: Options{Bare: true},
	})
	require.NoError(t, err)

	assert.True(t, second.Interpreter.Derived)
	assert.Equal(t, first.Paths.Root, second.Interpreter.DerivedFrom)
	assert.Equal(t, first.Interpreter.Executable, second.Interpreter.Executable)

	desc, err := descriptor.Read(second.Paths.Descriptor)
	require.NoError(t, err)
	home, _ := desc.Get("home")
	assert.Equal(t, filepath.Dir(first.Interpreter.Executable), home, "home must point at the base installation")
}

func TestCreate_NonEmptyTarget(t *testing.T) {
	f := newFixture(t)
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "keep.txt"), []byte("x"), 0o644))

	_, err := f.engine.Create(context.Background(), Request{Target: target, Python: f.python})
	assert.ErrorIs(t, err, venverrors.ErrFilesystem)
	assert.Equal(t, venverrors.ExitFilesystem, venverrors.ExitCode(err))
	assert.FileExists(t, filepath.Join(target, "keep.txt"))

	_, err = f.engine.Create(context.Background(), Request{Target: target, Python: f.python, Options: Options{Clear: true}})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(target, "keep.txt"))
}

func TestCreate_TargetLocked(t *testing.T) {
	f := newFixture(t)
	target := filepath.Join(t.TempDir(), "env")

	locks, err := f.cache.Ensure(cachedir.LocksDir)
	require.NoError(t, err)
	lockFile := filepath.Join(locks, cachedir.Key(target)+".lock")
	require.NoError(t, os.WriteFile(lockFile, []byte(fmt.Sprintf("%d\n", os.Getppid())), 0o644))

	_, err = f.engine.Create(context.Background(), Request{Target: target, Python: f.python})
	assert.ErrorIs(t, err, venverrors.ErrFilesystem)
	assert.NoDirExists(t, target)
}

func TestCreate_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"empty target", Request{Python: f.python}, venverrors.ErrInvalidArgs},
		{"missing interpreter", Request{Target: filepath.Join(t.TempDir(), "env"), Python: filepath.Join(t.TempDir(), "nope")}, venverrors.ErrInterpreterNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreate_MissingArchiveOffline(t *testing.T) {
	f := newFixture(t, WithSource(bootstrap.Chain{
		bootstrap.NewTable(bootstrap.OriginEmbedded, nil),
		bootstrap.NewNetwork(nil, true, nil),
	}))

	_, err := f.engine.Create(context.Background(), Request{Target: filepath.Join(t.TempDir(), "env"), Python: f.python})
	assert.ErrorIs(t, err, venverrors.ErrNetwork)
	assert.Equal(t, venverrors.ExitNetwork, venverrors.ExitCode(err))
}

type stubProber struct {
	interp *interpreter.Interpreter
}

func (s stubProber) Probe(context.Context, string) (*interpreter.Interpreter, error) {
	return s.interp, nil
}

func TestCreate_WindowsLayout(t *testing.T) {
	base := t.TempDir()
	exe := filepath.Join(base, "python.exe")
	require.NoError(t, os.WriteFile(exe, []byte("MZ"), 0o755))

	interp := &interpreter.Interpreter{
		Executable:     exe,
		Version:        interpreter.Version{Major: 3, Minor: 12, Micro: 1, ReleaseLevel: "final"},
		Implementation: interpreter.ImplementationCPython,
		BasePrefix:     base,
		BaseExecPrefix: base,
		Pointer64:      true,
	}
	f := newFixture(t, WithProber(stubProber{interp}), WithGOOS("windows"), WithStrategy(bootstrap.Pool{Size: 2}))
	target := filepath.Join(t.TempDir(), "env")

	result, err := f.engine.Create(context.Background(), Request{Target: target})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(target, "Scripts", "python.exe"))
	assert.FileExists(t, filepath.Join(target, "Scripts", "activate.bat"))
	assert.FileExists(t, filepath.Join(target, "Scripts", "pip-script.py"))
	assert.FileExists(t, filepath.Join(target, "Lib", "site-packages", "pip", "__init__.py"))
	assert.Equal(t, "copy", result.Tree.Policy.String())
}
