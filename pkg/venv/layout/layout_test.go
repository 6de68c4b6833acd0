package layout

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/flavor/go/venv/pkg/venv/interpreter"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

func cpython311(pointer64 bool) *interpreter.Interpreter {
	return &interpreter.Interpreter{
		Executable:     "/usr/bin/python3.11",
		Version:        interpreter.Version{Major: 3, Minor: 11, Micro: 4, ReleaseLevel: "final"},
		Implementation: interpreter.ImplementationCPython,
		Pointer64:      pointer64,
	}
}

func TestPlan(t *testing.T) {
	root, err := filepath.Abs("venv")
	require.NoError(t, err)

	tests := []struct {
		name      string
		goos      string
		pointer64 bool
		want      *Paths
	}{
		{
			name:      "linux 64-bit",
			goos:      "linux",
			pointer64: true,
			want: &Paths{
				Root:         root,
				Bin:          filepath.Join(root, "bin"),
				Lib:          filepath.Join(root, "lib", "python3.11"),
				SitePackages: filepath.Join(root, "lib", "python3.11", "site-packages"),
				Include:      filepath.Join(root, "include"),
				Descriptor:   filepath.Join(root, "pyvenv.cfg"),
				Lib64Link:    filepath.Join(root, "lib64"),
				Executables:  []string{"python", "python3", "python3.11"},
				BinName:      "bin",
				PathSep:      ":",
				GOOS:         "linux",
			},
		},
		{
			name:      "linux 32-bit has no lib64",
			goos:      "linux",
			pointer64: false,
			want: &Paths{
				Root:         root,
				Bin:          filepath.Join(root, "bin"),
				Lib:          filepath.Join(root, "lib", "python3.11"),
				SitePackages: filepath.Join(root, "lib", "python3.11", "site-packages"),
				Include:      filepath.Join(root, "include"),
				Descriptor:   filepath.Join(root, "pyvenv.cfg"),
				Executables:  []string{"python", "python3", "python3.11"},
				BinName:      "bin",
				PathSep:      ":",
				GOOS:         "linux",
			},
		},
		{
			name:      "darwin",
			goos:      "darwin",
			pointer64: true,
			want: &Paths{
				Root:         root,
				Bin:          filepath.Join(root, "bin"),
				Lib:          filepath.Join(root, "lib", "python3.11"),
				SitePackages: filepath.Join(root, "lib", "python3.11", "site-packages"),
				Include:      filepath.Join(root, "include"),
				Descriptor:   filepath.Join(root, "pyvenv.cfg"),
				Executables:  []string{"python", "python3", "python3.11"},
				BinName:      "bin",
				PathSep:      ":",
				GOOS:         "darwin",
			},
		},
		{
			name:      "windows",
			goos:      "windows",
			pointer64: true,
			want: &Paths{
				Root:         root,
				Bin:          filepath.Join(root, "Scripts"),
				Lib:          filepath.Join(root, "Lib"),
				SitePackages: filepath.Join(root, "Lib", "site-packages"),
				Include:      filepath.Join(root, "Include"),
				Descriptor:   filepath.Join(root, "pyvenv.cfg"),
				Executables:  []string{"python.exe", "python3.exe", "python3.11.exe", "pythonw.exe"},
				BinName:      "Scripts",
				PathSep:      ";",
				GOOS:         "windows",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Plan(cpython311(tt.pointer64), tt.goos, "venv")
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlan_EmptyTarget(t *testing.T) {
	_, err := Plan(cpython311(true), "linux", "")
	assert.ErrorIs(t, err, venverrors.ErrInvalidArgs)
}

func TestPaths_Helpers(t *testing.T) {
	posix, err := Plan(cpython311(true), "linux", "env")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(posix.Root, "bin", "python"), posix.Python())
	assert.Equal(t, "../lib/python3.11/site-packages", posix.RelativeSitePackages())
	assert.Len(t, posix.Aliases(), 3)

	windows, err := Plan(cpython311(true), "windows", "env")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(windows.Root, "Scripts", "python.exe"), windows.Python())
	assert.Equal(t, "../Lib/site-packages", windows.RelativeSitePackages())
}
