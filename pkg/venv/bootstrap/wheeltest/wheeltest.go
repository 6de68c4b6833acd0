// Package wheeltest builds small wheel archives for tests.
package wheeltest

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"testing"
)

// Spec describes a wheel to build.
type Spec struct {
	Name    string
	Version string
	// Files maps archive paths to contents, dist-info files are added.
	Files       map[string]string
	EntryPoints string
	// Corrupt names a member recorded with a wrong digest.
	Corrupt string
	// Unlisted names a member left out of RECORD.
	Unlisted string
}

// Digest renders the RECORD digest of content.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256=" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// DistInfo returns the dist-info directory name of a spec.
func (s Spec) DistInfo() string {
	return fmt.Sprintf("%s-%s.dist-info", strings.ReplaceAll(s.Name, "-", "_"), s.Version)
}

// Build returns the zip archive of spec.
func Build(t testing.TB, spec Spec) []byte {
	t.Helper()

	distInfo := spec.DistInfo()
	files := map[string]string{
		distInfo + "/METADATA": fmt.Sprintf("Metadata-Version: 2.1\nName: %s\nVersion: %s\n", spec.Name, spec.Version),
		distInfo + "/WHEEL":    "Wheel-Version: 1.0\nGenerator: wheeltest\nRoot-Is-Purelib: true\nTag: py3-none-any\n",
	}
	if spec.EntryPoints != "" {
		files[distInfo+"/entry_points.txt"] = spec.EntryPoints
	}
	for name, content := range spec.Files {
		files[name] = content
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var record strings.Builder
	for _, name := range names {
		if name == spec.Unlisted {
			continue
		}
		content := []byte(files[name])
		digest := Digest(content)
		if name == spec.Corrupt {
			digest = Digest(append(content, "tampered"...))
		}
		fmt.Fprintf(&record, "%s,%s,%d\n", name, digest, len(content))
	}
	fmt.Fprintf(&record, "%s/RECORD,,\n", distInfo)
	files[distInfo+"/RECORD"] = record.String()
	names = append(names, distInfo+"/RECORD")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		header.SetMode(0o644)
		w, err := zw.CreateHeader(header)
		if err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing wheel: %v", err)
	}
	return buf.Bytes()
}

// PipEntryPoints mirrors the console scripts pip ships.
const PipEntryPoints = `[console_scripts]
pip = pip._internal.cli.main:main
pip3 = pip._internal.cli.main:main
pip3.9 = pip._internal.cli.main:main
`

// Pinned builds stand-ins for pip, setuptools and wheel keyed by file name.
func Pinned(t testing.TB) map[string][]byte {
	t.Helper()
	specs := []Spec{
		{
			Name:        "pip",
			Version:     "23.2.1",
			Files:       map[string]string{"pip/__init__.py": "__version__ = \"23.2.1\"\n", "pip/_internal/cli/main.py": "def main():\n    return 0\n"},
			EntryPoints: PipEntryPoints,
		},
		{
			Name:    "setuptools",
			Version: "68.2.0",
			Files: map[string]string{
				"setuptools/__init__.py": "",
				"distutils-precedence.pth": "import os\n",
			},
			EntryPoints: "[distutils.commands]\nalias = setuptools.command.alias:alias\n",
		},
		{
			Name:        "wheel",
			Version:     "0.41.2",
			Files:       map[string]string{"wheel/__init__.py": "", "wheel/cli/__init__.py": "def main():\n    return 0\n"},
			EntryPoints: "[console_scripts]\nwheel = wheel.cli:main\n",
		},
	}

	out := map[string][]byte{}
	for _, spec := range specs {
		out[fmt.Sprintf("%s-%s-py3-none-any.whl", spec.Name, spec.Version)] = Build(t, spec)
	}
	return out
}
