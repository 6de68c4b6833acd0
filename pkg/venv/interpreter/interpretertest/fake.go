// Package interpretertest builds fake CPython installations on disk for tests.
package interpretertest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/provide-io/flavor/go/venv/internal/fsutil"
)

// Patchlevel renders a minimal include/patchlevel.h for major.minor.micro final.
func Patchlevel(major, minor, micro int) string {
	return fmt.Sprintf(`/* Python version identification scheme. */
#define PY_RELEASE_LEVEL_ALPHA  0xA
#define PY_RELEASE_LEVEL_BETA   0xB
#define PY_RELEASE_LEVEL_GAMMA  0xC     /* For release candidates */
#define PY_RELEASE_LEVEL_FINAL  0xF     /* Serial should be 0 here */

/* Version parsed out into numeric values */
#define PY_MAJOR_VERSION        %d
#define PY_MINOR_VERSION        %d
#define PY_MICRO_VERSION        %d
#define PY_RELEASE_LEVEL        PY_RELEASE_LEVEL_FINAL
#define PY_RELEASE_SERIAL       0

/* Version as a string */
#define PY_VERSION              "%d.%d.%d"
`, major, minor, micro, major, minor, micro)
}

// CPython lays out a statically probeable installation under root and returns
// the path of its executable. The executable is a copy of the running test
// binary, so its header carries the host pointer width.
func CPython(t testing.TB, root string, major, minor, micro int) string {
	t.Helper()

	short := fmt.Sprintf("%d.%d", major, minor)
	var exe, landmark, header string
	if runtime.GOOS == "windows" {
		exe = filepath.Join(root, "python.exe")
		landmark = filepath.Join(root, "Lib", "os.py")
		header = filepath.Join(root, "include", "patchlevel.h")
	} else {
		exe = filepath.Join(root, "bin", "python"+short)
		landmark = filepath.Join(root, "lib", "python"+short, "os.py")
		header = filepath.Join(root, "include", "python"+short, "patchlevel.h")
	}

	self, err := os.Executable()
	if err != nil {
		t.Fatalf("locating test binary: %v", err)
	}
	for _, dir := range []string{filepath.Dir(exe), filepath.Dir(landmark), filepath.Dir(header)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}
	if err := fsutil.CopyFile(self, exe); err != nil {
		t.Fatalf("copying interpreter: %v", err)
	}
	if err := os.WriteFile(landmark, []byte("# os module landmark\n"), 0o644); err != nil {
		t.Fatalf("writing landmark: %v", err)
	}
	if err := os.WriteFile(header, []byte(Patchlevel(major, minor, micro)), 0o644); err != nil {
		t.Fatalf("writing patchlevel.h: %v", err)
	}
	return exe
}
