package interpreter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

var (
	defineLine  = regexp.MustCompile(`^#define\s+(PY_(?:MAJOR|MINOR|MICRO)_VERSION|PY_RELEASE_LEVEL|PY_RELEASE_SERIAL)\s+(\S+)`)
	libVersion  = regexp.MustCompile(`^python(\d+)\.(\d+)$`)
	exeVersion  = regexp.MustCompile(`^python(\d+\.\d+)`)
	levelByName = map[string]string{
		"PY_RELEASE_LEVEL_ALPHA": "alpha",
		"PY_RELEASE_LEVEL_BETA":  "beta",
		"PY_RELEASE_LEVEL_GAMMA": "candidate",
		"PY_RELEASE_LEVEL_FINAL": "final",
		"0xA":                    "alpha",
		"0xB":                    "beta",
		"0xC":                    "candidate",
		"0xF":                    "final",
	}
)

// ParsePatchlevel extracts the version from CPython's include/patchlevel.h.
func ParsePatchlevel(path string) (Version, error) {
	f, err := os.Open(path)
	if err != nil {
		return Version{}, err
	}
	defer f.Close()

	found := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := defineLine.FindStringSubmatch(strings.TrimSpace(scanner.Text())); m != nil {
			if _, seen := found[m[1]]; !seen {
				found[m[1]] = m[2]
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Version{}, err
	}

	var v Version
	for key, dst := range map[string]*int{
		"PY_MAJOR_VERSION":  &v.Major,
		"PY_MINOR_VERSION":  &v.Minor,
		"PY_MICRO_VERSION":  &v.Micro,
		"PY_RELEASE_SERIAL": &v.Serial,
	} {
		n, err := strconv.Atoi(found[key])
		if err != nil {
			return Version{}, fmt.Errorf("%s: missing or invalid %s", path, key)
		}
		*dst = n
	}

	level, ok := levelByName[found["PY_RELEASE_LEVEL"]]
	if !ok {
		return Version{}, fmt.Errorf("%s: missing or invalid PY_RELEASE_LEVEL", path)
	}
	v.ReleaseLevel = level
	return v, nil
}

// inspectStatic derives interpreter facts from the installation layout alone.
// It returns (nil, nil) when the layout does not carry enough landmarks, and
// an error only when the landmarks identify an unsupported implementation.
func inspectStatic(exe, goos string) (*Interpreter, error) {
	if goos == "windows" {
		return inspectStaticWindows(exe)
	}
	return inspectStaticPOSIX(exe)
}

func inspectStaticPOSIX(exe string) (*Interpreter, error) {
	prefix := filepath.Dir(filepath.Dir(exe))
	libDir := filepath.Join(prefix, "lib")

	if pypy, _ := filepath.Glob(filepath.Join(libDir, "pypy*")); len(pypy) > 0 {
		return nil, venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, nil,
			"%s belongs to a PyPy installation (%s)", exe, pypy[0])
	}

	landmarks, _ := filepath.Glob(filepath.Join(libDir, "python*", "os.py"))
	var versions []string
	for _, lm := range landmarks {
		name := filepath.Base(filepath.Dir(lm))
		if libVersion.MatchString(name) {
			versions = append(versions, strings.TrimPrefix(name, "python"))
		}
	}
	sort.Strings(versions)

	short := ""
	if m := exeVersion.FindStringSubmatch(filepath.Base(exe)); m != nil {
		for _, v := range versions {
			if v == m[1] {
				short = v
			}
		}
	} else if len(versions) == 1 {
		short = versions[0]
	}
	if short == "" {
		return nil, nil
	}

	var version Version
	var err error
	for _, dir := range []string{"python" + short, "python" + short + "m"} {
		version, err = ParsePatchlevel(filepath.Join(prefix, "include", dir, "patchlevel.h"))
		if err == nil {
			break
		}
	}
	if err != nil || version.Short() != short {
		return nil, nil
	}

	return finishStatic(exe, prefix, version)
}

func inspectStaticWindows(exe string) (*Interpreter, error) {
	prefix := filepath.Dir(exe)

	if _, err := os.Stat(filepath.Join(prefix, "lib_pypy")); err == nil {
		return nil, venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, nil,
			"%s belongs to a PyPy installation", exe)
	}
	if _, err := os.Stat(filepath.Join(prefix, "Lib", "os.py")); err != nil {
		return nil, nil
	}

	version, err := ParsePatchlevel(filepath.Join(prefix, "include", "patchlevel.h"))
	if err != nil {
		return nil, nil
	}
	return finishStatic(exe, prefix, version)
}

func finishStatic(exe, prefix string, version Version) (*Interpreter, error) {
	pointer64, ok := executablePointer64(exe)
	if !ok {
		return nil, nil
	}
	return &Interpreter{
		Executable:     exe,
		Version:        version,
		Implementation: ImplementationCPython,
		ABITag:         fmt.Sprintf("cp%d%d", version.Major, version.Minor),
		BasePrefix:     prefix,
		BaseExecPrefix: prefix,
		Pointer64:      pointer64,
		Source:         SourceStatic,
	}, nil
}
