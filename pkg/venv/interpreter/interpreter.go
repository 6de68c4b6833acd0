// Package interpreter discovers and describes the base Python interpreter an
// environment is derived from.
package interpreter

import (
	"fmt"
	"strconv"
	"strings"

	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

// ImplementationCPython is the only implementation environments can be built for.
const ImplementationCPython = "CPython"

// Source records how the interpreter facts were obtained.
type Source string

const (
	SourceStatic Source = "static"
	SourceQuery  Source = "query"
	SourceCache  Source = "cache"
)

// Version mirrors sys.version_info.
type Version struct {
	Major        int    `json:"major"`
	Minor        int    `json:"minor"`
	Micro        int    `json:"micro"`
	ReleaseLevel string `json:"releaselevel"`
	Serial       int    `json:"serial"`
}

// String renders the version the way pyvenv.cfg stores it, e.g. 3.11.4.final.0.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%s.%d", v.Major, v.Minor, v.Micro, v.ReleaseLevel, v.Serial)
}

// Short returns "X.Y".
func (v Version) Short() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast reports whether v >= major.minor.
func (v Version) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

var releaseLevels = map[string]bool{"alpha": true, "beta": true, "candidate": true, "final": true}

// ParseVersionInfo parses "3.11.4.final.0". The release level and serial are
// optional and default to final and 0.
func ParseVersionInfo(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 3 || len(parts) > 5 || len(parts) == 4 {
		return Version{}, fmt.Errorf("invalid version info %q", s)
	}

	nums := make([]int, 3)
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version info %q: component %d is not a number", s, i)
		}
		nums[i] = n
	}

	v := Version{Major: nums[0], Minor: nums[1], Micro: nums[2], ReleaseLevel: "final"}
	if len(parts) == 5 {
		if !releaseLevels[parts[3]] {
			return Version{}, fmt.Errorf("invalid version info %q: unknown release level %q", s, parts[3])
		}
		serial, err := strconv.Atoi(parts[4])
		if err != nil || serial < 0 {
			return Version{}, fmt.Errorf("invalid version info %q: bad serial", s)
		}
		v.ReleaseLevel = parts[3]
		v.Serial = serial
	}
	return v, nil
}

// Interpreter holds the facts about a base interpreter. It is never mutated
// after Probe returns it.
type Interpreter struct {
	Executable     string  `json:"executable"`
	Version        Version `json:"version"`
	Implementation string  `json:"implementation"`
	ABITag         string  `json:"abi_tag"`
	BasePrefix     string  `json:"base_prefix"`
	BaseExecPrefix string  `json:"base_exec_prefix"`
	Pointer64      bool    `json:"pointer64"`
	Derived        bool    `json:"derived,omitempty"`
	DerivedFrom    string  `json:"derived_from,omitempty"`
	Source         Source  `json:"-"`
}

// Spec returns the identifier printed after creation, e.g. CPython3.11.4.final.0-64.
func (i *Interpreter) Spec() string {
	bits := 32
	if i.Pointer64 {
		bits = 64
	}
	return fmt.Sprintf("%s%s-%d", i.Implementation, i.Version, bits)
}

// Validate checks the interpreter can host a derived environment.
func (i *Interpreter) Validate() error {
	if i.Implementation != ImplementationCPython {
		return venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, nil,
			"%s is %s, only %s is supported", i.Executable, i.Implementation, ImplementationCPython)
	}
	if !i.Version.AtLeast(3, 7) {
		return venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, nil,
			"%s is Python %s, 3.7 or newer is required", i.Executable, i.Version.Short())
	}
	return nil
}
