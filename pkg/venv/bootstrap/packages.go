// Package bootstrap installs the seed packages (pip, setuptools, wheel) into
// a freshly built environment.
package bootstrap

import (
	"fmt"
	"strings"
)

// Origin records where a package archive was found.
type Origin string

const (
	OriginEmbedded Origin = "embedded"
	OriginResource Origin = "resource"
	OriginCache    Origin = "cache"
	OriginNetwork  Origin = "network"
)

// DefaultIndexURL is the archive host the pinned wheels are fetched from.
const DefaultIndexURL = "https://files.pythonhosted.org/packages"

// Package is one seed package. Archive and Origin are set once resolved.
type Package struct {
	Name     string
	Version  string
	Filename string
	URL      string
	Archive  []byte
	Origin   Origin
}

// Pinned versions, all pure-Python py3-none-any wheels.
var pinned = []struct{ name, version string }{
	{"pip", "23.2.1"},
	{"setuptools", "68.2.0"},
	{"wheel", "0.41.2"},
}

// Selection excludes packages from the pinned set.
type Selection struct {
	NoPip        bool
	NoSetuptools bool
	NoWheel      bool
	// Bare excludes every package.
	Bare bool
}

func (s Selection) excludes(name string) bool {
	switch {
	case s.Bare:
		return true
	case name == "pip":
		return s.NoPip
	case name == "setuptools":
		return s.NoSetuptools
	case name == "wheel":
		return s.NoWheel
	}
	return false
}

// Select returns the pinned packages not excluded by sel, in install order.
func Select(sel Selection, indexURL string) []*Package {
	if indexURL == "" {
		indexURL = DefaultIndexURL
	}
	var out []*Package
	for _, p := range pinned {
		if sel.excludes(p.name) {
			continue
		}
		filename := WheelFilename(p.name, p.version)
		out = append(out, &Package{
			Name:     p.name,
			Version:  p.version,
			Filename: filename,
			URL:      WheelURL(indexURL, p.name, filename),
		})
	}
	return out
}

// WheelFilename is the file name of a pure-Python wheel.
func WheelFilename(name, version string) string {
	return fmt.Sprintf("%s-%s-py3-none-any.whl", strings.ReplaceAll(name, "-", "_"), version)
}

// WheelURL locates filename below indexURL using the
// <python tag>/<first letter>/<name>/<file> layout.
func WheelURL(indexURL, name, filename string) string {
	return fmt.Sprintf("%s/py3/%c/%s/%s", strings.TrimRight(indexURL, "/"), name[0], name, filename)
}

func (p *Package) String() string {
	return p.Name + "==" + p.Version
}
