// Package layout computes where every part of a derived environment lives.
package layout

import (
	"path/filepath"

	"github.com/provide-io/flavor/go/venv/pkg/venv/interpreter"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

// DescriptorName is the environment descriptor file at the root.
const DescriptorName = interpreter.DescriptorName

// Paths is the immutable location plan of one environment.
type Paths struct {
	Root         string
	Bin          string
	Lib          string
	SitePackages string
	Include      string
	Descriptor   string
	// Lib64Link is the lib64 -> lib symlink, empty when not applicable.
	Lib64Link string
	// Executables are the interpreter alias file names created in Bin.
	Executables []string
	BinName     string
	PathSep     string
	GOOS        string
}

// Plan lays out an environment at target for interp under goos conventions.
func Plan(interp *interpreter.Interpreter, goos, target string) (*Paths, error) {
	if target == "" {
		return nil, venverrors.Wrap(venverrors.ErrInvalidArgs, nil, "target path is empty")
	}
	root, err := filepath.Abs(target)
	if err != nil {
		return nil, venverrors.Wrap(venverrors.ErrInvalidArgs, err, "invalid target %s", target)
	}

	short := interp.Version.Short()
	p := &Paths{
		Root:       root,
		Descriptor: filepath.Join(root, DescriptorName),
		GOOS:       goos,
	}

	if goos == "windows" {
		p.BinName = "Scripts"
		p.PathSep = ";"
		p.Lib = filepath.Join(root, "Lib")
		p.Include = filepath.Join(root, "Include")
		p.Executables = []string{"python.exe", "python3.exe", "python" + short + ".exe", "pythonw.exe"}
	} else {
		p.BinName = "bin"
		p.PathSep = ":"
		p.Lib = filepath.Join(root, "lib", "python"+short)
		p.Include = filepath.Join(root, "include")
		p.Executables = []string{"python", "python3", "python" + short}
		if goos == "linux" && interp.Pointer64 {
			p.Lib64Link = filepath.Join(root, "lib64")
		}
	}
	p.Bin = filepath.Join(root, p.BinName)
	p.SitePackages = filepath.Join(p.Lib, "site-packages")
	return p, nil
}

// Python is the primary interpreter alias inside the environment.
func (p *Paths) Python() string {
	return filepath.Join(p.Bin, p.Executables[0])
}

// RelativeSitePackages is SitePackages relative to Bin, slash separated.
func (p *Paths) RelativeSitePackages() string {
	rel, err := filepath.Rel(p.Bin, p.SitePackages)
	if err != nil {
		return p.SitePackages
	}
	return filepath.ToSlash(rel)
}

// Aliases returns the absolute paths of every interpreter alias.
func (p *Paths) Aliases() []string {
	out := make([]string, len(p.Executables))
	for i, name := range p.Executables {
		out[i] = filepath.Join(p.Bin, name)
	}
	return out
}
