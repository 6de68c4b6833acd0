package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/venv/internal/fsutil"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
	"github.com/provide-io/flavor/go/venv/pkg/venv/interpreter"
	"github.com/provide-io/flavor/go/venv/pkg/venv/layout"
)

// diskSpaceFactor is the headroom required over the unpacked archive size.
const diskSpaceFactor = 2

// Installer resolves and installs seed packages.
type Installer struct {
	source         Source
	strategy       Strategy
	logger         hclog.Logger
	availableSpace func(path string) (uint64, error)
}

// NewInstaller creates an Installer. A nil strategy runs sequentially.
func NewInstaller(source Source, strategy Strategy, logger hclog.Logger) *Installer {
	if strategy == nil {
		strategy = Sequential{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Installer{
		source:         source,
		strategy:       strategy,
		logger:         logger,
		availableSpace: fsutil.AvailableSpace,
	}
}

// Install resolves every package archive, checks free space and installs
// the packages into the environment.
func (i *Installer) Install(ctx context.Context, paths *layout.Paths, interp *interpreter.Interpreter, pkgs []*Package) error {
	if len(pkgs) == 0 {
		return nil
	}
	start := time.Now()
	i.logger.Info("📦 Installing seed packages", "count", len(pkgs), "strategy", i.strategy.Name())

	wheels := make([]*wheel, len(pkgs))
	resolve := make([]Task, len(pkgs))
	for n, pkg := range pkgs {
		n, pkg := n, pkg
		resolve[n] = func(ctx context.Context) error {
			w, err := i.resolve(ctx, pkg)
			if err != nil {
				return err
			}
			wheels[n] = w
			return nil
		}
	}
	if err := i.strategy.Run(ctx, resolve); err != nil {
		return err
	}

	if err := i.checkDiskSpace(paths.SitePackages, wheels); err != nil {
		return err
	}

	install := make([]Task, len(wheels))
	for n, w := range wheels {
		w := w
		install[n] = func(ctx context.Context) error {
			if err := w.install(paths, interp); err != nil {
				return venverrors.Wrap(venverrors.ErrBootstrapInstall, err, "installing %s", w.pkg)
			}
			i.logger.Debug("✅ Installed package", "package", w.pkg.String(), "origin", w.pkg.Origin)
			return nil
		}
	}
	if err := i.strategy.Run(ctx, install); err != nil {
		return err
	}

	i.logger.Info("✅ Seed packages installed", "count", len(pkgs), "duration", time.Since(start))
	return nil
}

// resolve fetches, opens and verifies one archive.
func (i *Installer) resolve(ctx context.Context, pkg *Package) (*wheel, error) {
	data, origin, err := i.source.Fetch(ctx, pkg)
	if errors.Is(err, errNotFound) {
		return nil, venverrors.Wrap(venverrors.ErrNetwork, nil, "no source provides %s", pkg.Filename)
	}
	if err != nil {
		return nil, err
	}
	pkg.Archive = data
	pkg.Origin = origin
	i.logger.Debug("Resolved archive", "package", pkg.String(), "origin", origin, "bytes", len(data))

	w, err := openWheel(pkg)
	if err != nil {
		return nil, venverrors.Wrap(venverrors.ErrBootstrapInstall, err, "opening %s", pkg)
	}
	if err := w.verify(); err != nil {
		return nil, venverrors.Wrap(venverrors.ErrBootstrapInstall, err, "verifying %s", pkg)
	}
	return w, nil
}

func (i *Installer) checkDiskSpace(dir string, wheels []*wheel) error {
	var need uint64
	for _, w := range wheels {
		need += w.unpackedSize() * diskSpaceFactor
	}

	available, err := i.availableSpace(dir)
	if err != nil {
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot determine free space of %s", dir)
	}
	i.logger.Debug("💽 Disk space check", "need", need, "available", available)
	if available < need {
		return venverrors.Wrap(venverrors.ErrFilesystem, nil,
			"insufficient disk space in %s: need %d bytes, %d available", dir, need, available)
	}
	return nil
}
