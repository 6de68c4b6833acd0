// Package venv creates isolated Python environments: it probes an
// interpreter, lays out and builds the tree, writes pyvenv.cfg and the
// activation scripts and installs the seed packages.
package venv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/venv/internal/cachedir"
	"github.com/provide-io/flavor/go/venv/pkg/venv/activation"
	"github.com/provide-io/flavor/go/venv/pkg/venv/bootstrap"
	"github.com/provide-io/flavor/go/venv/pkg/venv/descriptor"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
	"github.com/provide-io/flavor/go/venv/pkg/venv/interpreter"
	"github.com/provide-io/flavor/go/venv/pkg/venv/layout"
	"github.com/provide-io/flavor/go/venv/pkg/venv/tree"
)

// Version is recorded in pyvenv.cfg when no tool version is configured.
const Version = "0.3.0"

// CurrentDirPrompt selects the name of the working directory as prompt.
const CurrentDirPrompt = "."

// Prober finds and describes an interpreter.
type Prober interface {
	Probe(ctx context.Context, selector string) (*interpreter.Interpreter, error)
}

// Options toggle optional parts of an environment.
type Options struct {
	SystemSitePackages bool
	NoPip              bool
	NoSetuptools       bool
	NoWheel            bool
	Bare               bool
	Clear              bool
	Prompt             string
}

// Request describes one environment to create.
type Request struct {
	Target string
	// Python selects the interpreter, empty uses the engine's default.
	Python  string
	Options Options
	// CommandLine is recorded in pyvenv.cfg, empty records os.Args.
	CommandLine []string
}

// Result describes a created environment.
type Result struct {
	Interpreter *interpreter.Interpreter
	Paths       *layout.Paths
	Tree        *tree.Report
	Activators  []string
	Packages    []*bootstrap.Package
	Elapsed     time.Duration
}

// Engine runs the creation pipeline.
type Engine struct {
	logger      hclog.Logger
	strategy    bootstrap.Strategy
	prober      Prober
	source      bootstrap.Source
	goos        string
	toolVersion string
	cache       cachedir.Dir
	indexURL    string
	offline     bool
	// defaultPython and queryTimeout configure the default prober.
	defaultPython string
	queryTimeout  time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger hclog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithStrategy(s bootstrap.Strategy) Option {
	return func(e *Engine) { e.strategy = s }
}

func WithProber(p Prober) Option {
	return func(e *Engine) { e.prober = p }
}

// WithSource replaces the default archive source chain.
func WithSource(s bootstrap.Source) Option {
	return func(e *Engine) { e.source = s }
}

// WithGOOS builds environments for another platform's layout.
func WithGOOS(goos string) Option {
	return func(e *Engine) { e.goos = goos }
}

func WithToolVersion(v string) Option {
	return func(e *Engine) { e.toolVersion = v }
}

// WithCache sets the cache used for interpreter facts, downloads and locks.
func WithCache(dir cachedir.Dir) Option {
	return func(e *Engine) { e.cache = dir }
}

func WithIndexURL(url string) Option {
	return func(e *Engine) { e.indexURL = url }
}

// WithOffline disables downloads.
func WithOffline(offline bool) Option {
	return func(e *Engine) { e.offline = offline }
}

// WithDefaultPython sets the selector used when a request names no interpreter.
func WithDefaultPython(selector string) Option {
	return func(e *Engine) { e.defaultPython = selector }
}

func WithQueryTimeout(d time.Duration) Option {
	return func(e *Engine) { e.queryTimeout = d }
}

// NewEngine creates an Engine. Without options it logs nothing, probes with
// the default prober and installs sequentially.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:      hclog.NewNullLogger(),
		strategy:    bootstrap.Sequential{},
		goos:        runtime.GOOS,
		toolVersion: Version,
		cache:       cachedir.New(""),
		indexURL:    bootstrap.DefaultIndexURL,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.prober == nil {
		opts := []interpreter.ProberOption{
			interpreter.WithLogger(e.logger.Named("interpreter")),
			interpreter.WithCache(e.cache),
			interpreter.WithGOOS(e.goos),
			interpreter.WithDefaultSelector(e.defaultPython),
		}
		if e.queryTimeout > 0 {
			opts = append(opts, interpreter.WithQueryTimeout(e.queryTimeout))
		}
		e.prober = interpreter.NewProber(opts...)
	}
	return e
}

// Create builds the environment described by req. A failed run may leave a
// partial tree behind.
func (e *Engine) Create(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if req.Target == "" {
		return nil, venverrors.Wrap(venverrors.ErrInvalidArgs, nil, "no target directory given")
	}
	prompt, err := resolvePrompt(req.Options.Prompt)
	if err != nil {
		return nil, err
	}

	e.logger.Info("🚀 Creating environment", "target", req.Target, "python", req.Python)

	interp, err := e.prober.Probe(ctx, req.Python)
	if err != nil {
		return nil, err
	}

	paths, err := layout.Plan(interp, e.goos, req.Target)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("📐 Layout planned", "bin", paths.Bin, "site_packages", paths.SitePackages)

	lock, err := e.cache.TryLock(paths.Root, e.logger.Named("lock"))
	if err != nil {
		if errors.Is(err, cachedir.ErrLocked) {
			return nil, venverrors.Wrap(venverrors.ErrFilesystem, err, "%s is being created by another process", paths.Root)
		}
		return nil, venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot lock %s", paths.Root)
	}
	defer lock.Release()

	if err := tree.Prepare(paths, req.Options.Clear, e.logger); err != nil {
		return nil, err
	}
	report, err := tree.Build(paths, interp, e.logger)
	if err != nil {
		return nil, err
	}

	commandLine := req.CommandLine
	if len(commandLine) == 0 {
		commandLine = os.Args
	}
	desc := descriptor.New(paths, interp, descriptor.Settings{
		SystemSitePackages: req.Options.SystemSitePackages,
		Prompt:             prompt,
		CommandLine:        commandLine,
		ToolVersion:        e.toolVersion,
	})
	if err := desc.Write(paths.Descriptor, e.logger); err != nil {
		return nil, err
	}

	activators, err := activation.Generate(paths, prompt, e.logger)
	if err != nil {
		return nil, err
	}

	pkgs := bootstrap.Select(bootstrap.Selection{
		NoPip:        req.Options.NoPip,
		NoSetuptools: req.Options.NoSetuptools,
		NoWheel:      req.Options.NoWheel,
		Bare:         req.Options.Bare,
	}, e.indexURL)
	if err := e.install(ctx, paths, interp, pkgs); err != nil {
		return nil, err
	}

	result := &Result{
		Interpreter: interp,
		Paths:       paths,
		Tree:        report,
		Activators:  activators,
		Packages:    pkgs,
		Elapsed:     time.Since(start),
	}
	e.logger.Info("✅ Environment created",
		"target", paths.Root,
		"interpreter", interp.Spec(),
		"packages", len(pkgs),
		"duration", result.Elapsed)
	return result, nil
}

func (e *Engine) install(ctx context.Context, paths *layout.Paths, interp *interpreter.Interpreter, pkgs []*bootstrap.Package) error {
	if len(pkgs) == 0 {
		e.logger.Debug("No seed packages requested")
		return nil
	}

	source := e.source
	if source == nil {
		var err error
		source, err = bootstrap.DefaultSource(bootstrap.SourceConfig{
			Cache:   e.cache,
			Offline: e.offline,
			Logger:  e.logger.Named("source"),
		})
		if err != nil {
			return venverrors.Wrap(venverrors.ErrBootstrapInstall, err, "loading embedded archives")
		}
	}
	if closer, ok := source.(interface{ CloseIdleConnections() }); ok {
		defer closer.CloseIdleConnections()
	}

	installer := bootstrap.NewInstaller(source, e.strategy, e.logger.Named("bootstrap"))
	return installer.Install(ctx, paths, interp, pkgs)
}

// resolvePrompt maps "." to the name of the working directory.
func resolvePrompt(prompt string) (string, error) {
	if prompt != CurrentDirPrompt {
		return prompt, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", venverrors.Wrap(venverrors.ErrInvalidArgs, err, "cannot resolve prompt %q", prompt)
	}
	return filepath.Base(cwd), nil
}
