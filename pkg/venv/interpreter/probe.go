package interpreter

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/ini.v1"

	"github.com/provide-io/flavor/go/venv/internal/cachedir"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

// DescriptorName is the file marking a derived environment root.
const DescriptorName = "pyvenv.cfg"

// maxChainDepth bounds how many derived environments are followed to a base.
const maxChainDepth = 8

// Prober discovers interpreters. The zero value is not usable, use NewProber.
type Prober struct {
	logger          hclog.Logger
	cache           *infoCache
	goos            string
	defaultSelector string
	timeout         time.Duration
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) ProberOption {
	return func(p *Prober) { p.logger = logger }
}

// WithCache enables the interpreter-info cache under dir.
func WithCache(dir cachedir.Dir) ProberOption {
	return func(p *Prober) { p.cache = &infoCache{dir: dir} }
}

// WithGOOS overrides the host operating system conventions.
func WithGOOS(goos string) ProberOption {
	return func(p *Prober) { p.goos = goos }
}

// WithDefaultSelector sets the selector used when Probe gets an empty one.
func WithDefaultSelector(selector string) ProberOption {
	return func(p *Prober) {
		if selector != "" {
			p.defaultSelector = selector
		}
	}
}

// WithQueryTimeout bounds the interpreter subprocess.
func WithQueryTimeout(d time.Duration) ProberOption {
	return func(p *Prober) { p.timeout = d }
}

// NewProber creates a Prober for the host platform.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		logger:  hclog.NewNullLogger(),
		goos:    runtime.GOOS,
		timeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.defaultSelector == "" {
		p.defaultSelector = DefaultSelector(p.goos)
	}
	if p.cache != nil {
		p.cache.logger = p.logger.Named("cache")
	}
	return p
}

// Probe resolves selector and describes the base interpreter behind it.
// Executables living in a derived environment are followed to their base.
func (p *Prober) Probe(ctx context.Context, selector string) (*Interpreter, error) {
	p.logger.Debug("🔍 Probing interpreter", "selector", selector, "default", p.defaultSelector)

	exe, err := p.Resolve(selector)
	if err != nil {
		return nil, err
	}

	derivedFrom := ""
	for depth := 0; ; depth++ {
		root, cfg := p.findDescriptor(exe)
		if cfg == "" {
			break
		}
		if depth == maxChainDepth {
			return nil, venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, nil,
				"more than %d chained environments behind %s", maxChainDepth, selector)
		}
		base, err := p.baseOf(cfg)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("🔗 Interpreter lives in a derived environment", "environment", root, "base", base)
		if derivedFrom == "" {
			derivedFrom = root
		}
		exe = base
	}

	real, err := resolveLinks(exe)
	if err != nil {
		return nil, err
	}

	info, err := p.inspect(ctx, real)
	if err != nil {
		return nil, err
	}
	if derivedFrom != "" {
		derived := *info
		derived.Derived = true
		derived.DerivedFrom = derivedFrom
		info = &derived
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	p.logger.Info("🐍 Interpreter found",
		"executable", info.Executable,
		"version", info.Version.String(),
		"source", info.Source,
		"derived", info.Derived)
	return info, nil
}

func (p *Prober) inspect(ctx context.Context, exe string) (*Interpreter, error) {
	info, err := inspectStatic(exe, p.goos)
	if err != nil {
		return nil, err
	}
	if info != nil {
		return info, nil
	}
	p.logger.Debug("Static inspection incomplete", "executable", exe)

	stat, err := os.Stat(exe)
	if err != nil {
		return nil, venverrors.Wrap(venverrors.ErrInterpreterNotFound, err, "cannot stat %s", exe)
	}
	mtime := stat.ModTime().UnixNano()

	if p.cache != nil {
		if cached := p.cache.load(exe, mtime); cached != nil {
			return cached, nil
		}
	}

	p.logger.Debug("🚀 Querying interpreter", "executable", exe)
	info, err = query(ctx, exe, p.timeout)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.store(exe, mtime, info)
	}
	return info, nil
}

// findDescriptor looks for pyvenv.cfg one level above the executable's
// directory (bin/python, Scripts\python.exe) and next to it.
func (p *Prober) findDescriptor(exe string) (root, cfg string) {
	dir := filepath.Dir(exe)
	for _, candidate := range []string{filepath.Dir(dir), dir} {
		path := filepath.Join(candidate, DescriptorName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return candidate, path
		}
	}
	return "", ""
}

// baseOf reads a pyvenv.cfg and returns the base interpreter it points at,
// preferring base-executable over home.
func (p *Prober) baseOf(cfgPath string) (string, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		KeyValueDelimiters:      "=",
		PreserveSurroundedQuote: true,
		IgnoreContinuation:      true,
	}, cfgPath)
	if err != nil {
		return "", venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, err, "unreadable %s", cfgPath)
	}
	section := cfg.Section(ini.DefaultSection)

	if base := section.Key("base-executable").String(); base != "" {
		if _, err := os.Stat(base); err == nil {
			return base, nil
		}
	}

	if home := section.Key("home").String(); home != "" {
		names := []string{"python3", "python"}
		if p.goos == "windows" {
			names = []string{"python.exe"}
		}
		if v, err := ParseVersionInfo(section.Key("version_info").String()); err == nil && p.goos != "windows" {
			names = append([]string{"python" + v.Short()}, names...)
		}
		for _, name := range names {
			candidate := filepath.Join(home, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	return "", venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, nil,
		"%s does not name an existing base interpreter (home/base-executable)", cfgPath)
}
