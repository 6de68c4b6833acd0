package bootstrap

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/venv/internal/cachedir"
	"github.com/provide-io/flavor/go/venv/internal/fsutil"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

// errNotFound lets a Chain move on to its next source.
var errNotFound = errors.New("archive not found")

// Source provides wheel archives.
type Source interface {
	// Fetch returns the archive of pkg. An error matching errNotFound means
	// the source does not carry it; any other error is final.
	Fetch(ctx context.Context, pkg *Package) ([]byte, Origin, error)
}

// Table is an in-memory set of archives keyed by wheel file name.
type Table struct {
	origin   Origin
	archives map[string][]byte
}

// NewTable wraps archives, reported with origin.
func NewTable(origin Origin, archives map[string][]byte) *Table {
	return &Table{origin: origin, archives: archives}
}

func (t *Table) Fetch(_ context.Context, pkg *Package) ([]byte, Origin, error) {
	if data, ok := t.archives[pkg.Filename]; ok {
		return data, t.origin, nil
	}
	return nil, "", errNotFound
}

// Len returns the number of archives in the table.
func (t *Table) Len() int { return len(t.archives) }

//go:embed wheels
var embeddedWheels embed.FS

// EmbeddedTable returns the wheels compiled into the binary, decompressing
// .bz2 and .gz variants.
func EmbeddedTable() (*Table, error) {
	archives := map[string][]byte{}
	err := fs.WalkDir(embeddedWheels, "wheels", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := path.Base(p)
		if !isWheelName(name) {
			return nil
		}
		data, err := embeddedWheels.ReadFile(p)
		if err != nil {
			return err
		}
		filename, decoded, err := decodeArchive(name, data)
		if err != nil {
			return venverrors.Wrap(venverrors.ErrBootstrapInstall, err, "embedded archive %s", name)
		}
		archives[filename] = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewTable(OriginEmbedded, archives), nil
}

func isWheelName(name string) bool {
	for _, suffix := range []string{".whl", ".whl.bz2", ".whl.gz"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Chain asks each source in turn.
type Chain []Source

func (c Chain) Fetch(ctx context.Context, pkg *Package) ([]byte, Origin, error) {
	for _, src := range c {
		data, origin, err := src.Fetch(ctx, pkg)
		if errors.Is(err, errNotFound) {
			continue
		}
		return data, origin, err
	}
	return nil, "", venverrors.Wrap(venverrors.ErrNetwork, nil, "no source provides %s", pkg.Filename)
}

// CloseIdleConnections releases pooled connections of network sources.
func (c Chain) CloseIdleConnections() {
	for _, src := range c {
		if n, ok := src.(*Network); ok {
			n.CloseIdleConnections()
		}
	}
}

// Cache is the on-disk download cache.
type Cache struct {
	dir    cachedir.Dir
	logger hclog.Logger
}

// NewCache uses the wheels directory of dir.
func NewCache(dir cachedir.Dir, logger hclog.Logger) *Cache {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Cache{dir: dir, logger: logger}
}

func (c *Cache) Fetch(_ context.Context, pkg *Package) ([]byte, Origin, error) {
	data, err := os.ReadFile(c.dir.Join(cachedir.WheelsDir, pkg.Filename))
	if err != nil {
		return nil, "", errNotFound
	}
	c.logger.Debug("💾 Using cached archive", "package", pkg.String())
	return data, OriginCache, nil
}

// Store saves a downloaded archive, never exposing a partial file.
func (c *Cache) Store(pkg *Package, data []byte) error {
	dir, err := c.dir.Ensure(cachedir.WheelsDir)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(dir, pkg.Filename), data, 0o644, c.logger)
}

// SourceConfig configures DefaultSource.
type SourceConfig struct {
	Cache   cachedir.Dir
	Offline bool
	Logger  hclog.Logger
}

// DefaultSource chains the embedded table, the executable's resources, the
// download cache and the network, in that order.
func DefaultSource(cfg SourceConfig) (Source, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	embedded, err := EmbeddedTable()
	if err != nil {
		return nil, err
	}
	logger.Debug("📦 Embedded archives loaded", "count", embedded.Len())
	cache := NewCache(cfg.Cache, logger.Named("cache"))

	chain := Chain{embedded}
	if exe, err := os.Executable(); err == nil {
		chain = append(chain, NewResourceSource(exe, logger.Named("resources")))
	}
	chain = append(chain, cache, NewNetwork(cache, cfg.Offline, logger.Named("network")))
	return chain, nil
}
