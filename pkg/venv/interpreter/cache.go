package interpreter

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/provide-io/flavor/go/venv/internal/cachedir"
	"github.com/provide-io/flavor/go/venv/internal/fsutil"
)

// cacheEntry is one interpreter-info file. It is valid while the executable's
// path and modification time are unchanged.
type cacheEntry struct {
	Path  string       `json:"path"`
	MTime int64        `json:"mtime"`
	Info  *Interpreter `json:"info"`
}

type infoCache struct {
	dir    cachedir.Dir
	logger hclog.Logger
}

func (c *infoCache) entryPath(exe string) string {
	return c.dir.Join(cachedir.InterpreterInfoDir, cachedir.Key(exe)+".json")
}

func (c *infoCache) load(exe string, mtime int64) *Interpreter {
	path := c.entryPath(exe)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Info == nil || checkQueryInfo(entry.Info) != nil {
		c.logger.Warn("⚠️ Removing broken interpreter cache entry", "path", path, "error", err)
		if err := os.Remove(path); err != nil {
			c.logger.Warn("Failed to remove cache entry", "path", path, "error", err)
		}
		return nil
	}

	if entry.Path != exe || entry.MTime != mtime {
		c.logger.Debug("Interpreter cache entry is stale", "path", path)
		return nil
	}

	info := *entry.Info
	info.Source = SourceCache
	return &info
}

func (c *infoCache) store(exe string, mtime int64, info *Interpreter) {
	dir, err := c.dir.Ensure(cachedir.InterpreterInfoDir)
	if err != nil {
		c.logger.Warn("⚠️ Interpreter cache unavailable", "error", err)
		return
	}

	data, err := json.MarshalIndent(cacheEntry{Path: exe, MTime: mtime, Info: info}, "", "  ")
	if err != nil {
		c.logger.Warn("Failed to encode interpreter cache entry", "error", err)
		return
	}

	path := filepath.Join(dir, filepath.Base(c.entryPath(exe)))
	if err := fsutil.WriteFileAtomic(path, data, 0o644, c.logger); err != nil {
		c.logger.Warn("⚠️ Failed to write interpreter cache entry", "path", path, "error", err)
		return
	}
	c.logger.Debug("💾 Cached interpreter info", "path", path)
}
