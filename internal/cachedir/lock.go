package cachedir

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("lock held by another process")

// Lock is a PID lock file.
type Lock struct {
	path   string
	logger hclog.Logger
}

// TryLock takes an exclusive lock named after target. Locks left behind by
// dead processes are taken over.
func (d Dir) TryLock(target string, logger hclog.Logger) (*Lock, error) {
	dir, err := d.Ensure(LocksDir)
	if err != nil {
		return nil, err
	}
	lockPath := filepath.Join(dir, Key(target)+".lock")

	// Check for stale lock first
	if data, err := os.ReadFile(lockPath); err == nil {
		logger.Debug("🔍 Lock file exists, checking if it's stale...", "path", lockPath)
		contents := strings.TrimSpace(string(data))
		if oldPid, err := strconv.Atoi(contents); err == nil && oldPid != os.Getpid() {
			if IsProcessRunning(oldPid) {
				logger.Debug("🔒 Lock held by active process", "pid", oldPid)
				return nil, fmt.Errorf("%w (pid %d)", ErrLocked, oldPid)
			}
			logger.Info("🧹 Removing stale lock from dead process", "pid", oldPid)
		} else {
			logger.Info("🧹 Removing invalid lock file")
		}
		if err := takeOver(lockPath, data, logger); err != nil {
			return nil, err
		}
	}

	if err := publish(lockPath); err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, err
	}

	logger.Debug("🔒 Acquired target lock", "target", target, "pid", os.Getpid())
	return &Lock{path: lockPath, logger: logger}, nil
}

// publish creates lockPath holding our PID. The content is written to a
// private file first and hard linked into place, so the lock is never seen
// empty and the link fails if the lock already exists.
func publish(lockPath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(lockPath), filepath.Base(lockPath)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = fmt.Fprintf(tmp, "%d\n", os.Getpid())
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	return os.Link(tmp.Name(), lockPath)
}

// takeOver moves a stale lock aside. Only the move that carries the contents
// judged stale counts: when another process replaced the lock in between,
// the moved lock is linked back and ErrLocked is returned.
func takeOver(lockPath string, stale []byte, logger hclog.Logger) error {
	placeholder, err := os.CreateTemp(filepath.Dir(lockPath), filepath.Base(lockPath)+".*.stale")
	if err != nil {
		return err
	}
	placeholder.Close()
	aside := placeholder.Name()

	if err := os.Rename(lockPath, aside); err != nil {
		os.Remove(aside)
		if os.IsNotExist(err) {
			// Someone else moved it, publish decides who wins
			return nil
		}
		return err
	}
	defer os.Remove(aside)

	moved, err := os.ReadFile(aside)
	if err != nil {
		return err
	}
	if bytes.Equal(moved, stale) {
		return nil
	}
	if err := os.Link(aside, lockPath); err != nil && !os.IsExist(err) {
		logger.Warn("⚠️ Failed to restore a live lock", "path", lockPath, "error", err)
	}
	return ErrLocked
}

// Release removes the lock file.
func (l *Lock) Release() {
	if err := os.Remove(l.path); err != nil {
		l.logger.Debug("⚠️ Failed to remove lock file", "error", err)
		return
	}
	l.logger.Debug("🔓 Released target lock")
}
