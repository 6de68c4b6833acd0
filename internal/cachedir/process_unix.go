//go:build !windows

package cachedir

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsProcessRunning checks if a process with given PID is still running
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 checks existence without delivering anything
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
