//go:build !windows

package fsutil

import "golang.org/x/sys/unix"

// AvailableSpace returns the bytes available to an unprivileged user on the
// volume holding path.
func AvailableSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
