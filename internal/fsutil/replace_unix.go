//go:build !windows

package fsutil

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
)

// ReplaceFile atomically moves sourcePath over destPath.
// On Unix, os.Rename is already atomic, so this is a simple wrapper.
func ReplaceFile(sourcePath, destPath string, logger hclog.Logger) error {
	logger.Trace("Performing atomic file replacement", "source", sourcePath, "dest", destPath)

	if err := os.Rename(sourcePath, destPath); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
