//go:build !windows

package bootstrap

import (
	"github.com/hashicorp/go-hclog"

	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

// EmbedWheelResource is only supported on Windows.
func EmbedWheelResource(exePath, wheelPath string, logger hclog.Logger) error {
	return venverrors.Wrap(venverrors.ErrInvalidArgs, nil, "PE resource embedding is only supported on Windows")
}

func readWheelResource(exePath, filename string, logger hclog.Logger) ([]byte, error) {
	return nil, errNotFound
}
