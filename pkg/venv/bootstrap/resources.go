package bootstrap

import (
	"context"
	"errors"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// ResourceName is the RCDATA resource name a wheel is stored under.
func ResourceName(filename string) string {
	return "WHEEL:" + strings.ToUpper(filename)
}

// ResourceSource reads wheels embedded as PE resources of an executable.
// It never finds anything outside Windows.
type ResourceSource struct {
	exe    string
	logger hclog.Logger
}

// NewResourceSource reads resources of exe.
func NewResourceSource(exe string, logger hclog.Logger) *ResourceSource {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ResourceSource{exe: exe, logger: logger}
}

func (r *ResourceSource) Fetch(_ context.Context, pkg *Package) ([]byte, Origin, error) {
	data, err := readWheelResource(r.exe, pkg.Filename, r.logger)
	if err != nil {
		if !errors.Is(err, errNotFound) {
			r.logger.Debug("Resource lookup failed", "package", pkg.String(), "error", err)
		}
		return nil, "", errNotFound
	}
	return data, OriginResource, nil
}
