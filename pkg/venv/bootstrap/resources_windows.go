//go:build windows

package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/hashicorp/go-hclog"
	"github.com/tc-hib/winres"
	"golang.org/x/sys/windows"

	"github.com/provide-io/flavor/go/venv/internal/fsutil"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

// resourceLang is the language ID (0x0409 = en-US)
const resourceLang = 0x0409

// EmbedWheelResource stores the wheel at wheelPath as an RCDATA resource of
// the executable at exePath, so later runs can install it without a network.
func EmbedWheelResource(exePath, wheelPath string, logger hclog.Logger) error {
	data, err := os.ReadFile(wheelPath)
	if err != nil {
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot read %s", wheelPath)
	}
	name := ResourceName(filepath.Base(wheelPath))

	logger.Info("📦 Embedding wheel as PE resource", "exe", exePath, "resource", name, "size", len(data))

	inputFile, err := os.Open(exePath)
	if err != nil {
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot open %s", exePath)
	}
	rs, err := winres.LoadFromEXE(inputFile)
	if err != nil {
		logger.Debug("Creating new resource set (no existing resources)")
		rs = &winres.ResourceSet{}
	}
	// Explicit close, Windows keeps the file locked otherwise
	if err := inputFile.Close(); err != nil {
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot close %s", exePath)
	}

	if err := rs.Set(winres.RT_RCDATA, winres.Name(name), resourceLang, data); err != nil {
		return fmt.Errorf("failed to set resource %s: %w", name, err)
	}

	// CRITICAL: No defer, files must be closed before the replacement
	in, err := os.Open(exePath)
	if err != nil {
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot open %s", exePath)
	}
	tmpPath := exePath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		in.Close()
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot create %s", tmpPath)
	}

	if err := rs.WriteToEXE(out, in); err != nil {
		out.Close()
		in.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write resources to EXE: %w", err)
	}
	if err := out.Close(); err != nil {
		in.Close()
		os.Remove(tmpPath)
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot close %s", tmpPath)
	}
	if err := in.Close(); err != nil {
		os.Remove(tmpPath)
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot close %s", exePath)
	}

	if err := fsutil.ReplaceFile(tmpPath, exePath, logger); err != nil {
		os.Remove(tmpPath)
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot replace %s", exePath)
	}

	logger.Info("✅ Wheel embedded", "exe", exePath, "resource", name)
	return nil
}

// readWheelResource loads an RCDATA wheel from exePath without executing it.
func readWheelResource(exePath, filename string, logger hclog.Logger) ([]byte, error) {
	handle, err := windows.LoadLibraryEx(exePath, 0, windows.LOAD_LIBRARY_AS_DATAFILE)
	if err != nil {
		return nil, fmt.Errorf("failed to load EXE as data file: %w", err)
	}
	defer windows.FreeLibrary(handle)

	name := ResourceName(filename)
	resInfo, err := windows.FindResource(handle, name, windows.RT_RCDATA)
	if err != nil {
		return nil, errNotFound
	}

	resData, err := windows.LoadResource(handle, resInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to load resource data: %w", err)
	}
	size, err := windows.SizeofResource(handle, resInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to get resource size: %w", err)
	}
	if size == 0 {
		return nil, fmt.Errorf("resource %s has zero size", name)
	}
	ptr, err := windows.LockResource(resData)
	if err != nil {
		return nil, fmt.Errorf("failed to lock resource: %w", err)
	}
	if ptr == 0 {
		return nil, fmt.Errorf("lock resource returned null pointer")
	}

	// Resource memory is read-only and freed with the module, copy it out
	data := make([]byte, size)
	copy(data, unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size))

	logger.Debug("📦 Read wheel from PE resources", "resource", name, "size", size)
	return data, nil
}
