// Package activation renders the per-shell scripts that put an environment
// on PATH.
package activation

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
	"github.com/provide-io/flavor/go/venv/pkg/venv/layout"
)

//go:embed templates/*
var templateFS embed.FS

var templates = loadTemplates()

func loadTemplates() map[string]string {
	out := map[string]string{}
	for _, shell := range Shells {
		for _, name := range shell.files {
			data, err := templateFS.ReadFile("templates/" + name)
			if err != nil {
				panic(fmt.Sprintf("activation template %s missing: %v", name, err))
			}
			out[name] = string(data)
		}
	}
	return out
}

// Vars are the values substituted into templates. Each shell quotes them.
type Vars struct {
	VirtualEnv string
	// Prompt is empty when the scripts should use the environment's name.
	Prompt     string
	BinName    string
	PathSep    string
	LibFolders string
}

// VarsFor derives template values from an environment layout.
func VarsFor(paths *layout.Paths, prompt string) Vars {
	return Vars{
		VirtualEnv: paths.Root,
		Prompt:     prompt,
		BinName:    paths.BinName,
		PathSep:    paths.PathSep,
		LibFolders: paths.RelativeSitePackages(),
	}
}

// Render instantiates every template of shell. It has no side effects.
func Render(shell Shell, vars Vars) map[string]string {
	replacer := strings.NewReplacer(
		"__VIRTUAL_ENV__", shell.quote(vars.VirtualEnv),
		"__VIRTUAL_PROMPT__", shell.quote(vars.Prompt),
		"__BIN_NAME__", shell.quote(vars.BinName),
		"__PATH_SEP__", shell.quote(vars.PathSep),
		"__LIB_FOLDERS__", shell.quote(vars.LibFolders),
	)

	out := make(map[string]string, len(shell.files))
	for name, tmpl := range shell.files {
		content := replacer.Replace(templates[tmpl])
		if shell.crlf {
			content = strings.ReplaceAll(content, "\n", "\r\n")
		}
		out[name] = content
	}
	return out
}

// Generate writes the scripts of every shell supported on paths.GOOS into
// the executables directory and returns the written paths.
func Generate(paths *layout.Paths, prompt string, logger hclog.Logger) ([]string, error) {
	vars := VarsFor(paths, prompt)
	var written []string

	for _, shell := range Shells {
		if !shell.Supported(paths.GOOS) {
			logger.Trace("Skipping activation scripts", "shell", shell.Name, "goos", paths.GOOS)
			continue
		}
		rendered := Render(shell, vars)
		for _, name := range shell.Files() {
			path := filepath.Join(paths.Bin, name)
			if err := os.WriteFile(path, []byte(rendered[name]), 0o644); err != nil {
				return written, venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot write %s", path)
			}
			written = append(written, path)
		}
	}

	logger.Debug("🐚 Activation scripts generated", "count", len(written), "dir", paths.Bin)
	return written, nil
}
