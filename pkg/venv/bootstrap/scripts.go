package bootstrap

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/provide-io/flavor/go/venv/pkg/shellparse"
	"github.com/provide-io/flavor/go/venv/pkg/venv/interpreter"
	"github.com/provide-io/flavor/go/venv/pkg/venv/layout"
)

// maxShebangLength is the longest "#!" line kernels reliably accept.
const maxShebangLength = 127

var pipVersioned = regexp.MustCompile(`^pip\d`)

type script struct {
	path    string
	content []byte
}

// entryPoint is a "module:attr.path" reference, extras stripped.
type entryPoint struct {
	module string
	attrs  []string
}

func parseEntryPoint(value string) (entryPoint, error) {
	value = strings.TrimSpace(value)
	if i := strings.Index(value, "["); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	module, attr, ok := strings.Cut(value, ":")
	module, attr = strings.TrimSpace(module), strings.TrimSpace(attr)
	if !ok || module == "" || attr == "" {
		return entryPoint{}, fmt.Errorf("invalid console script reference %q", value)
	}
	return entryPoint{module: module, attrs: strings.Split(attr, ".")}, nil
}

// consoleScripts reads [console_scripts] from entry_points.txt. pip's
// versioned names are regenerated for the target interpreter.
func (w *wheel) consoleScripts(paths *layout.Paths, interp *interpreter.Interpreter) ([]script, error) {
	data, err := w.read(w.distInfo + "/entry_points.txt")
	if err != nil {
		return nil, nil
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:      "=",
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("%s: parsing entry_points.txt: %w", w.pkg.Filename, err)
	}
	section, err := cfg.GetSection("console_scripts")
	if err != nil {
		return nil, nil
	}

	entries := map[string]string{}
	for _, key := range section.Keys() {
		entries[key.Name()] = key.Value()
	}
	if w.pkg.Name == "pip" {
		if ref, ok := entries["pip"]; ok {
			for name := range entries {
				if pipVersioned.MatchString(name) {
					delete(entries, name)
				}
			}
			entries[fmt.Sprintf("pip%d", interp.Version.Major)] = ref
			entries["pip"+interp.Version.Short()] = ref
		}
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []script
	for _, name := range names {
		ep, err := parseEntryPoint(entries[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", w.pkg.Filename, name, err)
		}
		file := name
		if paths.GOOS == "windows" {
			file = name + "-script.py"
		}
		out = append(out, script{
			path:    filepath.Join(paths.Bin, file),
			content: []byte(launcher(paths.Python(), ep)),
		})
	}
	return out, nil
}

// shebang returns the interpreter line(s) for python. Paths the kernel cannot
// take directly are started through /bin/sh.
func shebang(python string) string {
	if !strings.ContainsAny(python, " \t") && len(python)+2 <= maxShebangLength {
		return "#!" + python
	}
	return "#!/bin/sh\n'''exec' " + shellparse.Quote(python) + ` "$0" "$@"` + "\n' '''"
}

func launcher(python string, ep entryPoint) string {
	call := strings.Join(ep.attrs, ".")
	return shebang(python) + "\n" +
		"# -*- coding: utf-8 -*-\n" +
		"import re\n" +
		"import sys\n" +
		fmt.Sprintf("from %s import %s\n", ep.module, ep.attrs[0]) +
		"if __name__ == \"__main__\":\n" +
		"    sys.argv[0] = re.sub(r\"(-script\\.pyw|\\.exe)?$\", \"\", sys.argv[0])\n" +
		fmt.Sprintf("    sys.exit(%s())\n", call)
}
