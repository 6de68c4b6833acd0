// Package descriptor writes and reads pyvenv.cfg, the file that marks a
// directory as a derived environment.
package descriptor

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/ini.v1"

	"github.com/provide-io/flavor/go/venv/internal/fsutil"
	"github.com/provide-io/flavor/go/venv/pkg/shellparse"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
	"github.com/provide-io/flavor/go/venv/pkg/venv/interpreter"
	"github.com/provide-io/flavor/go/venv/pkg/venv/layout"
)

// ToolKey names the key recording which tool created the environment.
const ToolKey = "flavor-venv"

// Entry is one key = value line.
type Entry struct {
	Key   string
	Value string
}

// Descriptor is an ordered pyvenv.cfg record.
type Descriptor struct {
	Entries []Entry
}

// Settings are the request-dependent descriptor values.
type Settings struct {
	SystemSitePackages bool
	// Prompt is only recorded when non-empty.
	Prompt      string
	CommandLine []string
	ToolVersion string
}

// New builds the descriptor for an environment laid out by paths.
func New(paths *layout.Paths, interp *interpreter.Interpreter, settings Settings) *Descriptor {
	d := &Descriptor{}
	d.set("home", filepath.Dir(interp.Executable))
	d.set("implementation", interp.Implementation)
	d.set("version_info", interp.Version.String())
	d.set(ToolKey, settings.ToolVersion)
	d.set("include-system-site-packages", strconv.FormatBool(settings.SystemSitePackages))
	d.set("base-prefix", interp.BasePrefix)
	d.set("base-exec-prefix", interp.BaseExecPrefix)
	d.set("base-executable", interp.Executable)
	d.set("command", shellparse.Join(settings.CommandLine))
	if settings.Prompt != "" {
		d.set("prompt", settings.Prompt)
	}
	return d
}

func (d *Descriptor) set(key, value string) {
	for i := range d.Entries {
		if d.Entries[i].Key == key {
			d.Entries[i].Value = value
			return
		}
	}
	d.Entries = append(d.Entries, Entry{Key: key, Value: value})
}

// Get returns the value of key.
func (d *Descriptor) Get(key string) (string, bool) {
	for _, e := range d.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Keys returns the keys in file order.
func (d *Descriptor) Keys() []string {
	keys := make([]string, len(d.Entries))
	for i, e := range d.Entries {
		keys[i] = e.Key
	}
	return keys
}

// Bytes renders the file content.
func (d *Descriptor) Bytes() []byte {
	var buf bytes.Buffer
	for _, e := range d.Entries {
		buf.WriteString(e.Key)
		buf.WriteString(" = ")
		buf.WriteString(sanitize(e.Value))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// sanitize keeps every value on a single line.
func sanitize(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

// Write atomically stores the descriptor at path.
func (d *Descriptor) Write(path string, logger hclog.Logger) error {
	if err := fsutil.WriteFileAtomic(path, d.Bytes(), 0o644, logger); err != nil {
		return venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot write %s", path)
	}
	logger.Debug("📝 Wrote environment descriptor", "path", path, "keys", len(d.Entries))
	return nil
}

// Parse reads descriptor content. Blank lines and lines starting with # or ;
// are ignored; values keep any inline # or quotes verbatim.
func Parse(data []byte) (*Descriptor, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		KeyValueDelimiters:      "=",
		PreserveSurroundedQuote: true,
		IgnoreContinuation:      true,
	}, data)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{}
	for _, key := range cfg.Section(ini.DefaultSection).Keys() {
		d.set(key.Name(), key.Value())
	}
	return d, nil
}

// Read loads the descriptor stored at path.
func Read(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot read %s", path)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, venverrors.Wrap(venverrors.ErrFilesystem, err, "cannot parse %s", path)
	}
	return d, nil
}
