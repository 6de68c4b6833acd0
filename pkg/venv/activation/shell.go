package activation

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/provide-io/flavor/go/venv/pkg/shellparse"
)

// Shell is one activation script family. The set is closed: see Shells.
type Shell struct {
	Name string
	// files maps an output file name to its template.
	files map[string]string
	quote func(string) string
	// windowsOnly marks shells that only exist on Windows hosts.
	windowsOnly bool
	crlf        bool
}

// Supported reports whether the shell's scripts are generated on goos.
func (s Shell) Supported(goos string) bool {
	return !s.windowsOnly || goos == "windows"
}

// Files returns the output file names of the shell, sorted.
func (s Shell) Files() []string {
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	Bash = Shell{
		Name:  "bash",
		files: map[string]string{"activate": "activate.sh"},
		quote: shellparse.Quote,
	}
	CShell = Shell{
		Name:  "csh",
		files: map[string]string{"activate.csh": "activate.csh"},
		quote: shellparse.Quote,
	}
	Fish = Shell{
		Name:  "fish",
		files: map[string]string{"activate.fish": "activate.fish"},
		quote: shellparse.Quote,
	}
	Nushell = Shell{
		Name:  "nushell",
		files: map[string]string{"activate.nu": "activate.nu"},
		quote: nuQuote,
	}
	Batch = Shell{
		Name: "batch",
		files: map[string]string{
			"activate.bat":   "activate.bat",
			"deactivate.bat": "deactivate.bat",
			"pydoc.bat":      "pydoc.bat",
		},
		quote:       func(s string) string { return s },
		windowsOnly: true,
		crlf:        true,
	}
	PowerShell = Shell{
		Name:  "powershell",
		files: map[string]string{"activate.ps1": "activate.ps1"},
		quote: powershellQuote,
	}
	Python = Shell{
		Name:  "python",
		files: map[string]string{"activate_this.py": "activate_this.py"},
		quote: pythonRepr,
	}
)

// Shells lists every activation variant in generation order.
var Shells = []Shell{Bash, CShell, Fish, Nushell, Batch, PowerShell, Python}

// nuQuote renders a nushell raw string, r#'...'#, with one more # than the
// longest run of # in s.
func nuQuote(s string) string {
	longest, run := 0, 0
	for _, r := range s {
		if r == '#' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	hashes := strings.Repeat("#", longest+1)
	return "r" + hashes + "'" + s + "'" + hashes
}

// powershellQuote renders a single quoted PowerShell literal.
func powershellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// pythonRepr renders s the way Python's repr() renders a str: single quoted
// unless s holds a single quote and no double quote, with backslash escapes
// for the quote, backslash and non-printable characters.
func pythonRepr(s string) string {
	quote := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}

	var b strings.Builder
	b.WriteRune(quote)
	for _, r := range s {
		switch {
		case r == quote || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case unicode.IsPrint(r):
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	b.WriteRune(quote)
	return b.String()
}
