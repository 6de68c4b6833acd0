// Package shellparse splits and quotes command lines with POSIX shell word rules.
package shellparse

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrUnclosedQuote is returned when a quoted string is not properly closed
	ErrUnclosedQuote = errors.New("unclosed quote in command string")

	// ErrTrailingEscape is returned when a backslash appears at the end of input
	ErrTrailingEscape = errors.New("trailing escape character at end of command")
)

// Split parses a command string into arguments.
//
//	Split(`-p "/opt/my python/bin/python3" --no-wheel`) => ["-p", "/opt/my python/bin/python3", "--no-wheel"]
//	Split(`--prompt 'dev env'`)                       => ["--prompt", "dev env"]
func Split(input string) ([]string, error) {
	args := []string{}
	var (
		word     strings.Builder
		inWord   bool
		quote    rune
		escaping bool
	)

	for _, ch := range input {
		switch {
		case escaping:
			// Inside double quotes only a few characters are escapable
			if quote == '"' && !strings.ContainsRune("\"\\$`", ch) {
				word.WriteRune('\\')
			}
			word.WriteRune(ch)
			escaping = false
		case quote == '\'':
			if ch == '\'' {
				quote = 0
			} else {
				word.WriteRune(ch)
			}
		case ch == '\\':
			escaping = true
			inWord = true
		case quote == '"':
			if ch == '"' {
				quote = 0
			} else {
				word.WriteRune(ch)
			}
		case ch == '\'' || ch == '"':
			quote = ch
			inWord = true
		case unicode.IsSpace(ch):
			if inWord {
				args = append(args, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(ch)
			inWord = true
		}
	}

	if escaping {
		return nil, ErrTrailingEscape
	}
	if quote != 0 {
		kind := "single"
		if quote == '"' {
			kind = "double"
		}
		return nil, fmt.Errorf("%w: unclosed %s quote", ErrUnclosedQuote, kind)
	}
	if inWord {
		args = append(args, word.String())
	}
	return args, nil
}

// Join combines arguments into a POSIX shell command string, quoting as necessary.
func Join(args []string) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = Quote(arg)
	}
	return strings.Join(parts, " ")
}

// Quote returns s quoted for a POSIX shell. Strings made only of safe
// characters are returned unchanged; everything else is single quoted.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, unsafeRune) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func unsafeRune(r rune) bool {
	if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return false
	}
	return !strings.ContainsRune("@%+=:,./-_", r)
}
