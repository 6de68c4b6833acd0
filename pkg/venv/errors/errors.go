// Package errors declares the error categories reported by the environment builder.
package errors

import (
	"errors"
	"fmt"
)

var (
	// Interpreter errors 🐍
	ErrInterpreterNotFound    = errors.New("interpreter not found")
	ErrUnsupportedInterpreter = errors.New("unsupported interpreter")

	// Tree errors 📁
	ErrFilesystem = errors.New("filesystem error")

	// Bootstrap errors 📦
	ErrBootstrapInstall = errors.New("bootstrap install failed")
	ErrNetwork          = errors.New("network error")

	// CLI errors
	ErrInvalidArgs = errors.New("invalid arguments")
)

// Exit codes reported by the command line front end.
const (
	ExitFailure                = 1
	ExitInterpreterNotFound    = 102
	ExitUnsupportedInterpreter = 103
	ExitFilesystem             = 104
	ExitBootstrapInstall       = 105
	ExitNetwork                = 106
	ExitInvalidArgs            = 107
)

var categories = []struct {
	err  error
	code int
}{
	{ErrInterpreterNotFound, ExitInterpreterNotFound},
	{ErrUnsupportedInterpreter, ExitUnsupportedInterpreter},
	{ErrFilesystem, ExitFilesystem},
	{ErrBootstrapInstall, ExitBootstrapInstall},
	{ErrNetwork, ExitNetwork},
	{ErrInvalidArgs, ExitInvalidArgs},
}

// Wrap tags cause with the category sentinel. Both stay reachable through errors.Is.
func Wrap(category, cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return fmt.Errorf("%w: %s", category, msg)
	}
	return fmt.Errorf("%w: %s: %w", category, msg, cause)
}

// Category returns the first category sentinel err belongs to, or nil.
func Category(err error) error {
	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.err
		}
	}
	return nil
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ExitFailure
}
