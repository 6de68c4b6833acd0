package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_KeepsCategoryAndCause(t *testing.T) {
	err := Wrap(ErrFilesystem, fs.ErrPermission, "cannot create %s", "/venv/bin")

	assert.ErrorIs(t, err, ErrFilesystem)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, "filesystem error: cannot create /venv/bin: permission denied", err.Error())
}

func TestWrap_NilCause(t *testing.T) {
	err := Wrap(ErrInvalidArgs, nil, "target path is empty")

	assert.ErrorIs(t, err, ErrInvalidArgs)
	assert.Equal(t, "invalid arguments: target path is empty", err.Error())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{ErrInterpreterNotFound, 102},
		{fmt.Errorf("probe: %w", ErrUnsupportedInterpreter), 103},
		{Wrap(ErrFilesystem, nil, "x"), 104},
		{Wrap(ErrBootstrapInstall, nil, "x"), 105},
		{Wrap(ErrNetwork, nil, "x"), 106},
		{ErrInvalidArgs, 107},
		{errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "error: %v", tt.err)
	}
}

func TestCategory(t *testing.T) {
	assert.Equal(t, ErrNetwork, Category(Wrap(ErrNetwork, errors.New("dial tcp"), "fetch failed")))
	assert.Nil(t, Category(errors.New("uncategorized")))
}
