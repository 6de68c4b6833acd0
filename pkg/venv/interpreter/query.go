package interpreter

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

//go:embed query_python.py
var queryScript []byte

// DefaultQueryTimeout bounds the interpreter subprocess.
const DefaultQueryTimeout = 10 * time.Second

// queryResult is the JSON document printed by query_python.py.
type queryResult struct {
	Executable     *string `json:"executable"`
	BaseExecutable *string `json:"base_executable"`
	Prefix         *string `json:"prefix"`
	BasePrefix     *string `json:"base_prefix"`
	BaseExecPrefix *string `json:"base_exec_prefix"`
	Implementation *string `json:"implementation"`
	Major          *int    `json:"major"`
	Minor          *int    `json:"minor"`
	Micro          *int    `json:"micro"`
	ReleaseLevel   *string `json:"releaselevel"`
	Serial         *int    `json:"serial"`
	ABITag         *string `json:"abi_tag"`
	Pointer64      *bool   `json:"pointer64"`
}

func (q *queryResult) interpreter() (*Interpreter, error) {
	if q.Executable == nil || q.BaseExecutable == nil || q.Prefix == nil || q.BasePrefix == nil ||
		q.BaseExecPrefix == nil || q.Implementation == nil || q.Major == nil || q.Minor == nil ||
		q.Micro == nil || q.ReleaseLevel == nil || q.Serial == nil || q.ABITag == nil || q.Pointer64 == nil {
		return nil, fmt.Errorf("interpreter info is missing fields")
	}

	info := &Interpreter{
		Executable: *q.Executable,
		Version: Version{
			Major:        *q.Major,
			Minor:        *q.Minor,
			Micro:        *q.Micro,
			ReleaseLevel: *q.ReleaseLevel,
			Serial:       *q.Serial,
		},
		Implementation: *q.Implementation,
		ABITag:         *q.ABITag,
		BasePrefix:     *q.BasePrefix,
		BaseExecPrefix: *q.BaseExecPrefix,
		Pointer64:      *q.Pointer64,
		Source:         SourceQuery,
	}
	// Running inside a derived environment: describe its base instead
	if *q.Prefix != *q.BasePrefix {
		info.Executable = *q.BaseExecutable
		info.Derived = true
		info.DerivedFrom = *q.Prefix
	}
	return info, checkQueryInfo(info)
}

// checkQueryInfo rejects structurally invalid facts. Implementation and
// version policy is applied later by Validate.
func checkQueryInfo(info *Interpreter) error {
	switch {
	case info.Executable == "":
		return fmt.Errorf("interpreter info has an empty executable")
	case info.Implementation == "":
		return fmt.Errorf("interpreter info has an empty implementation")
	case info.BasePrefix == "" || info.BaseExecPrefix == "":
		return fmt.Errorf("interpreter info has an empty base prefix")
	case !releaseLevels[info.Version.ReleaseLevel]:
		return fmt.Errorf("interpreter info has release level %q", info.Version.ReleaseLevel)
	case info.Version.Major < 0 || info.Version.Minor < 0 || info.Version.Micro < 0:
		return fmt.Errorf("interpreter info has a negative version component")
	}
	return nil
}

// query runs the embedded introspection script with exe, isolated from the
// user's site and environment (-I).
func query(ctx context.Context, exe string, timeout time.Duration) (*Interpreter, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, exe, "-I", "-")
	cmd.Stdin = bytes.NewReader(queryScript)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, err,
			"querying %s failed: %s", exe, strings.TrimSpace(stderr.String()))
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return nil, venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, nil,
			"querying %s wrote to stderr: %s", exe, msg)
	}

	var result queryResult
	dec := json.NewDecoder(bytes.NewReader(stdout.Bytes()))
	if err := dec.Decode(&result); err != nil {
		return nil, venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, err,
			"querying %s returned invalid JSON", exe)
	}
	if dec.More() {
		return nil, venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, nil,
			"querying %s returned trailing output", exe)
	}

	info, err := result.interpreter()
	if err != nil {
		return nil, venverrors.Wrap(venverrors.ErrUnsupportedInterpreter, err, "querying %s", exe)
	}
	return info, nil
}
