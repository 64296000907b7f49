// Package command runs external tools and captures their output.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrFailed marks failures of an external tool.
var ErrFailed = errors.New("external tool failed")

// Result is the captured outcome of one process execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 - tool paths come from configuration
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// Error describes a failed tool invocation. It is logged, never shown to clients.
type Error struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s exited with %d: %s", e.Tool, e.ExitCode, tail(e.Stderr, 400))
}

// Unwrap exposes both ErrFailed and the underlying process error.
func (e *Error) Unwrap() []error {
	return []error{ErrFailed, e.Err}
}

// Run invokes runner and converts a failure into *Error.
func Run(ctx context.Context, runner Runner, tool string, args ...string) (Result, error) {
	res, err := runner.Run(ctx, tool, args...)
	if err != nil {
		return res, &Error{Tool: tool, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	return res, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
