// Package execx runs external processes and captures their outcome as data.
//
// Every invocation is described by a [Cmd] and produces a [Result] carrying
// the exit status and the captured stdout/stderr. Callers decide when
// captured output is surfaced to the user; nothing is streamed or redirected
// implicitly. The [Runner] interface exists so pipeline stages can be tested
// against fakes without spawning processes.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Cmd describes a single external process invocation.
type Cmd struct {
	Path string   // Executable path or name resolved via PATH
	Args []string // Arguments, not including the executable itself
	Dir  string   // Working directory ("" = inherit)
	Env  []string // Extra environment entries appended to os.Environ()
}

// String renders the invocation for log lines.
func (c Cmd) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Result carries the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Output returns the captured output for diagnostics, preferring stderr.
// The result is trimmed; an empty string means the process wrote nothing.
func (r Result) Output() string {
	out := strings.TrimSpace(string(r.Stderr))
	if out == "" {
		out = strings.TrimSpace(string(r.Stdout))
	}
	return out
}

// ExitError is returned when a process starts but exits non-zero.
// It retains the full Result so callers can apply their own output policy,
// e.g. suppress a first attempt and only surface output when the fallback
// also fails.
type ExitError struct {
	Cmd    Cmd
	Result Result
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Cmd.String(), e.Result.ExitCode)
}

// Runner executes commands. Implementations must be safe for sequential
// reuse; the pipeline never runs two commands concurrently.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// Local runs commands on the host via os/exec, capturing output in memory.
type Local struct{}

// NewLocal creates a host-process runner.
func NewLocal() *Local {
	return &Local{}
}

// Run executes cmd and blocks until it finishes. The returned Result is
// valid even when err is non-nil, as long as the process actually started.
func (l *Local) Run(ctx context.Context, cmd Cmd) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{Cmd: cmd, Result: res}
		}
		// The process never started (missing binary, bad dir, cancelled ctx).
		return res, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	return res, nil
}

// LookPath resolves a binary name against PATH.
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Ensure Local implements Runner.
var _ Runner = (*Local)(nil)
