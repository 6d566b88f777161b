package execx

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLocalRunCapturesOutput(t *testing.T) {
	r := NewLocal()

	res, err := r.Run(context.Background(), Cmd{
		Path: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "out" {
		t.Errorf("Stdout = %q, want %q", got, "out")
	}
	if got := strings.TrimSpace(string(res.Stderr)); got != "err" {
		t.Errorf("Stderr = %q, want %q", got, "err")
	}
}

func TestLocalRunNonZeroExit(t *testing.T) {
	r := NewLocal()

	res, err := r.Run(context.Background(), Cmd{
		Path: "sh",
		Args: []string{"-c", "echo diagnostics >&2; exit 3"},
	})
	if err == nil {
		t.Fatal("Run() expected error for non-zero exit")
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %T, want *ExitError", err)
	}
	if exitErr.Result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", exitErr.Result.ExitCode)
	}

	// Captured output survives the failure so callers can surface it later.
	if got := res.Output(); got != "diagnostics" {
		t.Errorf("Output() = %q, want %q", got, "diagnostics")
	}
}

func TestLocalRunMissingBinary(t *testing.T) {
	r := NewLocal()

	_, err := r.Run(context.Background(), Cmd{Path: "definitely-not-a-binary-xyz"})
	if err == nil {
		t.Fatal("Run() expected error for missing binary")
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Error("missing binary should not produce an ExitError")
	}
}

func TestLocalRunWorkingDirectory(t *testing.T) {
	r := NewLocal()
	dir := t.TempDir()

	res, err := r.Run(context.Background(), Cmd{
		Path: "pwd",
		Dir:  dir,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != dir {
		t.Errorf("pwd = %q, want %q", got, dir)
	}
}

func TestResultOutputPrefersStderr(t *testing.T) {
	res := Result{Stdout: []byte("stdout\n"), Stderr: []byte("stderr\n")}
	if got := res.Output(); got != "stderr" {
		t.Errorf("Output() = %q, want %q", got, "stderr")
	}

	res = Result{Stdout: []byte("only stdout\n")}
	if got := res.Output(); got != "only stdout" {
		t.Errorf("Output() = %q, want %q", got, "only stdout")
	}
}

func TestCmdString(t *testing.T) {
	c := Cmd{Path: "npm", Args: []string{"install", "--ignore-scripts"}}
	if got := c.String(); got != "npm install --ignore-scripts" {
		t.Errorf("String() = %q", got)
	}
}
