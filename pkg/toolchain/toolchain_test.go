package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elrepack/elrepack/pkg/errors"
	"github.com/elrepack/elrepack/pkg/execx"
	"github.com/elrepack/elrepack/pkg/npm"
)

// provisionRunner fakes npm install against the toolchain cache. For every
// invocation it records whether the manifest on disk carried an overrides
// block, and either fails or materializes the tool executables.
type provisionRunner struct {
	t *testing.T

	failWithOverrides bool // fail any install run under an override manifest
	failAlways        bool
	skipBinaries      bool // succeed without creating executables

	calls         int
	overridesSeen []bool
}

func (r *provisionRunner) Run(ctx context.Context, cmd execx.Cmd) (execx.Result, error) {
	r.calls++

	pkg, err := npm.ReadPackage(filepath.Join(cmd.Dir, "package.json"))
	if err != nil {
		r.t.Fatalf("fake npm: no manifest in %s: %v", cmd.Dir, err)
	}
	hasOverrides := len(pkg.Overrides) > 0
	r.overridesSeen = append(r.overridesSeen, hasOverrides)

	if r.failAlways || (r.failWithOverrides && hasOverrides) {
		res := execx.Result{ExitCode: 1, Stderr: []byte("npm ERR! ERESOLVE unable to resolve dependency tree")}
		return res, &execx.ExitError{Cmd: cmd, Result: res}
	}

	if !r.skipBinaries {
		binDir := filepath.Join(cmd.Dir, "node_modules", ".bin")
		if err := os.MkdirAll(binDir, 0755); err != nil {
			r.t.Fatal(err)
		}
		for _, name := range []string{"asar", "electron-rebuild"} {
			if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\n"), 0755); err != nil {
				r.t.Fatal(err)
			}
		}
	}
	return execx.Result{}, nil
}

func newTestCache(t *testing.T, runner execx.Runner) *Cache {
	t.Helper()
	c := New(t.TempDir(), npm.NewClient(runner, nil), nil)
	return c
}

func TestEnsureProvisionsOnce(t *testing.T) {
	runner := &provisionRunner{t: t}
	c := newTestCache(t, runner)

	tools, err := c.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if tools.Asar != npm.BinPath(c.Root, "asar") {
		t.Errorf("Asar = %q", tools.Asar)
	}
	if runner.calls != 1 {
		t.Errorf("first Ensure ran %d installs, want 1", runner.calls)
	}

	// Second call is a no-op returning identical paths.
	again, err := c.Ensure(context.Background())
	if err != nil {
		t.Fatalf("second Ensure() error: %v", err)
	}
	if again != tools {
		t.Errorf("second Ensure() = %+v, want %+v", again, tools)
	}
	if runner.calls != 1 {
		t.Errorf("second Ensure ran installs; total %d, want 1", runner.calls)
	}
}

func TestEnsureOverrideThenFallback(t *testing.T) {
	runner := &provisionRunner{t: t, failWithOverrides: true}
	c := newTestCache(t, runner)

	if _, err := c.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}

	if runner.calls != 2 {
		t.Fatalf("ran %d installs, want 2 (override attempt + fallback)", runner.calls)
	}
	if !runner.overridesSeen[0] {
		t.Error("first attempt must carry the override manifest")
	}
	if runner.overridesSeen[1] {
		t.Error("fallback attempt must not carry overrides")
	}

	// The discarded policy stays discarded on disk.
	pkg, err := npm.ReadPackage(filepath.Join(c.Root, "package.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(pkg.Overrides) != 0 {
		t.Error("override manifest left behind after fallback")
	}
}

func TestEnsureFallbackFailureIsFatal(t *testing.T) {
	runner := &provisionRunner{t: t, failAlways: true}
	c := newTestCache(t, runner)

	_, err := c.Ensure(context.Background())
	if err == nil {
		t.Fatal("Ensure() expected error when both attempts fail")
	}
	if !errors.Is(err, errors.ErrCodeProvision) {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeProvision)
	}
	// The fallback's captured output is surfaced.
	if msg := err.Error(); !strings.Contains(msg, "ERESOLVE") {
		t.Errorf("error should carry npm output, got %q", msg)
	}
	if runner.calls != 2 {
		t.Errorf("ran %d installs, want exactly 2 (no further retries)", runner.calls)
	}
}

func TestEnsureRejectsPartialSuccess(t *testing.T) {
	runner := &provisionRunner{t: t, skipBinaries: true}
	c := newTestCache(t, runner)

	_, err := c.Ensure(context.Background())
	if err == nil {
		t.Fatal("Ensure() must not accept an install that produced no executables")
	}
	if !errors.Is(err, errors.ErrCodeProvision) {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeProvision)
	}
}

func TestValid(t *testing.T) {
	c := newTestCache(t, &provisionRunner{t: t})
	if c.Valid() {
		t.Error("Valid() = true for empty cache")
	}

	binDir := filepath.Join(c.Root, "node_modules", ".bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		t.Fatal(err)
	}
	// Only one of the two tools present: still invalid.
	if err := os.WriteFile(filepath.Join(binDir, "asar"), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	if c.Valid() {
		t.Error("Valid() = true with only one executable")
	}

	if err := os.WriteFile(filepath.Join(binDir, "electron-rebuild"), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	if !c.Valid() {
		t.Error("Valid() = false with both executables present")
	}
}
