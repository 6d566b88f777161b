package asar

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/elrepack/elrepack/pkg/execx"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}

// buildTree creates a representative app tree: regular files, a nested
// directory, a symlink, an executable, and one shared-library member.
func buildTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"app","version":"1.0.0"}`, 0644)
	writeFile(t, filepath.Join(dir, "index.js"), "require('./lib/util')\n", 0644)
	writeFile(t, filepath.Join(dir, "lib", "util.js"), "module.exports = 1\n", 0644)
	writeFile(t, filepath.Join(dir, "bin", "helper"), "#!/bin/sh\nexit 0\n", 0755)
	writeFile(t, filepath.Join(dir, "native", "addon.node"), "\x7fELF-ish binary\x00payload", 0755)
	if err := os.Symlink("util.js", filepath.Join(dir, "lib", "alias.js")); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRoundTrip(t *testing.T) {
	src := buildTree(t)
	work := t.TempDir()
	archive := filepath.Join(work, "app.asar")

	a := NewArchiver("", nil, nil)
	if err := a.Pack(context.Background(), src, archive, []string{"*.node"}); err != nil {
		t.Fatalf("Pack() error: %v", err)
	}

	// The binary-library member must be externally addressable, not only
	// inside the container.
	unpacked := filepath.Join(UnpackedDir(archive), "native", "addon.node")
	data, err := os.ReadFile(unpacked)
	if err != nil {
		t.Fatalf("unpacked member not addressable as sibling: %v", err)
	}
	if !bytes.Equal(data, []byte("\x7fELF-ish binary\x00payload")) {
		t.Error("unpacked member content mismatch")
	}

	dest := filepath.Join(work, "out")
	if err := a.Extract(context.Background(), archive, dest); err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	// All regular file contents reproduce exactly.
	for rel, want := range map[string]string{
		"package.json":      `{"name":"app","version":"1.0.0"}`,
		"index.js":          "require('./lib/util')\n",
		"lib/util.js":       "module.exports = 1\n",
		"bin/helper":        "#!/bin/sh\nexit 0\n",
		"native/addon.node": "\x7fELF-ish binary\x00payload",
	} {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		if err != nil {
			t.Errorf("%s: %v", rel, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", rel, got, want)
		}
	}

	// Executable bit survives the round trip.
	info, err := os.Stat(filepath.Join(dest, "bin", "helper"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&0111 == 0 {
		t.Error("executable bit lost")
	}

	// Symlink survives as a symlink.
	link, err := os.Readlink(filepath.Join(dest, "lib", "alias.js"))
	if err != nil || link != "util.js" {
		t.Errorf("symlink = %q, err %v", link, err)
	}
}

func TestExtractMissingUnpackedSiblingIsSkipped(t *testing.T) {
	src := buildTree(t)
	work := t.TempDir()
	archive := filepath.Join(work, "app.asar")

	a := NewArchiver("", nil, nil)
	if err := a.Pack(context.Background(), src, archive, []string{"*.node"}); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(UnpackedDir(archive)); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(work, "out")
	if err := a.Extract(context.Background(), archive, dest); err != nil {
		t.Fatalf("Extract() with missing sibling: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "native", "addon.node")); !os.IsNotExist(err) {
		t.Error("member without unpacked source should be skipped")
	}
	if _, err := os.Stat(filepath.Join(dest, "index.js")); err != nil {
		t.Error("inlined members must still extract")
	}
}

func TestList(t *testing.T) {
	src := buildTree(t)
	archive := filepath.Join(t.TempDir(), "app.asar")

	a := NewArchiver("", nil, nil)
	if err := a.Pack(context.Background(), src, archive, nil); err != nil {
		t.Fatal(err)
	}

	got, err := List(archive)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	want := []string{
		"bin", "bin/helper", "index.js", "lib", "lib/alias.js", "lib/util.js",
		"native", "native/addon.node", "package.json",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestPackReplacesStaleUnpackedSibling(t *testing.T) {
	src := buildTree(t)
	archive := filepath.Join(t.TempDir(), "app.asar")

	stale := filepath.Join(UnpackedDir(archive), "old", "leftover.node")
	writeFile(t, stale, "stale", 0644)

	a := NewArchiver("", nil, nil)
	if err := a.Pack(context.Background(), src, archive, []string{"*.node"}); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale unpacked sibling survived repack")
	}
}

func TestExtractRejectsCorruptHeader(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "bad.asar")
	writeFile(t, archive, "not an asar at all, truly", 0644)

	a := NewArchiver("", nil, nil)
	err := a.Extract(context.Background(), archive, t.TempDir())
	if err == nil {
		t.Fatal("Extract() accepted a corrupt archive")
	}
}

// failingRunner simulates a broken pinned tool so the fallback path runs.
type failingRunner struct{ calls int }

func (r *failingRunner) Run(ctx context.Context, cmd execx.Cmd) (execx.Result, error) {
	r.calls++
	res := execx.Result{ExitCode: 1, Stderr: []byte("tool exploded")}
	return res, &execx.ExitError{Cmd: cmd, Result: res}
}

func TestToolFallbackToNativeCodec(t *testing.T) {
	src := buildTree(t)
	work := t.TempDir()
	archive := filepath.Join(work, "app.asar")

	runner := &failingRunner{}
	a := NewArchiver("/cache/bin/asar", runner, nil)

	if err := a.Pack(context.Background(), src, archive, nil); err != nil {
		t.Fatalf("Pack() should fall back to native codec: %v", err)
	}
	if err := a.Extract(context.Background(), archive, filepath.Join(work, "out")); err != nil {
		t.Fatalf("Extract() should fall back to native codec: %v", err)
	}
	if runner.calls != 2 {
		t.Errorf("pinned tool attempted %d times, want 2", runner.calls)
	}
}

func TestBraceSet(t *testing.T) {
	if got := braceSet([]string{"*.node"}); got != "*.node" {
		t.Errorf("braceSet(single) = %q", got)
	}
	if got := braceSet([]string{"*.node", "*.so", "*.dll"}); got != "{*.node,*.so,*.dll}" {
		t.Errorf("braceSet(multi) = %q", got)
	}
}
