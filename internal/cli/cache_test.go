package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCacheClearRemovesEntries(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ELREPACK_CACHE_DIR", dir)

	for _, sub := range []string{"toolchain", "builds", "downloads"} {
		if err := os.MkdirAll(filepath.Join(dir, sub, "payload"), 0755); err != nil {
			t.Fatal(err)
		}
	}

	c := New(os.Stderr, LogInfo)
	cmd := c.cacheClearCommand()
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("cache clear error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("cache dir still has %d entries after clear", len(entries))
	}
}

func TestCacheClearOnEmptyCache(t *testing.T) {
	t.Setenv("ELREPACK_CACHE_DIR", filepath.Join(t.TempDir(), "never-created"))

	c := New(os.Stderr, LogInfo)
	cmd := c.cacheClearCommand()
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("cache clear on empty cache: %v", err)
	}
}
