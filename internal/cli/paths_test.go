package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCacheDirDefault(t *testing.T) {
	t.Setenv("ELREPACK_CACHE_DIR", "")
	os.Unsetenv("ELREPACK_CACHE_DIR")
	t.Setenv("XDG_CACHE_HOME", "")
	os.Unsetenv("XDG_CACHE_HOME")

	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}

	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".cache", appName)
	if dir != expected {
		t.Errorf("cacheDir() = %q, want %q", dir, expected)
	}
}

func TestCacheDirXDG(t *testing.T) {
	t.Setenv("ELREPACK_CACHE_DIR", "")
	os.Unsetenv("ELREPACK_CACHE_DIR")
	t.Setenv("XDG_CACHE_HOME", "/tmp/custom-cache")

	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}

	expected := filepath.Join("/tmp/custom-cache", appName)
	if dir != expected {
		t.Errorf("cacheDir() with XDG_CACHE_HOME = %q, want %q", dir, expected)
	}
}

func TestCacheDirExplicitOverride(t *testing.T) {
	t.Setenv("ELREPACK_CACHE_DIR", "/tmp/elrepack-cache")
	t.Setenv("XDG_CACHE_HOME", "/tmp/should-lose")

	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}
	if dir != "/tmp/elrepack-cache" {
		t.Errorf("cacheDir() = %q, want the explicit override", dir)
	}
}

func TestDataDirDefault(t *testing.T) {
	t.Setenv("ELREPACK_DATA_DIR", "")
	os.Unsetenv("ELREPACK_DATA_DIR")
	t.Setenv("XDG_DATA_HOME", "")
	os.Unsetenv("XDG_DATA_HOME")

	dir, err := dataDir()
	if err != nil {
		t.Fatalf("dataDir() error: %v", err)
	}

	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".local", "share", appName)
	if dir != expected {
		t.Errorf("dataDir() = %q, want %q", dir, expected)
	}
}

func TestSubdirsShareTheCacheRoot(t *testing.T) {
	t.Setenv("ELREPACK_CACHE_DIR", "/tmp/elrepack-cache")

	for name, fn := range map[string]func() (string, error){
		"toolchain": toolchainDir,
		"builds":    buildsDir,
		"downloads": downloadsDir,
	} {
		dir, err := fn()
		if err != nil {
			t.Fatalf("%s dir error: %v", name, err)
		}
		if !strings.HasPrefix(dir, "/tmp/elrepack-cache"+string(os.PathSeparator)) {
			t.Errorf("%s dir = %q, want it under the cache root", name, dir)
		}
		if filepath.Base(dir) != name {
			t.Errorf("%s dir = %q, want base %q", name, dir, name)
		}
	}
}
