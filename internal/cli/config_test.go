package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/elrepack/elrepack/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.NativeModules) == 0 {
		t.Error("default config has no native modules")
	}
	if cfg.Tools.Asar == "" || cfg.Tools.Rebuild == "" {
		t.Errorf("default tool pins incomplete: %+v", cfg.Tools)
	}
	if _, ok := cfg.Overrides["node-gyp"]; !ok {
		t.Error("default config is missing the node-gyp override")
	}
	if len(cfg.UnpackPatterns) == 0 {
		t.Error("default config has no unpack patterns")
	}
}

func TestLoadConfigMissingDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Tools.Asar != DefaultConfig().Tools.Asar {
		t.Errorf("missing config file did not yield defaults: %+v", cfg.Tools)
	}
}

func TestLoadConfigMissingExplicitFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeInvalidConfig)
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
app_name = "someapp"
bundle_url = "https://example.com/someapp-3.1.4-full.nupkg"
electron_version = "40.0.0"
native_modules = ["better-sqlite3"]

[tools]
asar = "3.2.19"

[overrides]
node-gyp = "^11.0.0"
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.AppName != "someapp" {
		t.Errorf("AppName = %q", cfg.AppName)
	}
	if cfg.ElectronVersion != "40.0.0" {
		t.Errorf("ElectronVersion = %q", cfg.ElectronVersion)
	}
	if len(cfg.NativeModules) != 1 || cfg.NativeModules[0] != "better-sqlite3" {
		t.Errorf("NativeModules = %v", cfg.NativeModules)
	}
	if cfg.Tools.Asar != "3.2.19" {
		t.Errorf("Tools.Asar = %q, want the file's pin", cfg.Tools.Asar)
	}
	if cfg.Overrides["node-gyp"] != "^11.0.0" {
		t.Errorf("Overrides = %v", cfg.Overrides)
	}
	// Fields the file does not mention keep their defaults.
	if len(cfg.UnpackPatterns) == 0 {
		t.Error("UnpackPatterns lost its default")
	}
}

func TestLoadConfigRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("app_name = [broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeInvalidConfig)
	}
}

func TestLoadConfigRejectsBadModuleName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`native_modules = ["../evil"]`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); !errors.Is(err, errors.ErrCodeInvalidModule) {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeInvalidModule)
	}
}
