package cli

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/elrepack/elrepack/pkg/errors"
	"github.com/elrepack/elrepack/pkg/patcher"
	"github.com/elrepack/elrepack/pkg/toolchain"
)

// Config controls what gets repackaged and how. Every field has a usable
// default, so running without a config file is fine for the patch command;
// install needs at least the application name and bundle URL.
type Config struct {
	AppName        string `toml:"app_name"`
	BundleURL      string `toml:"bundle_url"`
	BundleChecksum string `toml:"bundle_checksum"` // hex BLAKE3, optional

	ElectronVersion string `toml:"electron_version"`
	ElectronURL     string `toml:"electron_url"` // optional, derived from version and arch when empty

	NativeModules  []string `toml:"native_modules"`
	StripPackages  []string `toml:"strip_packages"`
	StripGlobs     []string `toml:"strip_globs"`
	UnpackPatterns []string `toml:"unpack_patterns"`

	Tools     ToolPins          `toml:"tools"`
	Overrides map[string]string `toml:"overrides"`
}

// ToolPins pins the npm-provisioned tool versions.
type ToolPins struct {
	Asar    string `toml:"asar"`
	Rebuild string `toml:"rebuild"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	strip := patcher.DefaultStrip()
	pins := toolchain.DefaultPins()
	return &Config{
		NativeModules:  []string{"better-sqlite3", "node-pty"},
		StripPackages:  strip.Packages,
		StripGlobs:     strip.Globs,
		UnpackPatterns: patcher.DefaultUnpackPatterns(),
		Tools:          ToolPins{Asar: pins.Asar, Rebuild: pins.Rebuild},
		Overrides:      toolchain.DefaultOverrides(),
	}
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing default file yields the built-in defaults; an
// explicitly named file must exist.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return DefaultConfig(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfigPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

func (c *Config) validate() error {
	for _, mod := range c.NativeModules {
		if err := errors.ValidateModuleName(mod); err != nil {
			return err
		}
	}
	return nil
}

// Pins returns the toolchain version pins.
func (c *Config) Pins() toolchain.Pins {
	return toolchain.Pins{Asar: c.Tools.Asar, Rebuild: c.Tools.Rebuild}
}

// StripSpec returns the foreign-member strip rules.
func (c *Config) StripSpec() patcher.StripSpec {
	return patcher.StripSpec{Packages: c.StripPackages, Globs: c.StripGlobs}
}
