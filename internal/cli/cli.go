// Package cli implements the elrepack command-line interface.
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/elrepack/elrepack/pkg/buildinfo"
	"github.com/elrepack/elrepack/pkg/npm"
	"github.com/elrepack/elrepack/pkg/toolchain"
)

const (
	// appName is the application name used for directories and display.
	appName = "elrepack"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger     *log.Logger
	ConfigPath string // explicit --config value, empty for the default lookup
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "elrepack",
		Short:        "Elrepack repackages Electron app bundles for the local platform",
		Long:         `Elrepack takes a closed-source Electron application bundle published for another platform, rebuilds its native addons against a local Electron runtime, and reassembles the application archive so it runs here.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.ConfigPath, "config", "", "path to config file")

	root.AddCommand(c.installCommand())
	root.AddCommand(c.patchCommand())
	root.AddCommand(c.toolsCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// newToolchain creates the toolchain cache for CLI use.
func (c *CLI) newToolchain(cfg *Config) (*toolchain.Cache, error) {
	dir, err := toolchainDir()
	if err != nil {
		return nil, err
	}
	tc := toolchain.New(dir, npm.NewClient(nil, c.Logger), c.Logger)
	tc.Pins = cfg.Pins()
	tc.Overrides = cfg.Overrides
	return tc, nil
}

// cacheDir returns the cache root: $ELREPACK_CACHE_DIR, then the XDG
// standard (~/.cache/elrepack/).
func cacheDir() (string, error) {
	if dir := os.Getenv("ELREPACK_CACHE_DIR"); dir != "" {
		return dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// dataDir returns where installed applications live: $ELREPACK_DATA_DIR,
// then the XDG standard (~/.local/share/elrepack/).
func dataDir() (string, error) {
	if dir := os.Getenv("ELREPACK_DATA_DIR"); dir != "" {
		return dir, nil
	}
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

func toolchainDir() (string, error) {
	root, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "toolchain"), nil
}

func buildsDir() (string, error) {
	root, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "builds"), nil
}

func downloadsDir() (string, error) {
	root, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "downloads"), nil
}
