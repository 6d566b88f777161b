// Package toolchain provisions the two pinned build tools the pipeline
// depends on: the asar archiver and the Electron native-addon rebuilder.
//
// The tools are npm-installed once into a cache root and reused across runs.
// Provisioning first applies a version override for one transitive dependency
// (a hardening measure against a known-incompatible major release); if that
// constrained install fails, the override is discarded and a plain install is
// retried exactly once. Output of the first attempt is suppressed; the
// fallback's captured output is surfaced when it also fails.
package toolchain

import (
	"context"
	"os"

	"github.com/charmbracelet/log"

	"github.com/elrepack/elrepack/pkg/errors"
	"github.com/elrepack/elrepack/pkg/fsutil"
	"github.com/elrepack/elrepack/pkg/npm"
)

const (
	asarPackage    = "@electron/asar"
	rebuildPackage = "@electron/rebuild"

	asarBin    = "asar"
	rebuildBin = "electron-rebuild"

	manifestName = "elrepack-toolchain"
)

// Pins are the tool versions installed into the cache.
type Pins struct {
	Asar    string // @electron/asar version
	Rebuild string // @electron/rebuild version
}

// DefaultPins returns the tool versions this release was tested against.
func DefaultPins() Pins {
	return Pins{Asar: "3.2.18", Rebuild: "3.7.2"}
}

// DefaultOverrides pins node-gyp below v11, whose loose semver handling
// breaks header resolution for some Electron releases.
func DefaultOverrides() map[string]string {
	return map[string]string{"node-gyp": "^10.2.0"}
}

// Tools are the resolved executable paths of a valid cache.
type Tools struct {
	Asar    string
	Rebuild string
}

// Cache is the on-disk toolchain cache. It is keyed by nothing but tool
// identity: once both executables exist, the cache is valid forever and no
// staleness check is performed.
type Cache struct {
	Root      string // cache directory, e.g. ~/.cache/elrepack/toolchain
	NPM       *npm.Client
	Pins      Pins
	Overrides map[string]string
	Logger    *log.Logger
}

// New creates a toolchain cache rooted at root.
func New(root string, client *npm.Client, logger *log.Logger) *Cache {
	if client == nil {
		client = npm.NewClient(nil, logger)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{
		Root:      root,
		NPM:       client,
		Pins:      DefaultPins(),
		Overrides: DefaultOverrides(),
		Logger:    logger,
	}
}

// Paths returns where the tool executables live (or will live) in the cache.
func (c *Cache) Paths() Tools {
	return Tools{
		Asar:    npm.BinPath(c.Root, asarBin),
		Rebuild: npm.BinPath(c.Root, rebuildBin),
	}
}

// Valid reports whether both executables are present and executable.
func (c *Cache) Valid() bool {
	t := c.Paths()
	return fsutil.IsExecutable(t.Asar) && fsutil.IsExecutable(t.Rebuild)
}

// Ensure makes both pinned tools available and returns their paths.
// It is idempotent: when the cache is already valid it performs no I/O
// beyond the existence checks.
func (c *Cache) Ensure(ctx context.Context) (Tools, error) {
	if c.Valid() {
		c.Logger.Debug("toolchain cache hit", "root", c.Root)
		return c.Paths(), nil
	}

	if err := os.MkdirAll(c.Root, 0755); err != nil {
		return Tools{}, errors.Wrap(errors.ErrCodeProvision, err, "create toolchain cache %s", c.Root)
	}

	specs := []string{
		asarPackage + "@" + c.Pins.Asar,
		rebuildPackage + "@" + c.Pins.Rebuild,
	}
	opts := npm.InstallOpts{SaveExact: true, IgnoreScripts: true}

	// First attempt: constrained by the override manifest, output suppressed.
	if err := npm.WriteManifest(c.Root, npm.Manifest{
		Name:      manifestName,
		Private:   true,
		Overrides: c.Overrides,
	}); err != nil {
		return Tools{}, errors.Wrap(errors.ErrCodeProvision, err, "write toolchain manifest")
	}

	c.Logger.Info("provisioning toolchain", "root", c.Root, "asar", c.Pins.Asar, "rebuild", c.Pins.Rebuild)
	if _, err := c.NPM.Install(ctx, c.Root, specs, opts); err != nil {
		c.Logger.Debug("constrained toolchain install failed, retrying without overrides", "err", err)

		// Fallback: discard the override policy and retry exactly once.
		if err := npm.WriteManifest(c.Root, npm.Manifest{
			Name:    manifestName,
			Private: true,
		}); err != nil {
			return Tools{}, errors.Wrap(errors.ErrCodeProvision, err, "write toolchain manifest")
		}

		res, err := c.NPM.Install(ctx, c.Root, specs, opts)
		if err != nil {
			msg := "toolchain install failed"
			if out := res.Output(); out != "" {
				msg += ": " + out
			}
			return Tools{}, errors.Wrap(errors.ErrCodeProvision, err, "%s", msg)
		}
	}

	// A silent partial success is not a valid cache state.
	tools := c.Paths()
	for _, bin := range []string{tools.Asar, tools.Rebuild} {
		if !fsutil.IsExecutable(bin) {
			return Tools{}, errors.New(errors.ErrCodeProvision,
				"toolchain install reported success but %s is missing or not executable", bin)
		}
	}

	c.Logger.Info("toolchain ready", "asar", tools.Asar, "rebuild", tools.Rebuild)
	return tools, nil
}
