// Package npm wraps the npm command-line interface for manifest-driven
// installs into isolated directories.
//
// The pipeline never installs into the user's project or global prefix: every
// install targets a directory that carries its own package.json written by
// [WriteManifest]. Lifecycle scripts are disabled on every install that could
// pull native addons, because compilation must happen later against the
// target runtime's ABI headers, not the host toolchain.
package npm

import (
	"context"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/elrepack/elrepack/pkg/execx"
)

// Client invokes npm through an execx.Runner.
type Client struct {
	Bin    string       // npm executable (default "npm")
	Runner execx.Runner // process runner (default execx.Local)
	Logger *log.Logger
}

// NewClient creates an npm client with defaults filled in.
func NewClient(runner execx.Runner, logger *log.Logger) *Client {
	if runner == nil {
		runner = execx.NewLocal()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{Bin: "npm", Runner: runner, Logger: logger}
}

// InstallOpts control a single npm install invocation.
type InstallOpts struct {
	SaveDev       bool // --save-dev
	SaveExact     bool // --save-exact
	IgnoreScripts bool // --ignore-scripts
}

// Install runs `npm install` in dir for the given package specifiers
// ("name" or "name@version"). An empty specs list installs the manifest's
// declared dependencies. The captured Result is returned even on failure so
// the caller decides whether to surface the output.
func (c *Client) Install(ctx context.Context, dir string, specs []string, opts InstallOpts) (execx.Result, error) {
	args := []string{"install"}
	args = append(args, specs...)
	args = append(args, "--no-audit", "--no-fund")
	if opts.SaveDev {
		args = append(args, "--save-dev")
	}
	if opts.SaveExact {
		args = append(args, "--save-exact")
	}
	if opts.IgnoreScripts {
		args = append(args, "--ignore-scripts")
	}

	cmd := execx.Cmd{Path: c.bin(), Args: args, Dir: dir}
	c.Logger.Debug("running npm", "dir", dir, "args", args)
	return c.Runner.Run(ctx, cmd)
}

// BinPath returns the path of an installed tool's executable under root.
func BinPath(root, tool string) string {
	return filepath.Join(root, "node_modules", ".bin", tool)
}

// ModuleDir returns the installed directory of module under root, handling
// scoped names ("@scope/name").
func ModuleDir(root, module string) string {
	return filepath.Join(root, "node_modules", filepath.FromSlash(module))
}

func (c *Client) bin() string {
	if c.Bin != "" {
		return c.Bin
	}
	return "npm"
}
