package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/elrepack/elrepack/pkg/asar"
	"github.com/elrepack/elrepack/pkg/bundle"
	"github.com/elrepack/elrepack/pkg/errors"
	"github.com/elrepack/elrepack/pkg/fetch"
	"github.com/elrepack/elrepack/pkg/fsutil"
	"github.com/elrepack/elrepack/pkg/npm"
	"github.com/elrepack/elrepack/pkg/patcher"
	"github.com/elrepack/elrepack/pkg/rebuild"
	"github.com/elrepack/elrepack/pkg/workspace"
)

// electronReleaseURL is the download location for official Linux runtime
// builds, parameterized by version and architecture.
const electronReleaseURL = "https://github.com/electron/electron/releases/download/v%s/electron-v%s-linux-%s.zip"

// installCommand creates the install command running the full pipeline.
func (c *CLI) installCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install [bundle]",
		Short: "Download, repackage, and install the configured application",
		Long: `Install runs the full pipeline: fetch the application bundle (or use a
pre-downloaded one given as the argument), fetch the Electron runtime,
rebuild the app's native addons for this machine, and assemble a runnable
installation with a launcher script and desktop entry.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(c.ConfigPath)
			if err != nil {
				return err
			}
			bundleArg := ""
			if len(args) == 1 {
				bundleArg = args[0]
			}
			return c.runInstall(cmd.Context(), cfg, bundleArg)
		},
	}
}

func (c *CLI) runInstall(ctx context.Context, cfg *Config, bundleArg string) error {
	// Environment validation happens first so nothing is mutated when the
	// host cannot complete the run.
	if err := checkEnvironment(); err != nil {
		return err
	}
	arch, err := electronArch()
	if err != nil {
		return err
	}
	if cfg.AppName == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "app_name must be set in the config file")
	}
	if bundleArg == "" && cfg.BundleURL == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "no bundle: set bundle_url in the config file or pass a downloaded bundle path")
	}
	if cfg.ElectronVersion == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "electron_version must be set in the config file")
	}

	printInfo("Installing %s (Electron %s, %s)", cfg.AppName, cfg.ElectronVersion, arch)

	tc, err := c.newToolchain(cfg)
	if err != nil {
		return err
	}
	tools, err := tc.Ensure(ctx)
	if err != nil {
		return err
	}

	dlDir, err := downloadsDir()
	if err != nil {
		return err
	}
	fetcher := fetch.New(dlDir, c.Logger)
	fetcher.Progress = true

	bundlePath := bundleArg
	if bundlePath == "" {
		if bundlePath, err = fetcher.Fetch(ctx, cfg.BundleURL, cfg.BundleChecksum); err != nil {
			return err
		}
	} else if _, err := os.Stat(bundlePath); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "bundle %s", bundlePath)
	}

	runtimeURL := cfg.ElectronURL
	if runtimeURL == "" {
		runtimeURL = fmt.Sprintf(electronReleaseURL, cfg.ElectronVersion, cfg.ElectronVersion, arch)
	}
	runtimeZip, err := fetcher.Fetch(ctx, runtimeURL, "")
	if err != nil {
		return err
	}

	ws, err := workspace.New("")
	if err != nil {
		return err
	}
	defer ws.Close()

	printInfo("Extracting bundle")
	if err := bundle.Extract(bundlePath, ws.Path("bundle")); err != nil {
		return err
	}
	archive, err := bundle.FindArchive(ws.Path("bundle"))
	if err != nil {
		return err
	}
	if err := bundle.Extract(runtimeZip, ws.Path("runtime")); err != nil {
		return err
	}

	patched, err := c.patch(ctx, cfg, tools.Asar, tools.Rebuild, ws, archive)
	if err != nil {
		return err
	}

	installDir, err := c.assemble(cfg, ws.Path("runtime"), patched)
	if err != nil {
		return err
	}

	printSuccess("Installed %s", cfg.AppName)
	printFile(installDir)
	return nil
}

// patch wires the core pipeline components and repacks the archive inside
// the workspace.
func (c *CLI) patch(ctx context.Context, cfg *Config, asarTool, rebuildTool string, ws *workspace.Workspace, archive string) (string, error) {
	buildRoot, err := buildsDir()
	if err != nil {
		return "", err
	}
	work, err := ws.Mkdir("patch")
	if err != nil {
		return "", err
	}

	client := npm.NewClient(nil, c.Logger)
	rebuilder := rebuild.New(buildRoot, client, rebuildTool, nil, cfg.NativeModules, c.Logger)
	p := patcher.New(asar.NewArchiver(asarTool, nil, c.Logger), rebuilder, cfg.ElectronVersion, work, c.Logger)
	p.Strip = cfg.StripSpec()
	p.UnpackPatterns = cfg.UnpackPatterns
	return p.Patch(ctx, archive)
}

// assemble lays out the runnable installation under the data dir: the
// Electron runtime with the patched archive as its application, plus a
// launcher script and a desktop entry.
func (c *CLI) assemble(cfg *Config, runtimeTree, patched string) (string, error) {
	root, err := dataDir()
	if err != nil {
		return "", err
	}
	installDir := filepath.Join(root, "apps", cfg.AppName)

	printInfo("Assembling installation")
	if err := fsutil.ReplaceDir(runtimeTree, installDir); err != nil {
		return "", errors.Wrap(errors.ErrCodeEnvironment, err, "install runtime into %s", installDir)
	}

	resources := filepath.Join(installDir, "resources")
	if err := os.MkdirAll(resources, 0755); err != nil {
		return "", err
	}
	// The runtime ships a placeholder app; the patched archive replaces it.
	os.Remove(filepath.Join(resources, "default_app.asar"))

	target := filepath.Join(resources, "app.asar")
	if err := fsutil.CopyFile(patched, target); err != nil {
		return "", errors.Wrap(errors.ErrCodeEnvironment, err, "install application archive")
	}
	if err := os.RemoveAll(asar.UnpackedDir(target)); err != nil {
		return "", err
	}
	if _, err := os.Stat(asar.UnpackedDir(patched)); err == nil {
		if err := fsutil.CopyDir(asar.UnpackedDir(patched), asar.UnpackedDir(target)); err != nil {
			return "", errors.Wrap(errors.ErrCodeEnvironment, err, "install unpacked members")
		}
	}

	if err := c.writeLauncher(root, installDir, cfg.AppName); err != nil {
		return "", err
	}
	if err := c.writeDesktopEntry(root, cfg.AppName); err != nil {
		return "", err
	}
	return installDir, nil
}

func (c *CLI) writeLauncher(root, installDir, app string) error {
	binDir := filepath.Join(root, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return err
	}
	script := "#!/bin/sh\nexec " + shellQuote(filepath.Join(installDir, "electron")) +
		" " + shellQuote(filepath.Join(installDir, "resources", "app.asar")) + " \"$@\"\n"
	launcher := filepath.Join(binDir, app)
	if err := os.WriteFile(launcher, []byte(script), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment, err, "write launcher")
	}
	printFile(launcher)
	return nil
}

func (c *CLI) writeDesktopEntry(root, app string) error {
	appsDir := filepath.Join(root, "applications")
	if err := os.MkdirAll(appsDir, 0755); err != nil {
		return err
	}
	entry := "[Desktop Entry]\n" +
		"Type=Application\n" +
		"Name=" + app + "\n" +
		"Exec=" + filepath.Join(root, "bin", app) + "\n" +
		"Terminal=false\n" +
		"Categories=Utility;\n"
	path := filepath.Join(appsDir, app+".desktop")
	if err := os.WriteFile(path, []byte(entry), 0644); err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment, err, "write desktop entry")
	}
	printFile(path)
	return nil
}

// shellQuote wraps a path in single quotes for the launcher script.
func shellQuote(s string) string {
	return "'" + s + "'"
}
