package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/elrepack/elrepack/pkg/asar"
	"github.com/elrepack/elrepack/pkg/errors"
	"github.com/elrepack/elrepack/pkg/fsutil"
	"github.com/elrepack/elrepack/pkg/workspace"
)

// patchCommand creates the patch command running only the core pipeline
// against an already-extracted application archive.
func (c *CLI) patchCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "patch <app.asar>",
		Short: "Repackage a single application archive for this machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(c.ConfigPath)
			if err != nil {
				return err
			}
			if err := checkEnvironment(); err != nil {
				return err
			}
			if cfg.ElectronVersion == "" {
				return errors.New(errors.ErrCodeInvalidConfig, "electron_version must be set in the config file")
			}

			archive := args[0]
			if _, err := os.Stat(archive); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidInput, err, "archive %s", archive)
			}
			if output == "" {
				output = archive + ".repacked"
			}

			tc, err := c.newToolchain(cfg)
			if err != nil {
				return err
			}
			tools, err := tc.Ensure(cmd.Context())
			if err != nil {
				return err
			}

			ws, err := workspace.New("")
			if err != nil {
				return err
			}
			defer ws.Close()

			patched, err := c.patch(cmd.Context(), cfg, tools.Asar, tools.Rebuild, ws, archive)
			if err != nil {
				return err
			}

			// Move the result (and its unpacked sibling) out of the
			// workspace before it is discarded.
			if err := fsutil.CopyFile(patched, output); err != nil {
				return errors.Wrap(errors.ErrCodeEnvironment, err, "write %s", output)
			}
			if err := os.RemoveAll(asar.UnpackedDir(output)); err != nil {
				return err
			}
			if _, err := os.Stat(asar.UnpackedDir(patched)); err == nil {
				if err := fsutil.CopyDir(asar.UnpackedDir(patched), asar.UnpackedDir(output)); err != nil {
					return errors.Wrap(errors.ErrCodeEnvironment, err, "write unpacked members")
				}
			}

			printSuccess("Repacked %s", filepath.Base(archive))
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output archive path (default <input>.repacked)")
	return cmd
}
