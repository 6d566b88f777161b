package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// toolsCommand creates the toolchain management command.
func (c *CLI) toolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage the pinned npm toolchain",
	}

	cmd.AddCommand(c.toolsEnsureCommand())
	cmd.AddCommand(c.toolsPathCommand())

	return cmd
}

// toolsEnsureCommand creates the "tools ensure" subcommand.
func (c *CLI) toolsEnsureCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Provision the pinned tools if they are not cached yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(c.ConfigPath)
			if err != nil {
				return err
			}
			if err := checkEnvironment(); err != nil {
				return err
			}
			tc, err := c.newToolchain(cfg)
			if err != nil {
				return err
			}

			cached := tc.Valid()
			tools, err := tc.Ensure(cmd.Context())
			if err != nil {
				return err
			}

			if cached {
				printInfo("Toolchain already provisioned")
			} else {
				printSuccess("Toolchain provisioned")
			}
			printKeyValue("asar", tools.Asar)
			printKeyValue("rebuild", tools.Rebuild)
			return nil
		},
	}
}

// toolsPathCommand creates the "tools path" subcommand.
func (c *CLI) toolsPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the toolchain cache directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := toolchainDir()
			if err != nil {
				return fmt.Errorf("get toolchain dir: %w", err)
			}
			fmt.Println(dir)
			return nil
		},
	}
}
