package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cwarwicker/elbp/core/plugin"
)

func (cli *commandLine) pluginsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage the dashboard plugins",
	}

	var force bool
	uninstall := &cobra.Command{
		Use:   "uninstall NAME",
		Short: "Uninstall a plugin. With --force its tables are left in place.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.c.Plugins.Uninstall(cmd.Context(), args[0], force); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "%s uninstalled", args[0])
			if force {
				warn(cmd.OutOrStdout(), "the tables of %s were not dropped", args[0])
			}
			return nil
		},
	}
	uninstall.Flags().BoolVar(&force, "force", false, "only forget the plugin, without running its cleanup")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the installed and available plugins",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				regs, err := cli.c.Plugins.List(cmd.Context(), false)
				if err != nil {
					return err
				}
				printRegistrations(cmd, regs)
				return nil
			},
		},
		&cobra.Command{
			Use:   "install NAME",
			Short: "Install a plugin and apply its migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				reg, err := cli.c.Plugins.Install(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "%s installed at version %d", reg.Name, reg.Version)
				return nil
			},
		},
		&cobra.Command{
			Use:   "enable NAME",
			Short: "Enable an installed plugin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := cli.c.Plugins.Enable(cmd.Context(), args[0]); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "%s enabled", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "disable NAME",
			Short: "Disable an installed plugin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := cli.c.Plugins.Disable(cmd.Context(), args[0]); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "%s disabled", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "upgrade NAME",
			Short: "Apply the pending migrations of a plugin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := cli.c.Plugins.Upgrade(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "%s: %d migrations applied", args[0], n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rollback NAME VERSION",
			Short: "Roll a plugin back to VERSION",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[1])
				if err != nil || version < 0 {
					return errors.Errorf("version must be a non-negative number (got %q)", args[1])
				}
				n, err := cli.c.Plugins.Rollback(cmd.Context(), args[0], version)
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "%s: %d migrations rolled back", args[0], n)
				return nil
			},
		},
		uninstall,
		&cobra.Command{
			Use:   "apply MANIFEST",
			Short: "Install, enable and order the plugins listed in a YAML manifest",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				regs, err := cli.c.Plugins.InstallFromManifest(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printRegistrations(cmd, regs)
				return nil
			},
		},
	)
	return cmd
}

func printRegistrations(cmd *cobra.Command, regs []plugin.Registration) {
	out := cmd.OutOrStdout()
	if len(regs) == 0 {
		warn(out, "no plugin installed")
	}
	for _, reg := range regs {
		state := "disabled"
		if reg.Enabled {
			state = "enabled"
		}
		_, _ = fmt.Fprintf(out, "%-16s v%-3d %-9s order %d\n", reg.Name, reg.Version, state, reg.Ordernum)
	}
}
