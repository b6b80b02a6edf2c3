package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (cli *commandLine) cronCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Inspect and run the scheduled tasks",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the scheduled tasks",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				for _, name := range cli.c.Scheduler.Tasks() {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
				}
			},
		},
		&cobra.Command{
			Use:   "run TASK",
			Short: "Run a scheduled task once, now",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := cli.c.Scheduler.RunOnce(cmd.Context(), args[0]); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "%s done", args[0])
				return nil
			},
		},
	)
	return cmd
}
