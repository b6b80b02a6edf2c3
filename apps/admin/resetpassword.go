package main

import (
	"github.com/spf13/cobra"

	"github.com/cwarwicker/elbp/core"
)

func (cli *commandLine) resetPasswordCommand() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password. The password is prompted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(cmd.OutOrStdout(), "Enter password:")
			if err != nil {
				return err
			}
			if err = cli.c.Users.ResetPassword(cmd.Context(), core.CleanString(uname, true /* lower */), pwd); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "password of %q reset", uname)
			return nil
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "the user's username or email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
