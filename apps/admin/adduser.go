package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/user"
)

type addUserOptions struct {
	name     string
	username string
	email    string
	roles    []string
	admin    bool
}

func (cli *commandLine) addUserCommand() *cobra.Command {
	var opts addUserOptions
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update it when the username exists. The password is prompted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(cmd.OutOrStdout(), "Enter password:")
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd, opts, pwd)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "user %q saved (id %d)", usr.Username, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.username, "username", "", "the user's username")
	cmd.Flags().StringVar(&opts.email, "email", "", "the user's email")
	cmd.Flags().StringVar(&opts.name, "name", "", "the user's full name (defaults to the username)")
	cmd.Flags().StringSliceVar(&opts.roles, "role", nil, "a role to grant, may be repeated")
	cmd.Flags().BoolVar(&opts.admin, "admin", false, "grant the admin role")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (cli *commandLine) addUser(cmd *cobra.Command, opts addUserOptions, pwd string) (user.User, error) {
	roles := opts.roles
	if opts.admin {
		roles = append(roles, user.RoleAdmin)
	}
	if err := cli.c.Validate.Var(roles, "omitempty,allroles"); err != nil {
		return user.User{}, errors.Errorf("unknown role in %v", roles)
	}

	usr := user.User{
		Name:     core.CleanString(opts.name),
		Username: core.CleanString(opts.username, true /* lower */),
		Email:    core.CleanString(opts.email, true /* lower */),
		Roles:    roles,
		IsActive: true,
	}
	if usr.Username == "" {
		return user.User{}, errors.New("username cannot be empty")
	}

	// unset options keep the existing user's values
	existing, err := cli.c.Users.GetByUsername(cmd.Context(), usr.Username)
	switch {
	case err == nil:
		if usr.Name == "" {
			usr.Name = existing.Name
		}
		if usr.Email == "" {
			usr.Email = existing.Email
		}
		if len(usr.Roles) == 0 {
			usr.Roles = existing.Roles
		}
	case !core.IsNotFound(err):
		return user.User{}, err
	}
	if usr.Name == "" {
		usr.Name = usr.Username
	}
	if err := usr.SetPassword(pwd); err != nil {
		return user.User{}, errors.Wrap(err, "hashing password")
	}
	return cli.c.Users.UpdateOrCreate(cmd.Context(), usr)
}
