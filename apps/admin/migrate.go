package main

import (
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/cwarwicker/elbp/storage/database"
)

var gooseRunFunc = goose.Run // mockable

func (cli *commandLine) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose command against the embedded migrations",
		Long: `Run a goose command against the embedded migrations.

Commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version, fix`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := database.PrepareGoose(cli.db)
			if err != nil {
				return err
			}
			return gooseRunFunc(args[0], cli.db.DB, dir, args[1:]...)
		},
	}
}
