package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cwarwicker/elbp/apps/container"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errEmptyPassword = errors.New("password cannot be empty")
)

type commandLine struct {
	c  *container.Container
	db *sqlx.DB
}

func (cli *commandLine) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Administer an ELBP installation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	root.AddCommand(
		cli.migrateCommand(),
		cli.addUserCommand(),
		cli.resetPasswordCommand(),
		cli.pluginsCommand(),
		cli.cronCommand(),
		cli.tutorsCommand(),
	)
	return root
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(out io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(out, prompt)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}

func success(out io.Writer, format string, a ...interface{}) {
	_, _ = color.New(color.FgGreen).Fprintf(out, format+"\n", a...)
}

func warn(out io.Writer, format string, a ...interface{}) {
	_, _ = color.New(color.FgYellow).Fprintf(out, format+"\n", a...)
}

func failure(out io.Writer, err error) {
	_, _ = color.New(color.FgRed, color.Bold).Fprintf(out, "error: %v\n", err)
}
