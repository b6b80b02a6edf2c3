package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (cli *commandLine) tutorsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tutors",
		Short: "Import or export the personal tutor assignments as CSV",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import FILE",
			Short: "Assign tutors from a Student_ID,Tutor_ID,Tutor_Name CSV file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrap(err, "opening csv")
				}
				defer func() { _ = f.Close() }()

				res, err := cli.c.Tutors.Import(cmd.Context(), f)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				success(out, "%d assignments imported", res.Imported)
				for _, ierr := range res.Errors {
					warn(out, "line %d: %s", ierr.Line, ierr.Message)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "export [FILE]",
			Short: "Export the tutor assignments, to stdout when FILE is omitted",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 0 {
					return cli.c.Tutors.Export(cmd.Context(), cmd.OutOrStdout())
				}
				f, err := os.Create(args[0])
				if err != nil {
					return errors.Wrap(err, "creating csv")
				}
				if err = cli.c.Tutors.Export(cmd.Context(), f); err != nil {
					_ = f.Close()
					return err
				}
				return errors.Wrap(f.Close(), "closing csv")
			},
		},
	)
	return cmd
}
