package cmd

import (
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/patch"
)

func newDiffCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "diff <fix.json>",
		Short: "Show a fix as a unified diff",
		Long: `Render a fix's patches as a unified diff. With --dir the patches are also
checked against the source tree, and the first mismatching line is shown.`,
		Example: `  autoheal diff fix.json
  autoheal diff fix.json --dir ./bots`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fix, err := readFix(args[0])
			if err != nil {
				return err
			}

			if dir != "" {
				files, err := loadTree(dir)
				if err != nil {
					return err
				}
				if _, err := patch.ApplyPatches(files, fix.SuggestedFix); err != nil {
					var mismatch *patch.MismatchError
					if stderrors.As(err, &mismatch) {
						fmt.Fprintln(cmd.ErrOrStderr(), mismatch.Detail())
					}
					return codedError(err)
				}
			}

			out, err := patch.RenderUnified(fix.SuggestedFix)
			if err != nil {
				return codedError(err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "check the patches against this source tree")
	return cmd
}
