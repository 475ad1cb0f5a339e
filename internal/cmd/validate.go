package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/ux"
)

func newValidateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "validate <fix.json>",
		Short: "Apply a fix to a copy of the source and run its tests",
		Long: `Apply the fix's patches to an in-memory copy of --dir and run the fix's
test cases with tests.command. The source tree is never modified.`,
		Example: `  autoheal validate fix.json --dir ./bots`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			fix, err := readFix(args[0])
			if err != nil {
				return err
			}
			files, err := loadTree(dir)
			if err != nil {
				return err
			}
			v, err := a.validator()
			if err != nil {
				return codedError(err)
			}

			result, err := v.ValidateFix(cmd.Context(), fix, files)
			if err != nil {
				return codedError(err)
			}
			if err := a.Output(cmd, ux.ValidationView{Result: result}); err != nil {
				return err
			}
			if !result.Passed {
				verr := errors.NewValidationFailedError(result.PassedTests, result.TotalTests)
				verr.Cause = result.PatchErr
				return verr
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "source tree the fix applies to")
	return cmd
}
