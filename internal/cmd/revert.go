package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/patch"
)

func newRevertCmd() *cobra.Command {
	var hash, dir string
	var apply bool
	cmd := &cobra.Command{
		Use:   "revert [fix.json]",
		Short: "Build the patch set that undoes a fix",
		Long: `Print the inverse of a fix's patches. The fix is read from a file or, with
--hash (full or a unique prefix), from the forward patch set saved when it
was deployed. With --apply
the revert is applied to the source tree in --dir.`,
		Example: `  autoheal revert fix.json
  autoheal revert --hash 3f9a1c0b2e4d --apply --dir ./bots`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (hash == "") {
				return fmt.Errorf("pass either a fix file or --hash")
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			var forward []patch.CodePatch
			if hash != "" {
				w := a.patchWriter()
				full, err := w.Resolve(hash, patch.SetForward)
				if err != nil {
					return errors.Wrap(errors.ErrCodeFileReadFailed, "cannot load the deployed fix", err).
						WithSuggestion(fmt.Sprintf("List saved sets under %s", a.cfg.Patches.Dir))
				}
				set, err := w.ReadSet(full, patch.SetForward)
				if err != nil {
					return errors.Wrap(errors.ErrCodeFileReadFailed, "cannot load the deployed fix", err)
				}
				forward = set.Patches
			} else {
				var fix *fixgen.FixResponse
				if fix, err = readFix(args[0]); err != nil {
					return err
				}
				forward = fix.SuggestedFix
			}

			revert := patch.BuildRevertPatches(forward)
			if !apply {
				out, err := json.MarshalIndent(revert, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			}

			files, err := loadTree(dir)
			if err != nil {
				return err
			}
			reverted, err := patch.ApplyPatches(files, revert)
			if err != nil {
				return codedError(err)
			}
			changed := patchedPaths(revert)
			if err := writeTree(dir, reverted, changed); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reverted %d file(s) in %s\n", len(changed), dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "fix fingerprint of a deployed fix")
	cmd.Flags().BoolVar(&apply, "apply", false, "apply the revert to --dir")
	cmd.Flags().StringVar(&dir, "dir", ".", "source tree to revert")
	return cmd
}
