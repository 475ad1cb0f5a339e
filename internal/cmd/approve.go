package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/store"
	"github.com/felixgeelhaar/autoheal/internal/ux"
)

// confirmRelease is swapped in tests.
var confirmRelease ux.ConfirmFunc = ux.Confirm

func newApproveCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "approve <deployment-id>",
		Short: "Release a fix that was held for review",
		Long: `Roll out a fix whose confidence was below deploy.auto_deploy_threshold.
The rollout is staged and health checked exactly like an automatic one and
is recorded as a new deployment.`,
		Example: `  autoheal approve 6f1c2a7e-9d7b-4f3e-a1f2-1a3c5e7b9d0f
  autoheal approve 6f1c2a7e-9d7b-4f3e-a1f2-1a3c5e7b9d0f --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			held, err := st.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if held.Status != deploy.StatusPendingReview {
				return errors.New(errors.ErrCodeDeployFailed,
					fmt.Sprintf("deployment %s is %s, only %s deployments can be approved", held.ID, held.Status, deploy.StatusPendingReview))
			}
			done, err := st.List(ctx, store.Filter{
				Platform: held.Platform,
				FixHash:  held.FixHash,
				Status:   deploy.StatusComplete,
				Limit:    1,
			})
			if err != nil {
				return err
			}
			if len(done) > 0 {
				return errors.New(errors.ErrCodeDeployFailed,
					fmt.Sprintf("fix %s is already deployed by %s", held.FixHash, done[0].ID))
			}
			rel, err := st.Release(ctx, held.ID)
			if err != nil {
				return err
			}

			if !yes {
				ok, err := ux.ConfirmRelease(confirmRelease, held, rel)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "Approval cancelled.")
					return nil
				}
			}

			pipe, err := a.pipeline()
			if err != nil {
				return err
			}
			rec := pipe.DeployApproved(ctx, rel)
			if err := saveRecord(ctx, st, rec, rel); err != nil {
				return err
			}
			if err := a.Output(cmd, ux.RecordView{Record: rec}); err != nil {
				return err
			}
			return recordError(rec)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
