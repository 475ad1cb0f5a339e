package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/store"
	"github.com/felixgeelhaar/autoheal/internal/ux"
)

func newDeploymentsCmd() *cobra.Command {
	var f store.Filter
	var status string
	cmd := &cobra.Command{
		Use:     "deployments [id]",
		Aliases: []string{"ls"},
		Short:   "List recorded deployments or show one",
		Example: `  autoheal deployments
  autoheal deployments --status PENDING_REVIEW
  autoheal deployments 6f1c2a7e-9d7b-4f3e-a1f2-1a3c5e7b9d0f -o json`,
		Args: cobra.MaximumNArgs(1),
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

			if len(args) == 1 {
				rec, err := st.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.Output(cmd, ux.RecordView{Record: rec})
			}

			f.Status = deploy.Status(status)
			recs, err := st.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			return a.Output(cmd, ux.RecordsView{Records: recs})
		},
	}
	cmd.Flags().StringVar(&f.Platform, "platform", "", "only this platform")
	cmd.Flags().StringVar(&f.AffectedFunction, "function", "", "only this function")
	cmd.Flags().StringVar(&f.FixHash, "fix-hash", "", "only this fix fingerprint")
	cmd.Flags().StringVar(&status, "status", "", "only this status (PENDING_REVIEW, IN_PROGRESS, COMPLETE, ROLLED_BACK, FAILED)")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "maximum number of deployments")
	return cmd
}
