package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/patch"
	"github.com/felixgeelhaar/autoheal/internal/store"
	"github.com/felixgeelhaar/autoheal/internal/ux"
)

func newDeployCmd() *cobra.Command {
	var platform, function string
	cmd := &cobra.Command{
		Use:   "deploy <fix.json>",
		Short: "Roll out an already validated fix in canary stages",
		Long: `Roll out a fix through the stages in deploy.stages. After each stage the
platform's health is sampled for the stage's soak time; an error rate or
latency above the stage's limits, or any detection or captcha event, rolls
the fix back.

Fixes below deploy.auto_deploy_threshold are recorded as PENDING_REVIEW
and can be released with 'autoheal approve'.`,
		Example: `  autoheal deploy fix.json --function send
  autoheal deploy fix.json --platform gmail --function send -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if function == "" {
				return fmt.Errorf("required flag: --function")
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if platform == "" {
				platform = a.cfg.Platform
			}

			fix, err := readFix(args[0])
			if err != nil {
				return err
			}
			hash, err := fixgen.Fingerprint(fix)
			if err != nil {
				return err
			}

			pipe, err := a.pipeline()
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := savePatchSets(a.patchWriter(), hash, platform, fix); err != nil {
				return err
			}

			rel := &deploy.Release{Platform: platform, AffectedFunction: function, FixHash: hash, Fix: fix}
			rec := pipe.Deploy(cmd.Context(), rel)
			if err := saveRecord(cmd.Context(), st, rec, rel); err != nil {
				return err
			}
			if err := a.Output(cmd, ux.RecordView{Record: rec}); err != nil {
				return err
			}
			return recordError(rec)
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "platform the routine automates (default: config platform)")
	cmd.Flags().StringVar(&function, "function", "", "affected function name")
	return cmd
}

// savePatchSets writes the forward and revert sets for a fix before it is
// rolled out.
func savePatchSets(w *patch.Writer, hash, platform string, fix *fixgen.FixResponse) error {
	now := time.Now().UTC()
	sets := []*patch.Set{
		{FixHash: hash, Kind: patch.SetForward, Platform: platform, CreatedAt: now, Patches: fix.SuggestedFix},
		{FixHash: hash, Kind: patch.SetRevert, Platform: platform, CreatedAt: now, Patches: patch.BuildRevertPatches(fix.SuggestedFix)},
	}
	for _, set := range sets {
		if _, err := w.WriteSet(set); err != nil {
			return errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to save %s patch set", set.Kind), err)
		}
	}
	return nil
}

// saveRecord persists rec even when ctx was cancelled mid-rollout.
func saveRecord(ctx context.Context, st *store.Store, rec *deploy.Record, rel *deploy.Release) error {
	if err := st.Save(context.WithoutCancel(ctx), rec, rel); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to save deployment record", err)
	}
	return nil
}
