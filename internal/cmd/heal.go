package cmd

import (
	stderrors "errors"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/browser"
	"github.com/felixgeelhaar/autoheal/internal/diagnosis"
	"github.com/felixgeelhaar/autoheal/internal/heal"
	"github.com/felixgeelhaar/autoheal/internal/snapshot"
	"github.com/felixgeelhaar/autoheal/internal/ux"
)

type healOptions struct {
	dir      string
	function string
	url      string
	selector string
	message  string
	before   string
}

func newHealCmd() *cobra.Command {
	opts := &healOptions{}
	cmd := &cobra.Command{
		Use:   "heal [incident.json]",
		Short: "Diagnose a failure, generate and validate a fix, then roll it out",
		Long: `Run the full repair pipeline for one failure.

Offline, the failure is read from an incident file holding the error, the
DOM snapshots around it and the routine's source. Live, --url opens the
page, snapshots it and diagnoses --error against the --before snapshot.

A fix is deployed only if its generated tests pass and its confidence
reaches deploy.auto_deploy_threshold; otherwise it is held for review.`,
		Example: `  autoheal heal incident.json
  autoheal heal --url https://mail.example.com --selector "#send" \
    --error "waiting for selector #send" --before baseline.json \
    --function send --dir ./bots`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeal(cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dir, "dir", "", "source tree of the routine (overrides the incident's files)")
	cmd.Flags().StringVar(&opts.function, "function", "", "affected function name")
	cmd.Flags().StringVar(&opts.url, "url", "", "diagnose a live page instead of an incident file")
	cmd.Flags().StringVar(&opts.selector, "selector", "", "selector the routine failed on (live mode)")
	cmd.Flags().StringVar(&opts.message, "error", "", "error message raised by the routine (live mode)")
	cmd.Flags().StringVar(&opts.before, "before", "", "snapshot JSON of the working page (live mode)")
	return cmd
}

func runHeal(cmd *cobra.Command, args []string, opts *healOptions) error {
	if len(args) == 0 && opts.url == "" {
		return stderrors.New("required: an incident file or --url")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	healer, st, err := a.healer()
	if err != nil {
		return codedError(err)
	}
	defer st.Close()

	ctx := cmd.Context()
	var out *heal.Outcome
	if len(args) == 1 {
		var in heal.Incident
		if err := readJSON(args[0], &in); err != nil {
			return err
		}
		if in.Platform == "" {
			in.Platform = a.cfg.Platform
		}
		if opts.function != "" {
			in.AffectedFunction = opts.function
		}
		if opts.dir != "" {
			if in.Files, err = loadTree(opts.dir); err != nil {
				return err
			}
		}
		out, err = healer.Heal(ctx, in)
	} else {
		out, err = healLive(cmd, a, healer, opts)
	}

	if out != nil {
		if ferr := a.Output(cmd, ux.OutcomeView{Outcome: out}); ferr != nil {
			return ferr
		}
	}
	if err != nil {
		return codedError(err)
	}
	if out.Duplicate {
		return nil
	}
	return recordError(out.Record)
}

func healLive(cmd *cobra.Command, a *app, healer *heal.Healer, opts *healOptions) (*heal.Outcome, error) {
	if opts.message == "" {
		return nil, stderrors.New("required flag: --error")
	}
	ctx := cmd.Context()

	var before *snapshot.DOMSnapshot
	if opts.before != "" {
		before = &snapshot.DOMSnapshot{}
		if err := readJSON(opts.before, before); err != nil {
			return nil, err
		}
	}

	target := heal.Target{Platform: a.cfg.Platform, AffectedFunction: opts.function}
	if opts.dir != "" {
		files, err := loadTree(opts.dir)
		if err != nil {
			return nil, err
		}
		target.Files = files
	}

	session, err := browser.Launch(ctx, a.cfg.Browser, a.logger)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	page, err := session.Open(ctx, opts.url)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	var selectors []string
	if before != nil {
		selectors = before.Selectors()
	}
	d := diagnosis.NewDiagnoser(page, page, a.diagnoserOptions(selectors), a.logger)
	if err := d.Start(ctx); err != nil {
		return nil, err
	}
	defer d.Stop()

	diag, err := d.Diagnose(ctx, opts.selector, stderrors.New(opts.message), before)
	if err != nil {
		return nil, err
	}
	return healer.Remediate(ctx, diag, target)
}
