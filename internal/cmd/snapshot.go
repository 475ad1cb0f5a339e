package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/browser"
	"github.com/felixgeelhaar/autoheal/internal/diagnosis"
	"github.com/felixgeelhaar/autoheal/internal/errors"
)

func newSnapshotCmd() *cobra.Command {
	var selectors []string
	var out, screenshot string
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "snapshot <url>",
		Short: "Capture a DOM snapshot of a page",
		Long: `Open a page, wait for it to settle and capture the selectors listed in
diagnosis.selectors plus any --selector. Keep the snapshot of a working page
to pass as --before when a routine later breaks.`,
		Example: `  autoheal snapshot https://mail.example.com --selector "#send" --out baseline.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			session, err := browser.Launch(ctx, a.cfg.Browser, a.logger)
			if err != nil {
				return err
			}
			defer session.Close()

			page, err := session.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer page.Close()

			d := diagnosis.NewDiagnoser(page, page, a.diagnoserOptions(selectors), a.logger)
			if err := d.Start(ctx); err != nil {
				return err
			}
			defer d.Stop()

			if wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			snap, err := d.Baseline(ctx)
			if err != nil {
				return err
			}

			if screenshot != "" {
				png, err := page.Screenshot(ctx)
				if err != nil {
					return err
				}
				if err := os.WriteFile(screenshot, png, 0o644); err != nil {
					return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+screenshot, err)
				}
			}

			if out != "" {
				if err := writeJSON(out, snap); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Captured %d selector(s) to %s\n", len(snap.Elements), out)
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
	cmd.Flags().StringArrayVar(&selectors, "selector", nil, "selector to capture (repeatable)")
	cmd.Flags().StringVar(&out, "out", "", "write the snapshot to this file instead of stdout")
	cmd.Flags().StringVar(&screenshot, "screenshot", "", "also save a PNG screenshot to this file")
	cmd.Flags().DurationVar(&wait, "wait", 0, "time to let the page settle before capturing")
	return cmd
}
