package cmd

import (
	stderrors "errors"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/classify"
	"github.com/felixgeelhaar/autoheal/internal/diagnosis"
	"github.com/felixgeelhaar/autoheal/internal/snapshot"
	"github.com/felixgeelhaar/autoheal/internal/ux"
)

func newDiagnoseCmd() *cobra.Command {
	var before, after, selector, message, name string
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Classify a failure from two snapshots without generating a fix",
		Example: `  autoheal diagnose --before baseline.json --after failure.json \
    --selector "#send" --error "waiting for selector #send"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if after == "" || message == "" {
				return stderrors.New("required flag: --after and --error")
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			afterSnap := &snapshot.DOMSnapshot{}
			if err := readJSON(after, afterSnap); err != nil {
				return err
			}
			var beforeSnap *snapshot.DOMSnapshot
			if before != "" {
				beforeSnap = &snapshot.DOMSnapshot{}
				if err := readJSON(before, beforeSnap); err != nil {
					return err
				}
			}

			f := classify.Failure{Name: name, Message: message, Selector: selector}
			d := diagnosis.FromSnapshots(f, beforeSnap, afterSnap, a.analyzer())
			a.metrics.RecordDiagnosis(string(d.Classification.Category), string(d.Analysis.Severity))
			return a.Output(cmd, ux.DiagnosisView{Diagnosis: d})
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "snapshot JSON of the working page")
	cmd.Flags().StringVar(&after, "after", "", "snapshot JSON taken after the failure")
	cmd.Flags().StringVar(&selector, "selector", "", "selector the routine failed on")
	cmd.Flags().StringVar(&message, "error", "", "error message raised by the routine")
	cmd.Flags().StringVar(&name, "error-name", "Error", "error type name")
	return cmd
}
