// Package cmd implements the autoheal command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autoheal",
		Short: "Diagnose, fix and roll out repairs for broken browser automation",
		Long: `autoheal repairs browser automation routines that broke because a target
page changed. It diagnoses the failure from DOM snapshots, asks a language
model for a patch with tests, validates the patch against those tests and
rolls it out in canary stages, rolling back on health regressions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default: autoheal.yaml, searched up to the repository root)")
	flags.StringP("format", "o", "text", "output format: text, json or yaml")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newHealCmd(),
		newDiagnoseCmd(),
		newValidateCmd(),
		newDeployCmd(),
		newApproveCmd(),
		newRevertCmd(),
		newDiffCmd(),
		newDeploymentsCmd(),
		newSnapshotCmd(),
		newServeCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// ExecuteContext runs the CLI with ctx.
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
