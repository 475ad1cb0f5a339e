package ux

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
)

// ConfirmFunc asks a yes/no question.
type ConfirmFunc func(title, description string) (bool, error)

// Confirm asks a yes/no question on the terminal.
func Confirm(title, description string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return ok, nil
}

// ConfirmRelease asks an operator to approve a fix held for review.
func ConfirmRelease(confirm ConfirmFunc, rec *deploy.Record, rel *deploy.Release) (bool, error) {
	if confirm == nil {
		confirm = Confirm
	}
	desc := fmt.Sprintf("%s/%s  confidence %.2f  %d patch(es)\n%s",
		rel.Platform, rel.AffectedFunction, rec.Confidence, len(rel.Fix.SuggestedFix), rel.Fix.Diagnosis)
	return confirm(fmt.Sprintf("Deploy fix %s?", shortHash(rel.FixHash)), desc)
}
