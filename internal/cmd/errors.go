package cmd

import (
	stderrors "errors"
	"fmt"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/patch"
	"github.com/felixgeelhaar/autoheal/internal/ux"
)

// codedError gives domain errors an error code and suggestions. Errors
// that already carry a code pass through.
func codedError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.Code(err); ok {
		return err
	}

	var pe *fixgen.ParseError
	if stderrors.As(err, &pe) {
		return errors.NewResponseParseError(pe.Code, err)
	}
	var mismatch *patch.MismatchError
	if stderrors.As(err, &mismatch) {
		return errors.NewPatchMismatchError(err)
	}
	var rangeErr *patch.RangeError
	if stderrors.As(err, &rangeErr) {
		return errors.NewPatchRangeError(err)
	}
	var overlap *patch.OverlapError
	if stderrors.As(err, &overlap) {
		return errors.Wrap(errors.ErrCodePatchOverlap, "patches overlap", err).
			WithSuggestion("Regenerate the fix; two patches edit the same lines")
	}
	var missing *patch.MissingFileError
	if stderrors.As(err, &missing) {
		return errors.Wrap(errors.ErrCodePatchNoFile, "patch addresses a file that is not in the source tree", err).
			WithSuggestion("Pass --dir pointing at the routine's source")
	}
	return ux.EnhanceError(err)
}

// recordError turns a non-successful deployment into an error so the exit
// code reflects it. The record itself has already been printed.
func recordError(rec *deploy.Record) error {
	switch rec.Status {
	case deploy.StatusComplete:
		return nil
	case deploy.StatusPendingReview:
		return errors.New(errors.ErrCodeDeployPendingReview, rec.RollbackReason).
			WithSuggestion(fmt.Sprintf("Review and deploy it with 'autoheal approve %s'", rec.ID))
	case deploy.StatusRolledBack:
		return errors.New(errors.ErrCodeDeployRolledBack, rec.RollbackReason).
			WithSuggestion(fmt.Sprintf("Inspect the stages with 'autoheal deployments %s'", rec.ID))
	default:
		return errors.New(errors.ErrCodeDeployFailed, rec.RollbackReason).
			WithSuggestion("Check executor.url and monitor.url in autoheal.yaml")
	}
}
