package eval

import (
	"context"
	"time"

	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/log"
	"github.com/felixgeelhaar/autoheal/internal/patch"
)

// Synthetic test names used when no test case ran.
const (
	PatchFailureTest = "apply patches"
	NoTestsFailure   = "no test cases"
)

// Observer receives validation outcomes.
type Observer interface {
	Validated(r *ValidationResult)
}

// Validator applies fixes and runs their tests.
type Validator struct {
	runner   TestRunner
	now      func() time.Time
	logger   *log.Logger
	observer Observer
}

// NewValidator creates a Validator backed by runner.
func NewValidator(runner TestRunner, logger *log.Logger) *Validator {
	return &Validator{
		runner: runner,
		now:    time.Now,
		logger: log.OrDefault(logger).WithComponent("eval"),
	}
}

// WithClock replaces the clock used to measure duration.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// WithObserver registers o to receive every result.
func (v *Validator) WithObserver(o Observer) *Validator {
	v.observer = o
	return v
}

// ValidateFix applies fix to a copy of files and runs its test cases.
// A patch that does not apply, or a fix without tests, yields a failed
// result rather than an error; only a broken runner returns an error.
func (v *Validator) ValidateFix(ctx context.Context, fix *fixgen.FixResponse, files patch.Files) (*ValidationResult, error) {
	start := v.now()
	result, err := v.validate(ctx, fix, files)
	if err != nil {
		return nil, err
	}
	result.DurationMs = v.now().Sub(start).Milliseconds()

	v.logger.Info("fix validated",
		"passed", result.Passed,
		"total", result.TotalTests,
		"failed", result.FailedTests,
		"duration_ms", result.DurationMs)
	if v.observer != nil {
		v.observer.Validated(result)
	}
	return result, nil
}

func (v *Validator) validate(ctx context.Context, fix *fixgen.FixResponse, files patch.Files) (*ValidationResult, error) {
	patched, err := patch.ApplyPatches(files, fix.SuggestedFix)
	if err != nil {
		v.logger.Warn("fix does not apply", "error", err)
		return &ValidationResult{
			Passed:      false,
			TotalTests:  len(fix.TestCases),
			FailedTests: len(fix.TestCases),
			Failures:    []TestFailure{{TestName: PatchFailureTest, Error: err.Error()}},
			PatchErr:    err,
		}, nil
	}

	if len(fix.TestCases) == 0 {
		return &ValidationResult{
			Passed:   false,
			Failures: []TestFailure{{TestName: NoTestsFailure, Error: "fix carries no test cases"}},
		}, nil
	}

	result, err := v.runner.Run(ctx, fix.TestCases, patched)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidationRunner, "test runner failed", err)
	}
	if result == nil {
		return nil, errors.New(errors.ErrCodeValidationRunner, "test runner returned no result")
	}
	result.Passed = result.TotalTests > 0 && result.FailedTests == 0
	return result, nil
}

// ValidateFix validates fix with runner using a default Validator.
func ValidateFix(ctx context.Context, fix *fixgen.FixResponse, files patch.Files, runner TestRunner) (*ValidationResult, error) {
	return NewValidator(runner, nil).ValidateFix(ctx, fix, files)
}
