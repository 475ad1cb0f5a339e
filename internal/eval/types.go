// Package eval validates a generated fix: it applies the fix's patches to a
// copy of the source files and runs the fix's own test cases against the
// result.
package eval

import (
	"context"
	"time"

	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/patch"
)

// TestFailure is one failing test case.
type TestFailure struct {
	TestName string `json:"testName"`
	Error    string `json:"error"`
}

// ValidationResult is the outcome of validating one fix.
type ValidationResult struct {
	Passed      bool          `json:"passed"`
	TotalTests  int           `json:"totalTests"`
	PassedTests int           `json:"passedTests"`
	FailedTests int           `json:"failedTests"`
	Failures    []TestFailure `json:"failures"`
	DurationMs  int64         `json:"durationMs"`

	// PatchErr is set when the fix could not be applied. It is a
	// *patch.MismatchError, *patch.RangeError, *patch.OverlapError or
	// *patch.MissingFileError.
	PatchErr error `json:"-"`
}

// Duration returns DurationMs as a time.Duration.
func (r *ValidationResult) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// TestRunner executes test cases against a patched file set. It reports
// failing tests in the result; an error means the runner itself broke.
type TestRunner interface {
	Run(ctx context.Context, tests []fixgen.TestCase, files patch.Files) (*ValidationResult, error)
}

// TestRunnerFunc adapts a function to TestRunner.
type TestRunnerFunc func(ctx context.Context, tests []fixgen.TestCase, files patch.Files) (*ValidationResult, error)

// Run calls f.
func (f TestRunnerFunc) Run(ctx context.Context, tests []fixgen.TestCase, files patch.Files) (*ValidationResult, error) {
	return f(ctx, tests, files)
}
