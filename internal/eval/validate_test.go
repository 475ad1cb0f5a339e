package eval

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/log"
	"github.com/felixgeelhaar/autoheal/internal/patch"
)

func sourceFiles() patch.Files {
	return patch.Files{
		"src/send.js": "async function send(page) {\n  await page.click('#send');\n}\n",
	}
}

func selectorFix(tests ...fixgen.TestCase) *fixgen.FixResponse {
	return &fixgen.FixResponse{
		Diagnosis:  "send button renamed",
		Confidence: 0.9,
		SuggestedFix: []patch.CodePatch{{
			FilePath:        "src/send.js",
			StartLine:       2,
			EndLine:         2,
			OriginalCode:    "  await page.click('#send');",
			ReplacementCode: "  await page.click('[data-testid=send-v2]');",
		}},
		TestCases: tests,
	}
}

type steppingClock struct {
	t    time.Time
	step time.Duration
}

func (c *steppingClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func TestValidateFixPasses(t *testing.T) {
	var seen patch.Files
	runner := TestRunnerFunc(func(ctx context.Context, tests []fixgen.TestCase, files patch.Files) (*ValidationResult, error) {
		seen = files
		return &ValidationResult{TotalTests: len(tests), PassedTests: len(tests)}, nil
	})
	clock := &steppingClock{t: time.Unix(0, 0), step: 250 * time.Millisecond}

	files := sourceFiles()
	result, err := NewValidator(runner, log.Discard()).WithClock(clock.now).
		ValidateFix(context.Background(), selectorFix(fixgen.TestCase{Name: "clicks new button", Code: "ok"}), files)
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, 1, result.TotalTests)
	assert.Equal(t, int64(250), result.DurationMs)
	assert.Contains(t, seen["src/send.js"], "send-v2")
	assert.Contains(t, files["src/send.js"], "'#send'", "input files are not modified")
}

func TestValidateFixPatchMismatch(t *testing.T) {
	called := false
	runner := TestRunnerFunc(func(ctx context.Context, tests []fixgen.TestCase, files patch.Files) (*ValidationResult, error) {
		called = true
		return nil, nil
	})
	files := patch.Files{"src/send.js": "async function send(page) {\n  await page.tap('#send');\n}\n"}

	result, err := ValidateFix(context.Background(), selectorFix(fixgen.TestCase{Name: "a", Code: "x"}), files, runner)
	require.NoError(t, err)

	assert.False(t, called)
	assert.False(t, result.Passed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, PatchFailureTest, result.Failures[0].TestName)

	var mismatch *patch.MismatchError
	require.True(t, stderrors.As(result.PatchErr, &mismatch))
	assert.Equal(t, "src/send.js", mismatch.FilePath)
	assert.Contains(t, mismatch.Actual, "page.tap")
}

func TestValidateFixWithoutTests(t *testing.T) {
	runner := TestRunnerFunc(func(ctx context.Context, tests []fixgen.TestCase, files patch.Files) (*ValidationResult, error) {
		t.Fatal("runner must not be called")
		return nil, nil
	})

	result, err := ValidateFix(context.Background(), selectorFix(), sourceFiles(), runner)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, 0, result.TotalTests)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, NoTestsFailure, result.Failures[0].TestName)
}

func TestValidateFixFailingTests(t *testing.T) {
	runner := TestRunnerFunc(func(ctx context.Context, tests []fixgen.TestCase, files patch.Files) (*ValidationResult, error) {
		return &ValidationResult{
			TotalTests:  2,
			PassedTests: 1,
			FailedTests: 1,
			Failures:    []TestFailure{{TestName: "b", Error: "expected click"}},
			Passed:      true,
		}, nil
	})

	result, err := ValidateFix(context.Background(), selectorFix(
		fixgen.TestCase{Name: "a", Code: "x"},
		fixgen.TestCase{Name: "b", Code: "y"},
	), sourceFiles(), runner)
	require.NoError(t, err)
	assert.False(t, result.Passed, "a failed test overrides the runner's verdict")
}

type countingObserver struct{ results []*ValidationResult }

func (o *countingObserver) Validated(r *ValidationResult) { o.results = append(o.results, r) }

func TestValidateFixRunnerError(t *testing.T) {
	runner := TestRunnerFunc(func(ctx context.Context, tests []fixgen.TestCase, files patch.Files) (*ValidationResult, error) {
		return nil, stderrors.New("node: not found")
	})
	obs := &countingObserver{}

	_, err := NewValidator(runner, nil).WithObserver(obs).
		ValidateFix(context.Background(), selectorFix(fixgen.TestCase{Name: "a", Code: "x"}), sourceFiles())
	require.Error(t, err)
	code, ok := errors.Code(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeValidationRunner, code)
	assert.Empty(t, obs.results)
}

func TestValidateFixRunnerWithoutResult(t *testing.T) {
	runner := TestRunnerFunc(func(ctx context.Context, tests []fixgen.TestCase, files patch.Files) (*ValidationResult, error) {
		return nil, nil
	})

	result, err := NewValidator(runner, log.Discard()).
		ValidateFix(context.Background(), selectorFix(fixgen.TestCase{Name: "a", Code: "x"}), sourceFiles())
	require.Error(t, err)
	assert.Nil(t, result)
	code, ok := errors.Code(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeValidationRunner, code)
}
