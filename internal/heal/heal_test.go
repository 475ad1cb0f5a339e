package heal

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/autoheal/internal/classify"
	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/eval"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/log"
	"github.com/felixgeelhaar/autoheal/internal/patch"
	"github.com/felixgeelhaar/autoheal/internal/snapshot"
	"github.com/felixgeelhaar/autoheal/internal/store"
)

const source = "async function send(page) {\n  await page.click(\"#send\")\n}\n"

func fixJSON(confidence float64, original string) string {
	fix := map[string]any{
		"diagnosis":  "send button lost its id",
		"confidence": confidence,
		"suggestedFix": []map[string]any{{
			"filePath":        "bot.js",
			"startLine":       2,
			"endLine":         2,
			"originalCode":    original,
			"replacementCode": "  await page.click(\"[data-testid=send]\")",
		}},
		"testCases": []map[string]any{{
			"name": "clicks send", "description": "finds the button",
			"code": "assert(true)", "filePath": "bot.test.js",
		}},
		"rollbackPlan": "restore #send",
	}
	b, _ := json.Marshal(fix)
	return string(b)
}

type fakeDeployer struct {
	mu     sync.Mutex
	status deploy.Status
	calls  []*deploy.Release
}

func (d *fakeDeployer) Deploy(ctx context.Context, rel *deploy.Release) *deploy.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, rel)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &deploy.Record{
		ID:               rel.FixHash[:8] + "-" + string(rune('a'+len(d.calls))),
		Platform:         rel.Platform,
		AffectedFunction: rel.AffectedFunction,
		FixHash:          rel.FixHash,
		Confidence:       rel.Fix.Confidence,
		Status:           d.status,
		StartedAt:        now,
		EndedAt:          &now,
	}
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	errors   []string
}

func (r *fakeRecorder) RecordDiagnosis(category, severity string) {}

func (r *fakeRecorder) RecordHeal(outcome string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) RecordError(component string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, component)
}

type fixture struct {
	healer   *Healer
	deployer *fakeDeployer
	recorder *fakeRecorder
	store    *store.Store
	patchDir string
	runs     int
}

func newFixture(t *testing.T, response string, testsPass bool) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "heal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		deployer: &fakeDeployer{status: deploy.StatusComplete},
		recorder: &fakeRecorder{},
		store:    st,
		patchDir: t.TempDir(),
	}
	oracle := fixgen.OracleFunc(func(ctx context.Context, messages []fixgen.Message) (string, error) {
		return response, nil
	})
	runner := eval.TestRunnerFunc(func(ctx context.Context, tests []fixgen.TestCase, files patch.Files) (*eval.ValidationResult, error) {
		f.runs++
		if !testsPass {
			return &eval.ValidationResult{
				TotalTests:  len(tests),
				FailedTests: len(tests),
				Failures:    []eval.TestFailure{{TestName: tests[0].Name, Error: "boom"}},
			}, nil
		}
		return &eval.ValidationResult{TotalTests: len(tests), PassedTests: len(tests)}, nil
	})

	f.healer, err = New(Deps{
		Generator: fixgen.NewGenerator(oracle, fixgen.PromptOptions{}, log.Discard()),
		Validator: eval.NewValidator(runner, log.Discard()),
		Deployer:  f.deployer,
		Records:   st,
		Patches:   patch.NewWriter(f.patchDir),
		Recorder:  f.recorder,
		Logger:    log.Discard(),
	})
	require.NoError(t, err)
	return f
}

func incident() Incident {
	at := time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC)
	return Incident{
		Platform:         "mail",
		AffectedFunction: "send",
		Error:            classify.Failure{Name: "TimeoutError", Message: "waiting for selector \"#send\" failed", Selector: "#send"},
		Before: &snapshot.DOMSnapshot{CapturedAt: at, Elements: []snapshot.ElementSnapshot{
			{Selector: "#send", HTML: "<button id=\"send\">Send</button>", Text: "Send"},
		}},
		After: &snapshot.DOMSnapshot{CapturedAt: at.Add(time.Minute), Elements: []snapshot.ElementSnapshot{
			{Selector: "#send", Missing: true},
		}},
		LastWorkingCode: source,
		Files:           patch.Files{"bot.js": source},
	}
}

func TestHealDeploysValidatedFix(t *testing.T) {
	f := newFixture(t, fixJSON(0.93, "  await page.click(\"#send\")"), true)

	out, err := f.healer.Heal(context.Background(), incident())
	require.NoError(t, err)

	assert.Equal(t, classify.SelectorNotFound, out.Diagnosis.Classification.Category)
	assert.Contains(t, out.Diagnosis.BrokenSelectors, "#send")
	require.NotNil(t, out.Validation)
	assert.True(t, out.Validation.Passed)
	require.NotNil(t, out.Record)
	assert.Equal(t, deploy.StatusComplete, out.Record.Status)
	assert.Equal(t, OutcomeDeployed, out.Label())
	assert.NotEmpty(t, out.FixHash)

	require.Len(t, f.deployer.calls, 1)
	assert.Equal(t, out.FixHash, f.deployer.calls[0].FixHash)

	saved, err := f.store.Get(context.Background(), out.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusComplete, saved.Status)

	w := patch.NewWriter(f.patchDir)
	assert.True(t, w.SetExists(out.FixHash, patch.SetForward))
	revert, err := w.ReadSet(out.FixHash, patch.SetRevert)
	require.NoError(t, err)
	require.Len(t, revert.Patches, 1)
	assert.Equal(t, "  await page.click(\"#send\")", revert.Patches[0].ReplacementCode)

	assert.Equal(t, []string{OutcomeDeployed}, f.recorder.outcomes)
}

func TestHealRejectsMismatchedPatch(t *testing.T) {
	f := newFixture(t, fixJSON(0.93, "  await page.click(\"#compose\")"), true)

	out, err := f.healer.Heal(context.Background(), incident())
	require.Error(t, err)

	code, ok := errors.Code(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeValidationFailed, code)

	var mismatch *patch.MismatchError
	assert.True(t, stderrors.As(err, &mismatch), "patch error is reachable from the validation error")

	assert.Zero(t, f.runs, "tests never run against a fix that does not apply")
	assert.Empty(t, f.deployer.calls)
	assert.Nil(t, out.Record)
	assert.Equal(t, OutcomeRejected, out.Label())
	assert.Equal(t, []string{"eval"}, f.recorder.errors)
}

func TestHealStopsOnFailingTests(t *testing.T) {
	f := newFixture(t, fixJSON(0.93, "  await page.click(\"#send\")"), false)

	out, err := f.healer.Heal(context.Background(), incident())
	require.Error(t, err)
	assert.Equal(t, 1, f.runs)
	assert.Empty(t, f.deployer.calls)
	assert.False(t, out.Validation.Passed)
	assert.False(t, patch.NewWriter(f.patchDir).SetExists(out.FixHash, patch.SetForward))
}

func TestHealSurfacesParseErrors(t *testing.T) {
	f := newFixture(t, `{"diagnosis": "x"}`, true)

	out, err := f.healer.Heal(context.Background(), incident())
	require.Error(t, err)

	var pe *fixgen.ParseError
	require.True(t, stderrors.As(err, &pe))
	assert.Nil(t, out.Fix)
	assert.Equal(t, OutcomeError, out.Label())
}

func TestHealSkipsDuplicateDeploy(t *testing.T) {
	f := newFixture(t, fixJSON(0.93, "  await page.click(\"#send\")"), true)

	first, err := f.healer.Heal(context.Background(), incident())
	require.NoError(t, err)
	second, err := f.healer.Heal(context.Background(), incident())
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Len(t, f.deployer.calls, 1)
	assert.Equal(t, OutcomeDuplicate, second.Label())
}

func TestHealPendingReviewIsSaved(t *testing.T) {
	f := newFixture(t, fixJSON(0.5, "  await page.click(\"#send\")"), true)
	f.deployer.status = deploy.StatusPendingReview

	out, err := f.healer.Heal(context.Background(), incident())
	require.NoError(t, err)
	assert.Equal(t, OutcomePendingReview, out.Label())

	rel, err := f.store.Release(context.Background(), out.Record.ID)
	require.NoError(t, err)
	require.NotNil(t, rel.Fix)
	assert.Equal(t, 0.5, rel.Fix.Confidence)
}

func TestHealRequiresAfterSnapshot(t *testing.T) {
	f := newFixture(t, fixJSON(0.93, "x"), true)
	in := incident()
	in.After = nil

	_, err := f.healer.Heal(context.Background(), in)
	require.Error(t, err)
	assert.Empty(t, f.deployer.calls)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}
