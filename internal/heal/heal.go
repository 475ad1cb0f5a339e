// Package heal runs one failure through the whole pipeline: diagnose,
// generate a fix, validate it against its own tests, then hand it to the
// staged rollout.
package heal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/autoheal/internal/classify"
	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/diagnosis"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/eval"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/log"
	"github.com/felixgeelhaar/autoheal/internal/patch"
	"github.com/felixgeelhaar/autoheal/internal/rootcause"
	"github.com/felixgeelhaar/autoheal/internal/snapshot"
	"github.com/felixgeelhaar/autoheal/internal/store"
)

// Outcome labels recorded for each run.
const (
	OutcomeDeployed      = "deployed"
	OutcomeRolledBack    = "rolled_back"
	OutcomeFailed        = "failed"
	OutcomePendingReview = "pending_review"
	OutcomeRejected      = "rejected"
	OutcomeDuplicate     = "duplicate"
	OutcomeError         = "error"
)

// Incident is a failure captured by an automation routine: the error, the
// snapshots taken around it and the source the routine runs.
type Incident struct {
	Platform         string                `json:"platform"`
	AffectedFunction string                `json:"affectedFunction"`
	Error            classify.Failure      `json:"error"`
	Before           *snapshot.DOMSnapshot `json:"before,omitempty"`
	After            *snapshot.DOMSnapshot `json:"after"`
	Screenshot       []byte                `json:"screenshot,omitempty"`
	LastWorkingCode  string                `json:"lastWorkingCode"`

	// Files is the source tree the fix's patches address.
	Files patch.Files `json:"files"`
}

// Target names what a fix is generated for.
type Target struct {
	Platform         string
	AffectedFunction string
	LastWorkingCode  string
	Files            patch.Files
}

// Outcome is everything a run produced. Fields are filled as far as the run
// got.
type Outcome struct {
	Diagnosis  *diagnosis.Diagnosis     `json:"diagnosis"`
	Fix        *fixgen.FixResponse      `json:"fix,omitempty"`
	FixHash    string                   `json:"fixHash,omitempty"`
	Validation *eval.ValidationResult   `json:"validation,omitempty"`
	Record     *deploy.Record           `json:"record,omitempty"`
	Duplicate  bool                     `json:"duplicate,omitempty"`
	PatchSets  map[patch.SetKind]string `json:"patchSets,omitempty"`
}

// Label summarizes the outcome for metrics and logs.
func (o *Outcome) Label() string {
	switch {
	case o.Duplicate:
		return OutcomeDuplicate
	case o.Record != nil:
		switch o.Record.Status {
		case deploy.StatusComplete:
			return OutcomeDeployed
		case deploy.StatusRolledBack:
			return OutcomeRolledBack
		case deploy.StatusPendingReview:
			return OutcomePendingReview
		default:
			return OutcomeFailed
		}
	case o.Validation != nil && !o.Validation.Passed:
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// Deployer runs a staged rollout.
type Deployer interface {
	Deploy(ctx context.Context, rel *deploy.Release) *deploy.Record
}

// Records persists deployment records.
type Records interface {
	Save(ctx context.Context, rec *deploy.Record, rel *deploy.Release) error
	List(ctx context.Context, f store.Filter) ([]*deploy.Record, error)
}

// Recorder receives run-level telemetry.
type Recorder interface {
	RecordDiagnosis(category, severity string)
	RecordHeal(outcome string, d time.Duration)
	RecordError(component string, err error)
}

// Deps wires a Healer. Generator, Validator and Deployer are required.
type Deps struct {
	Analyzer  *rootcause.Analyzer
	Generator *fixgen.Generator
	Validator *eval.Validator
	Deployer  Deployer
	Records   Records
	Patches   *patch.Writer
	Recorder  Recorder
	Logger    *log.Logger
	Now       func() time.Time
}

// Healer orchestrates runs. Rollouts for the same platform function are
// serialized; everything before deployment runs concurrently.
type Healer struct {
	deps   Deps
	logger *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Healer.
func New(deps Deps) (*Healer, error) {
	if deps.Generator == nil || deps.Validator == nil || deps.Deployer == nil {
		return nil, fmt.Errorf("heal: generator, validator and deployer are required")
	}
	if deps.Analyzer == nil {
		deps.Analyzer = rootcause.NewAnalyzer(rootcause.DefaultThresholds())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Healer{
		deps:   deps,
		logger: log.OrDefault(deps.Logger).WithComponent("heal"),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Heal diagnoses an offline incident and remediates it.
func (h *Healer) Heal(ctx context.Context, in Incident) (*Outcome, error) {
	if in.After == nil {
		return nil, errors.New(errors.ErrCodeFileUnmarshal, "incident has no post-failure snapshot").
			WithSuggestion("Capture the page with 'autoheal snapshot' after the failure")
	}
	d := diagnosis.FromSnapshots(in.Error, in.Before, in.After, h.deps.Analyzer)
	d.Screenshot = in.Screenshot
	d.DiagnosedAt = h.deps.Now()

	return h.Remediate(ctx, d, Target{
		Platform:         in.Platform,
		AffectedFunction: in.AffectedFunction,
		LastWorkingCode:  in.LastWorkingCode,
		Files:            in.Files,
	})
}

// Remediate generates, validates and deploys a fix for an existing
// diagnosis. A fix that fails validation is never deployed and yields a
// VALIDATE-001 error carrying the patch error, if any.
func (h *Healer) Remediate(ctx context.Context, d *diagnosis.Diagnosis, t Target) (out *Outcome, err error) {
	start := h.deps.Now()
	out = &Outcome{Diagnosis: d}
	logger := h.logger.With("platform", t.Platform, "function", t.AffectedFunction)

	defer func() {
		label := out.Label()
		if h.deps.Recorder != nil {
			h.deps.Recorder.RecordHeal(label, h.deps.Now().Sub(start))
		}
		logger.Info("heal finished", "outcome", label)
	}()

	if h.deps.Recorder != nil {
		h.deps.Recorder.RecordDiagnosis(string(d.Classification.Category), string(d.Analysis.Severity))
	}
	logger.Info("failure diagnosed",
		"category", d.Classification.Category,
		"severity", d.Analysis.Severity,
		"broken_selectors", len(d.BrokenSelectors))

	req := d.FixRequest(diagnosis.FixInput{
		LastWorkingCode:  t.LastWorkingCode,
		Platform:         t.Platform,
		AffectedFunction: t.AffectedFunction,
	})
	fix, err := h.deps.Generator.Generate(ctx, req)
	if err != nil {
		h.recordError("fixgen", err)
		return out, err
	}
	out.Fix = fix

	if out.FixHash, err = fixgen.Fingerprint(fix); err != nil {
		return out, err
	}
	logger = logger.With("fix_hash", short(out.FixHash))

	result, err := h.deps.Validator.ValidateFix(ctx, fix, t.Files)
	if err != nil {
		h.recordError("eval", err)
		return out, err
	}
	out.Validation = result
	if !result.Passed {
		verr := errors.NewValidationFailedError(result.PassedTests, result.TotalTests)
		verr.Cause = result.PatchErr
		h.recordError("eval", verr)
		return out, verr
	}

	unlock := h.lock(t.Platform, t.AffectedFunction)
	defer unlock()

	if prior := h.deployed(ctx, t.Platform, out.FixHash); prior != nil {
		logger.Info("fix already deployed", "record", prior.ID)
		out.Record = prior
		out.Duplicate = true
		return out, nil
	}

	if err := h.writePatchSets(out, t.Platform); err != nil {
		h.recordError("patch", err)
		return out, err
	}

	rel := &deploy.Release{
		Platform:         t.Platform,
		AffectedFunction: t.AffectedFunction,
		FixHash:          out.FixHash,
		Fix:              fix,
	}
	out.Record = h.deps.Deployer.Deploy(ctx, rel)

	if h.deps.Records != nil {
		if err := h.deps.Records.Save(context.WithoutCancel(ctx), out.Record, rel); err != nil {
			werr := errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to save deployment record", err)
			h.recordError("store", werr)
			return out, werr
		}
	}
	return out, nil
}

// deployed returns a completed rollout of the same fix, if one exists.
func (h *Healer) deployed(ctx context.Context, platform, fixHash string) *deploy.Record {
	if h.deps.Records == nil {
		return nil
	}
	recs, err := h.deps.Records.List(ctx, store.Filter{
		Platform: platform,
		FixHash:  fixHash,
		Status:   deploy.StatusComplete,
		Limit:    1,
	})
	if err != nil {
		h.logger.Warn("duplicate check failed", "error", err)
		return nil
	}
	if len(recs) == 0 {
		return nil
	}
	return recs[0]
}

// writePatchSets saves the fix and its inverse so an operator can undo a
// rollout that outlives the process.
func (h *Healer) writePatchSets(out *Outcome, platform string) error {
	if h.deps.Patches == nil {
		return nil
	}
	now := h.deps.Now().UTC()
	out.PatchSets = make(map[patch.SetKind]string, 2)
	sets := []*patch.Set{
		{FixHash: out.FixHash, Kind: patch.SetForward, Platform: platform, CreatedAt: now, Patches: out.Fix.SuggestedFix},
		{FixHash: out.FixHash, Kind: patch.SetRevert, Platform: platform, CreatedAt: now, Patches: patch.BuildRevertPatches(out.Fix.SuggestedFix)},
	}
	for _, set := range sets {
		path, err := h.deps.Patches.WriteSet(set)
		if err != nil {
			return errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to save %s patch set", set.Kind), err)
		}
		out.PatchSets[set.Kind] = path
	}
	return nil
}

func (h *Healer) lock(platform, function string) func() {
	key := platform + "/" + function
	h.mu.Lock()
	l, ok := h.locks[key]
	if !ok {
		l = &sync.Mutex{}
		h.locks[key] = l
	}
	h.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (h *Healer) recordError(component string, err error) {
	if h.deps.Recorder != nil {
		h.deps.Recorder.RecordError(component, err)
	}
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
