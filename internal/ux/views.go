package ux

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/diagnosis"
	"github.com/felixgeelhaar/autoheal/internal/eval"
	"github.com/felixgeelhaar/autoheal/internal/heal"
)

const timeLayout = "2006-01-02 15:04:05"

// RecordView renders one deployment record.
type RecordView struct{ Record *deploy.Record }

func (v RecordView) value() any { return v.Record }

// Render implements Renderer.
func (v RecordView) Render(s Styles) string {
	r := v.Record
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", s.Title.Render("Deployment"), r.ID)
	row(&b, s, "Status", s.Status(r.Status))
	row(&b, s, "Target", r.Platform+"/"+r.AffectedFunction)
	row(&b, s, "Confidence", fmt.Sprintf("%.2f", r.Confidence))
	if r.FixHash != "" {
		row(&b, s, "Fix", shortHash(r.FixHash))
	}
	row(&b, s, "Traffic", fmt.Sprintf("%g%%", r.CurrentPercentage))
	row(&b, s, "Started", r.StartedAt.Format(timeLayout))
	if r.CompletedAt != nil {
		row(&b, s, "Completed", r.CompletedAt.Format(timeLayout))
	} else if r.EndedAt != nil {
		row(&b, s, "Ended", r.EndedAt.Format(timeLayout))
	}
	if r.RollbackReason != "" {
		row(&b, s, "Reason", s.Danger.Render(r.RollbackReason))
	}
	for _, st := range r.Stages {
		line := fmt.Sprintf("%g%% applied %s", st.Percentage, st.AppliedAt.Format(timeLayout))
		if st.Metrics != nil {
			line += fmt.Sprintf(", error rate %.1f%%", st.Metrics.ErrorRate*100)
		}
		b.WriteString(s.Muted.Render("  • "+line) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RecordsView renders a deployment list as one line per record.
type RecordsView struct{ Records []*deploy.Record }

func (v RecordsView) value() any { return v.Records }

// Render implements Renderer.
func (v RecordsView) Render(s Styles) string {
	if len(v.Records) == 0 {
		return s.Muted.Render("no deployments")
	}
	lines := make([]string, 0, len(v.Records))
	for _, r := range v.Records {
		lines = append(lines, fmt.Sprintf("%s  %-14s  %s/%s  %g%%  %s",
			r.StartedAt.Format(timeLayout), s.Status(r.Status), r.Platform, r.AffectedFunction,
			r.CurrentPercentage, s.Muted.Render(r.ID)))
	}
	return strings.Join(lines, "\n")
}

// DiagnosisView renders a diagnosis.
type DiagnosisView struct{ Diagnosis *diagnosis.Diagnosis }

func (v DiagnosisView) value() any { return v.Diagnosis }

// Render implements Renderer.
func (v DiagnosisView) Render(s Styles) string {
	d := v.Diagnosis
	var b strings.Builder
	b.WriteString(s.Title.Render("Diagnosis") + "\n")
	row(&b, s, "Error", d.Failure.String())
	row(&b, s, "Category", fmt.Sprintf("%s (%.2f)", d.Classification.Category, d.Classification.Confidence))
	row(&b, s, "Severity", severity(s, string(d.Analysis.Severity)))
	if d.Analysis.Summary != "" {
		row(&b, s, "Summary", d.Analysis.Summary)
	}
	if len(d.BrokenSelectors) > 0 {
		row(&b, s, "Broken", strings.Join(d.BrokenSelectors, ", "))
	}
	for _, a := range d.Analysis.SuggestedActions {
		b.WriteString(s.Muted.Render("  → "+a) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ValidationView renders a validation result.
type ValidationView struct{ Result *eval.ValidationResult }

func (v ValidationView) value() any { return v.Result }

// Render implements Renderer.
func (v ValidationView) Render(s Styles) string {
	r := v.Result
	var b strings.Builder
	verdict := s.Success.Render("PASSED")
	if !r.Passed {
		verdict = s.Danger.Render("FAILED")
	}
	fmt.Fprintf(&b, "%s %s  %d/%d tests in %s\n", s.Title.Render("Validation"), verdict,
		r.PassedTests, r.TotalTests, r.Duration().Round(time.Millisecond))
	for _, f := range r.Failures {
		b.WriteString(s.Danger.Render("  ✗ "+f.TestName) + "\n")
		for _, line := range strings.Split(strings.TrimSpace(f.Error), "\n") {
			b.WriteString(s.Code.Render(line) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// OutcomeView renders a full heal run.
type OutcomeView struct{ Outcome *heal.Outcome }

func (v OutcomeView) value() any { return v.Outcome }

// Render implements Renderer.
func (v OutcomeView) Render(s Styles) string {
	o := v.Outcome
	parts := []string{}
	if o.Diagnosis != nil {
		parts = append(parts, DiagnosisView{o.Diagnosis}.Render(s))
	}
	if o.Fix != nil {
		var b strings.Builder
		b.WriteString(s.Title.Render("Fix") + "\n")
		row(&b, s, "Confidence", fmt.Sprintf("%.2f", o.Fix.Confidence))
		row(&b, s, "Patches", fmt.Sprintf("%d", len(o.Fix.SuggestedFix)))
		row(&b, s, "Tests", fmt.Sprintf("%d", len(o.Fix.TestCases)))
		if o.FixHash != "" {
			row(&b, s, "Hash", shortHash(o.FixHash))
		}
		row(&b, s, "Diagnosis", o.Fix.Diagnosis)
		parts = append(parts, strings.TrimRight(b.String(), "\n"))
	}
	if o.Validation != nil {
		parts = append(parts, ValidationView{o.Validation}.Render(s))
	}
	if o.Record != nil {
		rv := RecordView{o.Record}.Render(s)
		if o.Duplicate {
			rv += "\n" + s.Muted.Render("  fix already deployed; nothing rolled out")
		}
		parts = append(parts, rv)
	}
	return strings.Join(parts, "\n\n")
}

func row(b *strings.Builder, s Styles, label, value string) {
	fmt.Fprintf(b, "  %s %s\n", s.Label.Render(label+":"), value)
}

func severity(s Styles, sev string) string {
	switch sev {
	case "critical", "high":
		return s.Danger.Render(sev)
	case "medium":
		return s.Warning.Render(sev)
	default:
		return sev
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
