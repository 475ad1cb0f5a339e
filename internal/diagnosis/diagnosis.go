// Package diagnosis ties snapshotting, classification and root cause
// analysis together around a single failure of an automation routine.
package diagnosis

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/autoheal/internal/classify"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/rootcause"
	"github.com/felixgeelhaar/autoheal/internal/snapshot"
)

// Diagnosis is everything known about one failure.
type Diagnosis struct {
	Failure         classify.Failure        `json:"error"`
	Classification  classify.Classification `json:"classification"`
	Analysis        rootcause.Analysis      `json:"analysis"`
	Diff            *snapshot.DOMDiff       `json:"diff,omitempty"`
	Before          *snapshot.DOMSnapshot   `json:"before,omitempty"`
	After           *snapshot.DOMSnapshot   `json:"after,omitempty"`
	BrokenSelectors []string                `json:"brokenSelectors"`
	Screenshot      []byte                  `json:"-"`
	DiagnosedAt     time.Time               `json:"diagnosedAt"`
}

// FromSnapshots diagnoses a failure from already captured snapshots.
// before and after may be nil.
func FromSnapshots(f classify.Failure, before, after *snapshot.DOMSnapshot, analyzer *rootcause.Analyzer) *Diagnosis {
	if analyzer == nil {
		analyzer = rootcause.NewAnalyzer(rootcause.Thresholds{})
	}

	var diff *snapshot.DOMDiff
	if before != nil && after != nil {
		diff = snapshot.Diff(before, after)
	}

	c := classify.Classify(f, diff, after)
	return &Diagnosis{
		Failure:         f,
		Classification:  c,
		Analysis:        analyzer.Analyze(f, c, diff, before, after),
		Diff:            diff,
		Before:          before,
		After:           after,
		BrokenSelectors: brokenSelectors(f.Selector, diff, after),
	}
}

// brokenSelectors lists the failing selector first when it no longer
// resolves, followed by every removed or modified selector.
func brokenSelectors(failing string, diff *snapshot.DOMDiff, after *snapshot.DOMSnapshot) []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(sel string) {
		if sel != "" && !seen[sel] {
			seen[sel] = true
			out = append(out, sel)
		}
	}

	if failing != "" && (after == nil || !after.Present(failing)) {
		add(failing)
	}
	for _, sel := range diff.Selectors(snapshot.ChangeRemoved, snapshot.ChangeModified) {
		add(sel)
	}
	return out
}

// FixInput is the routine-specific context a FixRequest needs beyond the
// diagnosis itself.
type FixInput struct {
	LastWorkingCode  string
	Platform         string
	AffectedFunction string
}

// FixRequest builds the immutable request handed to the fix generator.
func (d *Diagnosis) FixRequest(in FixInput) fixgen.FixRequest {
	changes := "no baseline snapshot available"
	if d.Diff != nil {
		changes = d.Diff.Summary()
	}
	req := fixgen.FixRequest{
		Error: fixgen.ErrorInfo{Name: d.Failure.Name, Message: d.Failure.Message},
		Diagnosis: fixgen.DiagnosisInfo{
			Category:         string(d.Classification.Category),
			Severity:         string(d.Analysis.Severity),
			Summary:          d.Analysis.Summary,
			BrokenSelectors:  d.BrokenSelectors,
			SuggestedActions: d.Analysis.SuggestedActions,
		},
		Context: fixgen.FailureContext{
			Screenshot:      d.Screenshot,
			DOM:             domExcerpt(d.Before, d.After, d.BrokenSelectors),
			NetworkLogs:     networkLogs(d.After),
			LastWorkingCode: in.LastWorkingCode,
			RecentChanges:   changes,
		},
		Platform:         in.Platform,
		AffectedFunction: in.AffectedFunction,
	}
	return req.Clone()
}

// domExcerpt renders the last known markup of each broken selector,
// followed by every element still present after the failure.
func domExcerpt(before, after *snapshot.DOMSnapshot, broken []string) string {
	var b strings.Builder
	for _, sel := range broken {
		if el, ok := before.Element(sel); ok && !el.Missing && el.HTML != "" {
			fmt.Fprintf(&b, "<!-- %s (before failure) -->\n%s\n", sel, el.HTML)
		}
	}
	if after != nil {
		for _, el := range after.Elements {
			if el.Missing || el.HTML == "" {
				continue
			}
			fmt.Fprintf(&b, "<!-- %s -->\n%s\n", el.Selector, el.HTML)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func networkLogs(after *snapshot.DOMSnapshot) []string {
	if after == nil {
		return nil
	}
	logs := make([]string, 0, len(after.FailedRequests))
	for _, nf := range after.FailedRequests {
		logs = append(logs, nf.String())
	}
	return logs
}
