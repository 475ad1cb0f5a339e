// Package rootcause turns an error classification and DOM diff into a
// human-readable explanation, ordered remediation actions and a severity.
// Every function here is a deterministic function of its inputs.
package rootcause

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/autoheal/internal/classify"
	"github.com/felixgeelhaar/autoheal/internal/snapshot"
)

// Severity ranks how urgently a failure needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 0 (low) to 3 (critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Analysis is the root cause report for one failure.
type Analysis struct {
	Summary          string   `json:"summary"`
	SuggestedActions []string `json:"suggestedActions"`
	Severity         Severity `json:"severity"`
}

// Thresholds are the change ratios that escalate severity.
type Thresholds struct {
	// Critical escalates any failure whose change ratio exceeds it.
	Critical float64
	// High splits SELECTOR_NOT_FOUND into medium and high.
	High float64
}

// DefaultThresholds returns the standard escalation ratios.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 0.5, High: 0.2}
}

// maxNamedSelectors caps how many selectors the summary names.
const maxNamedSelectors = 3

// Analyzer produces Analyses using fixed thresholds.
type Analyzer struct {
	thresholds Thresholds
}

// NewAnalyzer creates an Analyzer. Zero thresholds fall back to the defaults.
func NewAnalyzer(t Thresholds) *Analyzer {
	def := DefaultThresholds()
	if t.Critical <= 0 {
		t.Critical = def.Critical
	}
	if t.High <= 0 {
		t.High = def.High
	}
	return &Analyzer{thresholds: t}
}

// AssessSeverity ranks a classified failure.
func (a *Analyzer) AssessSeverity(c classify.Classification, diff *snapshot.DOMDiff) Severity {
	ratio := 0.0
	if diff != nil {
		ratio = diff.ChangeRatio
	}

	if c.Category == classify.DetectionSuspected || ratio > a.thresholds.Critical {
		return SeverityCritical
	}

	switch c.Category {
	case classify.SelectorNotFound:
		if ratio >= a.thresholds.High {
			return SeverityHigh
		}
		return SeverityMedium
	case classify.RateLimited, classify.Unknown:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Analyze explains the failure. before is accepted for symmetry with the
// diff and used only to name the page when after is unavailable.
func (a *Analyzer) Analyze(f classify.Failure, c classify.Classification, diff *snapshot.DOMDiff, before, after *snapshot.DOMSnapshot) Analysis {
	selectors := diff.MostChanged(maxNamedSelectors)
	if len(selectors) == 0 && f.Selector != "" {
		selectors = []string{f.Selector}
	}

	return Analysis{
		Summary:          summarize(f, c, diff, selectors, pageURL(before, after)),
		SuggestedActions: suggestedActions(c.Category, selectors, f),
		Severity:         a.AssessSeverity(c, diff),
	}
}

// AssessSeverity ranks a failure with the default thresholds.
func AssessSeverity(c classify.Classification, diff *snapshot.DOMDiff) Severity {
	return NewAnalyzer(Thresholds{}).AssessSeverity(c, diff)
}

// Analyze explains a failure with the default thresholds.
func Analyze(f classify.Failure, c classify.Classification, diff *snapshot.DOMDiff, before, after *snapshot.DOMSnapshot) Analysis {
	return NewAnalyzer(Thresholds{}).Analyze(f, c, diff, before, after)
}

func pageURL(before, after *snapshot.DOMSnapshot) string {
	if after != nil && after.URL != "" {
		return after.URL
	}
	if before != nil {
		return before.URL
	}
	return ""
}

func summarize(f classify.Failure, c classify.Classification, diff *snapshot.DOMDiff, selectors []string, url string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", categoryPhrase(c.Category))

	if len(selectors) > 0 {
		fmt.Fprintf(&b, " affecting %s", strings.Join(selectors, ", "))
	}
	if url != "" {
		fmt.Fprintf(&b, " on %s", url)
	}

	if diff != nil && diff.TrackedElements > 0 {
		fmt.Fprintf(&b, " (%d of %d tracked elements changed)", diff.ChangedElements, diff.TrackedElements)
	}
	if f.Message != "" {
		fmt.Fprintf(&b, ": %s", firstLine(f.Message))
	}
	b.WriteString(".")
	return b.String()
}

func categoryPhrase(c classify.Category) string {
	switch c {
	case classify.SelectorNotFound:
		return "SELECTOR_NOT_FOUND: the page structure changed"
	case classify.RateLimited:
		return "RATE_LIMITED: the platform is throttling requests"
	case classify.NetworkError:
		return "NETWORK_ERROR: a network request failed"
	case classify.DetectionSuspected:
		return "DETECTION_SUSPECTED: a verification challenge appeared"
	case classify.Timeout:
		return "TIMEOUT: the operation timed out without a structural change"
	default:
		return "UNKNOWN: the failure did not match a known pattern"
	}
}

func suggestedActions(c classify.Category, selectors []string, f classify.Failure) []string {
	switch c {
	case classify.SelectorNotFound:
		actions := make([]string, 0, len(selectors)+2)
		for _, s := range selectors {
			actions = append(actions, fmt.Sprintf("update selector for %s", s))
		}
		return append(actions,
			"prefer stable attributes (ids, aria labels, data attributes) over layout classes",
			"add a fallback selector and re-run the affected function")
	case classify.RateLimited:
		return []string{
			"back off and retry with exponential delay",
			"reduce request rate for this platform",
			"spread actions across sessions",
		}
	case classify.NetworkError:
		return []string{
			"retry the request after a short delay",
			"check connectivity and proxy configuration",
			"verify the endpoint is reachable",
		}
	case classify.DetectionSuspected:
		return []string{
			"pause automation for this account",
			"review browser fingerprint and stealth settings",
			"resolve the verification challenge manually before resuming",
		}
	case classify.Timeout:
		return []string{
			"increase the wait timeout for " + orDefault(f.Selector, "the operation"),
			"check whether the page is slow to load",
			"retry the operation",
		}
	default:
		return []string{
			"inspect the console and network logs captured with the failure",
			"reproduce the failure with a fresh snapshot",
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
