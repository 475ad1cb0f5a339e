// Package fixgen asks a text-generation oracle for a structured fix and
// parses its answer strictly: a response is either a complete FixResponse
// or a ParseError naming the offending field.
package fixgen

import (
	"github.com/felixgeelhaar/autoheal/internal/patch"
)

// ErrorInfo is the failure being fixed.
type ErrorInfo struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// DiagnosisInfo is the part of a diagnosis that enters the prompt.
type DiagnosisInfo struct {
	Category         string   `json:"category"`
	Severity         string   `json:"severity"`
	Summary          string   `json:"summary,omitempty"`
	BrokenSelectors  []string `json:"brokenSelectors,omitempty"`
	SuggestedActions []string `json:"suggestedActions,omitempty"`
}

// FailureContext is the evidence captured around the failure.
type FailureContext struct {
	Screenshot      []byte   `json:"screenshot,omitempty"`
	DOM             string   `json:"dom"`
	NetworkLogs     []string `json:"networkLogs"`
	LastWorkingCode string   `json:"lastWorkingCode"`
	RecentChanges   string   `json:"recentChanges"`
}

// FixRequest is built once per failure and never modified afterwards.
type FixRequest struct {
	Error            ErrorInfo      `json:"error"`
	Diagnosis        DiagnosisInfo  `json:"diagnosis"`
	Context          FailureContext `json:"context"`
	Platform         string         `json:"platform"`
	AffectedFunction string         `json:"affectedFunction"`
}

// Clone returns a deep copy so callers cannot share slices with the
// original request.
func (r FixRequest) Clone() FixRequest {
	out := r
	out.Diagnosis.BrokenSelectors = append([]string(nil), r.Diagnosis.BrokenSelectors...)
	out.Diagnosis.SuggestedActions = append([]string(nil), r.Diagnosis.SuggestedActions...)
	out.Context.NetworkLogs = append([]string(nil), r.Context.NetworkLogs...)
	out.Context.Screenshot = append([]byte(nil), r.Context.Screenshot...)
	return out
}

// TestCase is a self-contained check generated with the fix. It is the
// only correctness oracle validation has.
type TestCase struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
	FilePath    string `json:"filePath"`
}

// FixResponse is the oracle's accepted answer.
type FixResponse struct {
	Diagnosis    string            `json:"diagnosis"`
	Confidence   float64           `json:"confidence"`
	SuggestedFix []patch.CodePatch `json:"suggestedFix"`
	TestCases    []TestCase        `json:"testCases"`
	RollbackPlan string            `json:"rollbackPlan"`
}
