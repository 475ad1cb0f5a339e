package fixgen

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/felixgeelhaar/autoheal/internal/snapshot"
)

// DefaultDOMBudget is the byte budget for the DOM excerpt in a prompt.
const DefaultDOMBudget = 8000

// TruncatedMarker is appended to a DOM excerpt cut at the budget.
const TruncatedMarker = "[truncated]"

// NoNetworkLogs is printed when the request carries no network logs.
const NoNetworkLogs = none

const none = "(none)"

// SystemPrompt instructs the oracle on the response contract.
const SystemPrompt = `You repair browser-automation code after a website change broke it.
Respond with a single JSON object and nothing else. The object must have exactly these fields:
  "diagnosis": string, one paragraph explaining the root cause
  "confidence": number between 0 and 1
  "suggestedFix": array of patches, each {"filePath": string, "startLine": integer, "endLine": integer, "originalCode": string, "replacementCode": string}
  "testCases": array of tests, each {"name": string, "description": string, "code": string, "filePath": string}
  "rollbackPlan": string
Line numbers are 1-indexed and inclusive and refer to the last working code as given.
originalCode must reproduce the addressed lines exactly. Patches must not overlap.
Every fix must ship with at least one test case that fails before the fix and passes after it.`

// PromptOptions bounds prompt construction.
type PromptOptions struct {
	// DOMBudget caps the DOM excerpt in bytes. Default DefaultDOMBudget.
	DOMBudget int

	// KeepRawDOM skips sanitizing the excerpt.
	KeepRawDOM bool
}

func (o *PromptOptions) defaults() {
	if o.DOMBudget <= 0 {
		o.DOMBudget = DefaultDOMBudget
	}
}

// domPolicy keeps the structure and the attributes selectors are built
// from; scripts, styles and event handlers are dropped.
func domPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"html", "body", "main", "header", "footer", "nav", "section", "article", "aside",
		"div", "span", "p", "a", "button", "form", "input", "textarea", "select", "option", "label",
		"ul", "ol", "li", "table", "thead", "tbody", "tr", "th", "td",
		"h1", "h2", "h3", "h4", "h5", "h6", "img", "iframe", "svg", "dialog",
	)
	p.AllowAttrs(
		"id", "class", "name", "type", "role", "title", "placeholder", "value", "for", "alt",
		"aria-label", "aria-labelledby", "aria-describedby", "aria-hidden", "aria-expanded",
		"contenteditable", "tabindex", "disabled",
	).Globally()
	p.AllowDataAttributes()
	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src").OnElements("img", "iframe")
	p.AllowAttrs("action", "method").OnElements("form")
	return p
}

// BuildPrompt renders the user message for a fix request.
func BuildPrompt(req FixRequest, opts PromptOptions) string {
	opts.defaults()

	var b strings.Builder

	b.WriteString("## Error\n")
	fmt.Fprintf(&b, "%s: %s\n", orUnknown(req.Error.Name), req.Error.Message)
	if req.Platform != "" {
		fmt.Fprintf(&b, "Platform: %s\n", req.Platform)
	}
	if req.AffectedFunction != "" {
		fmt.Fprintf(&b, "Affected function: %s\n", req.AffectedFunction)
	}

	b.WriteString("\n## Diagnosis\n")
	fmt.Fprintf(&b, "Category: %s\n", orUnknown(req.Diagnosis.Category))
	fmt.Fprintf(&b, "Severity: %s\n", orUnknown(req.Diagnosis.Severity))
	if len(req.Diagnosis.BrokenSelectors) > 0 {
		fmt.Fprintf(&b, "Broken selectors: %s\n", strings.Join(req.Diagnosis.BrokenSelectors, ", "))
	} else {
		b.WriteString("Broken selectors: " + none + "\n")
	}
	if req.Diagnosis.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", req.Diagnosis.Summary)
	}
	for _, a := range req.Diagnosis.SuggestedActions {
		fmt.Fprintf(&b, "- %s\n", a)
	}

	b.WriteString("\n## Last working code\n```\n")
	b.WriteString(strings.TrimRight(req.Context.LastWorkingCode, "\n"))
	b.WriteString("\n```\n")

	b.WriteString("\n## Recent page changes\n")
	if req.Context.RecentChanges != "" {
		b.WriteString(req.Context.RecentChanges)
		b.WriteString("\n")
	} else {
		b.WriteString(none + "\n")
	}

	b.WriteString("\n## Network logs\n")
	b.WriteString(FormatNetworkLogs(req.Context.NetworkLogs))
	b.WriteString("\n")

	b.WriteString("\n## DOM excerpt\n```html\n")
	dom := req.Context.DOM
	if !opts.KeepRawDOM {
		dom = domPolicy().Sanitize(dom)
	}
	b.WriteString(TruncateDOM(dom, opts.DOMBudget))
	b.WriteString("\n```\n")

	if len(req.Context.Screenshot) > 0 {
		fmt.Fprintf(&b, "\nA screenshot of the failing page was captured (%d bytes).\n", len(req.Context.Screenshot))
	}
	return b.String()
}

// FormatNetworkLogs renders one log per line, or "(none)".
func FormatNetworkLogs(logs []string) string {
	if len(logs) == 0 {
		return NoNetworkLogs
	}
	var b strings.Builder
	for i, l := range logs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(l)
	}
	return b.String()
}

// TruncateDOM caps dom at budget bytes and appends TruncatedMarker when it
// had to cut.
func TruncateDOM(dom string, budget int) string {
	out, _ := snapshot.Truncate(dom, budget, TruncatedMarker)
	return out
}

// Messages returns the system and user messages for req.
func Messages(req FixRequest, opts PromptOptions) []Message {
	return []Message{
		{Role: RoleSystem, Content: SystemPrompt},
		{Role: RoleUser, Content: BuildPrompt(req, opts)},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
