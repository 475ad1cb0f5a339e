// Package snapshot captures structural snapshots of the UI elements a
// browser-automation routine depends on, and diffs two snapshots to show
// what changed between a working run and a failing one.
//
// The browser itself is an external collaborator: the Engine reads elements
// through the Page interface and receives console and network activity
// through an EventBuffer that the owner starts and stops explicitly.
package snapshot

import (
	"fmt"
	"time"
)

// BoundingBox is an element's layout rectangle in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// String renders the box as "x,y wxh".
func (b *BoundingBox) String() string {
	if b == nil {
		return "none"
	}
	return fmt.Sprintf("%.1f,%.1f %.1fx%.1f", b.X, b.Y, b.Width, b.Height)
}

// ElementSnapshot is the captured state of one tracked selector.
type ElementSnapshot struct {
	Selector    string            `json:"selector"`
	Missing     bool              `json:"missing"`
	BoundingBox *BoundingBox      `json:"boundingBox,omitempty"`
	Text        string            `json:"text,omitempty"`
	HTML        string            `json:"html,omitempty"`
	Truncated   bool              `json:"truncated,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	ReadError   string            `json:"readError,omitempty"`
}

// ConsoleEntry is one console message emitted by the page.
type ConsoleEntry struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NetworkFailure is a request that failed at the transport level or
// returned an HTTP error status.
type NetworkFailure struct {
	URL       string    `json:"url"`
	Method    string    `json:"method,omitempty"`
	Status    int       `json:"status,omitempty"`
	ErrorText string    `json:"errorText,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// String renders the failure as a single log line.
func (n NetworkFailure) String() string {
	method := n.Method
	if method == "" {
		method = "GET"
	}
	switch {
	case n.Status > 0 && n.ErrorText != "":
		return fmt.Sprintf("%s %s -> %d (%s)", method, n.URL, n.Status, n.ErrorText)
	case n.Status > 0:
		return fmt.Sprintf("%s %s -> %d", method, n.URL, n.Status)
	default:
		return fmt.Sprintf("%s %s -> %s", method, n.URL, n.ErrorText)
	}
}

// DOMSnapshot is an immutable capture of the tracked elements plus the
// console and network activity observed since the previous snapshot.
type DOMSnapshot struct {
	URL            string            `json:"url,omitempty"`
	CapturedAt     time.Time         `json:"capturedAt"`
	Elements       []ElementSnapshot `json:"elements"`
	Console        []ConsoleEntry    `json:"console,omitempty"`
	FailedRequests []NetworkFailure  `json:"failedRequests,omitempty"`
}

// Element returns the snapshot of selector, if it was tracked.
func (s *DOMSnapshot) Element(selector string) (ElementSnapshot, bool) {
	if s == nil {
		return ElementSnapshot{}, false
	}
	for _, el := range s.Elements {
		if el.Selector == selector {
			return el, true
		}
	}
	return ElementSnapshot{}, false
}

// Present reports whether selector was tracked and found on the page.
func (s *DOMSnapshot) Present(selector string) bool {
	el, ok := s.Element(selector)
	return ok && !el.Missing
}

// Selectors returns the tracked selectors in capture order.
func (s *DOMSnapshot) Selectors() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Elements))
	for _, el := range s.Elements {
		out = append(out, el.Selector)
	}
	return out
}
