package snapshot

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ChangeKind classifies how a tracked element changed between snapshots.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// Field names used in FieldChange.
const (
	FieldText        = "text"
	FieldBoundingBox = "bbox"
	attrFieldPrefix  = "attr:"
)

// bboxTolerance absorbs sub-pixel layout jitter.
const bboxTolerance = 0.5

// FieldChange is one differing field of a modified element.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// ElementChange describes one selector whose state differs.
type ElementChange struct {
	Selector string        `json:"selector"`
	Kind     ChangeKind    `json:"kind"`
	Details  []FieldChange `json:"details,omitempty"`
}

// DOMDiff is the element-wise comparison of two snapshots.
type DOMDiff struct {
	Changes         []ElementChange `json:"changes"`
	TrackedElements int             `json:"trackedElements"`
	ChangedElements int             `json:"changedElements"`
	ChangeRatio     float64         `json:"changeRatio"`
}

// Diff compares before and after by selector. The ratio is computed over the
// union of tracked selectors and is 0 when nothing is tracked. Elements
// flagged missing count as absent.
func Diff(before, after *DOMSnapshot) *DOMDiff {
	union := selectorUnion(before, after)
	d := &DOMDiff{TrackedElements: len(union)}

	for _, sel := range union {
		b, inBefore := before.Element(sel)
		a, inAfter := after.Element(sel)
		inBefore = inBefore && !b.Missing
		inAfter = inAfter && !a.Missing

		switch {
		case inBefore && !inAfter:
			d.Changes = append(d.Changes, ElementChange{Selector: sel, Kind: ChangeRemoved})
		case !inBefore && inAfter:
			d.Changes = append(d.Changes, ElementChange{Selector: sel, Kind: ChangeAdded})
		case inBefore && inAfter:
			if details := compareElements(b, a); len(details) > 0 {
				d.Changes = append(d.Changes, ElementChange{Selector: sel, Kind: ChangeModified, Details: details})
			}
		}
	}

	d.ChangedElements = len(d.Changes)
	if d.TrackedElements > 0 {
		d.ChangeRatio = float64(d.ChangedElements) / float64(d.TrackedElements)
	}
	return d
}

// Change returns the change recorded for selector, if any.
func (d *DOMDiff) Change(selector string) (ElementChange, bool) {
	if d == nil {
		return ElementChange{}, false
	}
	for _, c := range d.Changes {
		if c.Selector == selector {
			return c, true
		}
	}
	return ElementChange{}, false
}

// Selectors returns the selectors of changes of the given kinds, in diff order.
// With no kinds, every changed selector is returned.
func (d *DOMDiff) Selectors(kinds ...ChangeKind) []string {
	if d == nil {
		return nil
	}
	var out []string
	for _, c := range d.Changes {
		if len(kinds) == 0 || containsKind(kinds, c.Kind) {
			out = append(out, c.Selector)
		}
	}
	return out
}

// MostChanged returns up to n selectors ordered by how much they changed:
// removals first, then modifications by number of differing fields.
func (d *DOMDiff) MostChanged(n int) []string {
	if d == nil || n <= 0 {
		return nil
	}
	changes := make([]ElementChange, len(d.Changes))
	copy(changes, d.Changes)
	sort.SliceStable(changes, func(i, j int) bool {
		return changeWeight(changes[i]) > changeWeight(changes[j])
	})
	if len(changes) > n {
		changes = changes[:n]
	}
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Selector
	}
	return out
}

// Empty reports whether the diff holds no changes.
func (d *DOMDiff) Empty() bool {
	return d == nil || len(d.Changes) == 0
}

// Summary renders the diff as a short multi-line description.
func (d *DOMDiff) Summary() string {
	if d.Empty() {
		return "no structural changes detected"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d tracked elements changed (%.0f%%)",
		d.ChangedElements, d.TrackedElements, d.ChangeRatio*100)
	for _, c := range d.Changes {
		fmt.Fprintf(&b, "\n- %s %s", c.Kind, c.Selector)
		for _, f := range c.Details {
			fmt.Fprintf(&b, "\n    %s: %q -> %q", f.Field, f.Before, f.After)
		}
	}
	return b.String()
}

func changeWeight(c ElementChange) int {
	switch c.Kind {
	case ChangeRemoved:
		return 1000
	case ChangeModified:
		return len(c.Details)
	default:
		return 0
	}
}

func containsKind(kinds []ChangeKind, k ChangeKind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func selectorUnion(before, after *DOMSnapshot) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range [...]*DOMSnapshot{before, after} {
		for _, sel := range s.Selectors() {
			if !seen[sel] {
				seen[sel] = true
				out = append(out, sel)
			}
		}
	}
	return out
}

func compareElements(before, after ElementSnapshot) []FieldChange {
	var details []FieldChange

	if !sameBox(before.BoundingBox, after.BoundingBox) {
		details = append(details, FieldChange{
			Field:  FieldBoundingBox,
			Before: before.BoundingBox.String(),
			After:  after.BoundingBox.String(),
		})
	}

	if before.Text != after.Text {
		details = append(details, FieldChange{Field: FieldText, Before: before.Text, After: after.Text})
	}

	keys := make(map[string]bool, len(before.Attributes)+len(after.Attributes))
	for k := range before.Attributes {
		keys[k] = true
	}
	for k := range after.Attributes {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		bv, bok := before.Attributes[k]
		av, aok := after.Attributes[k]
		if bok == aok && bv == av {
			continue
		}
		details = append(details, FieldChange{Field: attrFieldPrefix + k, Before: bv, After: av})
	}
	return details
}

func sameBox(a, b *BoundingBox) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(a.X-b.X) <= bboxTolerance &&
		math.Abs(a.Y-b.Y) <= bboxTolerance &&
		math.Abs(a.Width-b.Width) <= bboxTolerance &&
		math.Abs(a.Height-b.Height) <= bboxTolerance
}
