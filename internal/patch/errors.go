package patch

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// MismatchError reports that a patch's OriginalCode no longer matches the
// addressed lines, which means the fix is stale or hallucinated.
type MismatchError struct {
	FilePath  string
	StartLine int
	EndLine   int
	Expected  string
	Actual    string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("patch mismatch in %s at lines %d-%d: expected %q, found %q",
		e.FilePath, e.StartLine, e.EndLine, Normalize(e.Expected), Normalize(e.Actual))
}

// Detail renders a character-level diff of expected against actual in
// word-diff notation: [-removed-] and {+added+}.
func (e *MismatchError) Detail() string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(e.Expected, e.Actual, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

// RangeError reports a patch whose line range falls outside the file.
type RangeError struct {
	FilePath  string
	StartLine int
	EndLine   int
	LineCount int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("patch range %d-%d out of bounds for %s (%d lines)",
		e.StartLine, e.EndLine, e.FilePath, e.LineCount)
}

// OverlapError reports two patches in one file whose ranges intersect.
type OverlapError struct {
	FilePath string
	First    [2]int
	Second   [2]int
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping patches in %s: lines %d-%d and %d-%d",
		e.FilePath, e.First[0], e.First[1], e.Second[0], e.Second[1])
}

// MissingFileError reports a patch targeting a file absent from the set.
type MissingFileError struct {
	FilePath string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("patch targets unknown file %s", e.FilePath)
}
