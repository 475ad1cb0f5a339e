// Package patch applies line-addressed code patches to an in-memory file
// set, synthesizes the inverse patch set, and renders patch sets as
// unified diffs.
//
// Application is copy-on-write: ApplyPatches never mutates its input.
package patch

import (
	"fmt"
	"sort"
	"strings"
)

// CodePatch replaces the inclusive, 1-indexed line range [StartLine,
// EndLine] of FilePath. EndLine == StartLine-1 addresses the empty range
// before StartLine, which turns the patch into a pure insertion.
type CodePatch struct {
	FilePath        string `json:"filePath"`
	StartLine       int    `json:"startLine"`
	EndLine         int    `json:"endLine"`
	OriginalCode    string `json:"originalCode"`
	ReplacementCode string `json:"replacementCode"`
}

// LineCount is the number of lines the patch addresses.
func (p CodePatch) LineCount() int {
	return p.EndLine - p.StartLine + 1
}

// IsInsertion reports whether the patch addresses an empty range.
func (p CodePatch) IsInsertion() bool {
	return p.EndLine == p.StartLine-1
}

// Delta is the change in file length after the patch is applied.
func (p CodePatch) Delta() int {
	return len(SplitLines(p.ReplacementCode)) - p.LineCount()
}

// Files maps a file path to its full content.
type Files map[string]string

// Clone returns a shallow copy of f.
func (f Files) Clone() Files {
	out := make(Files, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Paths returns the file paths in sorted order.
func (f Files) Paths() []string {
	paths := make([]string, 0, len(f))
	for k := range f {
		paths = append(paths, k)
	}
	sort.Strings(paths)
	return paths
}

// ApplyPatches applies patches to a copy of files and returns the copy.
// Patches are grouped by file and applied bottom-up (descending StartLine),
// so every patch is addressed by pre-patch line numbers. A pure insertion
// may share its start line with a replacement; it lands above the replaced
// range. Content inserted into an empty file ends with a newline. Overlapping
// ranges, out-of-bounds ranges and stale OriginalCode are rejected before
// the file is touched.
func ApplyPatches(files Files, patches []CodePatch) (Files, error) {
	out := files.Clone()

	for _, path := range patchedPaths(patches) {
		content, ok := out[path]
		if !ok {
			return nil, &MissingFileError{FilePath: path}
		}

		group := patchesFor(patches, path)
		if err := checkOverlap(path, group); err != nil {
			return nil, err
		}

		lines, trailingNewline := splitContent(content)
		if len(lines) == 0 {
			trailingNewline = true
		}

		sort.SliceStable(group, func(i, j int) bool {
			if group[i].StartLine != group[j].StartLine {
				return group[i].StartLine > group[j].StartLine
			}
			return group[i].EndLine > group[j].EndLine
		})

		for _, p := range group {
			var err error
			if lines, err = applyOne(lines, p); err != nil {
				return nil, err
			}
		}

		out[path] = joinContent(lines, trailingNewline)
	}
	return out, nil
}

func applyOne(lines []string, p CodePatch) ([]string, error) {
	if p.StartLine < 1 || p.EndLine < p.StartLine-1 || p.EndLine > len(lines) {
		return nil, &RangeError{FilePath: p.FilePath, StartLine: p.StartLine, EndLine: p.EndLine, LineCount: len(lines)}
	}

	current := lines[p.StartLine-1 : p.EndLine]
	actual := strings.Join(current, "\n")
	if Normalize(actual) != Normalize(p.OriginalCode) {
		return nil, &MismatchError{
			FilePath:  p.FilePath,
			StartLine: p.StartLine,
			EndLine:   p.EndLine,
			Expected:  p.OriginalCode,
			Actual:    actual,
		}
	}

	replacement := SplitLines(p.ReplacementCode)
	next := make([]string, 0, len(lines)+len(replacement)-len(current))
	next = append(next, lines[:p.StartLine-1]...)
	next = append(next, replacement...)
	next = append(next, lines[p.EndLine:]...)
	return next, nil
}

// checkOverlap rejects any two patches in one file whose ranges intersect
// or which share a start line, unless exactly one of them is a pure
// insertion.
func checkOverlap(path string, group []CodePatch) error {
	sorted := make([]CodePatch, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartLine != sorted[j].StartLine {
			return sorted[i].StartLine < sorted[j].StartLine
		}
		return sorted[i].EndLine < sorted[j].EndLine
	})

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		sameStart := cur.StartLine == prev.StartLine && !(prev.IsInsertion() && !cur.IsInsertion())
		if cur.StartLine <= prev.EndLine || sameStart {
			return &OverlapError{
				FilePath: path,
				First:    [2]int{prev.StartLine, prev.EndLine},
				Second:   [2]int{cur.StartLine, cur.EndLine},
			}
		}
	}
	return nil
}

// patchedPaths returns the distinct file paths in first-seen order.
func patchedPaths(patches []CodePatch) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, p := range patches {
		if !seen[p.FilePath] {
			seen[p.FilePath] = true
			paths = append(paths, p.FilePath)
		}
	}
	return paths
}

func patchesFor(patches []CodePatch, path string) []CodePatch {
	var out []CodePatch
	for _, p := range patches {
		if p.FilePath == path {
			out = append(out, p)
		}
	}
	return out
}

// Normalize collapses whitespace runs within each line, trims every line
// and drops leading and trailing blank lines. Two code fragments that
// differ only in indentation or line endings normalize equal.
func Normalize(code string) string {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// SplitLines splits code into lines. The empty string has no lines and a
// single trailing newline does not produce an extra empty line.
func SplitLines(code string) []string {
	if code == "" {
		return nil
	}
	code = strings.TrimSuffix(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	return strings.Split(code, "\n")
}

func splitContent(content string) ([]string, bool) {
	trailing := strings.HasSuffix(content, "\n")
	return SplitLines(content), trailing
}

func joinContent(lines []string, trailingNewline bool) string {
	s := strings.Join(lines, "\n")
	if trailingNewline && len(lines) > 0 {
		s += "\n"
	}
	return s
}

// String renders the patch location as "path:start-end".
func (p CodePatch) String() string {
	return fmt.Sprintf("%s:%d-%d", p.FilePath, p.StartLine, p.EndLine)
}
