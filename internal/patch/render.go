package patch

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/sourcegraph/go-diff/diff"
)

// RenderUnified renders a patch set as a multi-file unified diff. Hunks
// are built from each patch's OriginalCode and ReplacementCode, so no file
// content is needed.
func RenderUnified(patches []CodePatch) (string, error) {
	if len(patches) == 0 {
		return "", nil
	}

	dmp := diffmatchpatch.New()
	var fileDiffs []*diff.FileDiff

	for _, path := range patchedPaths(patches) {
		group := patchesFor(patches, path)
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].StartLine < group[j].StartLine
		})

		fd := &diff.FileDiff{
			OrigName: "a/" + path,
			NewName:  "b/" + path,
		}

		shift := 0
		for _, p := range group {
			fd.Hunks = append(fd.Hunks, buildHunk(dmp, p, shift))
			shift += p.Delta()
		}
		fileDiffs = append(fileDiffs, fd)
	}

	out, err := diff.PrintMultiFileDiff(fileDiffs)
	if err != nil {
		return "", fmt.Errorf("render unified diff: %w", err)
	}
	return string(out), nil
}

func buildHunk(dmp *diffmatchpatch.DiffMatchPatch, p CodePatch, shift int) *diff.Hunk {
	orig := SplitLines(p.OriginalCode)
	repl := SplitLines(p.ReplacementCode)

	var body bytes.Buffer
	for _, line := range lineDiff(dmp, orig, repl) {
		body.WriteString(line)
		body.WriteByte('\n')
	}

	h := &diff.Hunk{
		OrigStartLine: int32(p.StartLine),
		OrigLines:     int32(len(orig)),
		NewStartLine:  int32(p.StartLine + shift),
		NewLines:      int32(len(repl)),
		Body:          body.Bytes(),
	}
	// Unified diff addresses an empty side by the line before it.
	if h.OrigLines == 0 {
		h.OrigStartLine--
	}
	if h.NewLines == 0 {
		h.NewStartLine--
	}
	return h
}

// lineDiff returns the prefixed body lines of a line-level diff.
func lineDiff(dmp *diffmatchpatch.DiffMatchPatch, orig, repl []string) []string {
	a := joinLines(orig)
	b := joinLines(repl)
	ca, cb, lineArray := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lineArray)

	var out []string
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out = append(out, prefix+strings.TrimSuffix(line, "\n"))
		}
	}
	return out
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
