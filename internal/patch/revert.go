package patch

import "sort"

// BuildRevertPatches returns the patch set that undoes patches once they
// have been applied. Each revert swaps OriginalCode and ReplacementCode
// and readdresses the range in post-patch line numbers: EndLine follows
// from the replacement's line count, and StartLine shifts by the deltas of
// earlier patches in the same file.
func BuildRevertPatches(patches []CodePatch) []CodePatch {
	type indexed struct {
		i int
		p CodePatch
	}

	byFile := make(map[string][]indexed)
	for i, p := range patches {
		byFile[p.FilePath] = append(byFile[p.FilePath], indexed{i, p})
	}

	out := make([]CodePatch, len(patches))
	for _, group := range byFile {
		sort.SliceStable(group, func(a, b int) bool {
			if group[a].p.StartLine != group[b].p.StartLine {
				return group[a].p.StartLine < group[b].p.StartLine
			}
			return group[a].p.EndLine < group[b].p.EndLine
		})

		shift := 0
		for _, g := range group {
			p := g.p
			start := p.StartLine + shift
			out[g.i] = CodePatch{
				FilePath:        p.FilePath,
				StartLine:       start,
				EndLine:         start + len(SplitLines(p.ReplacementCode)) - 1,
				OriginalCode:    p.ReplacementCode,
				ReplacementCode: p.OriginalCode,
			}
			shift += p.Delta()
		}
	}
	return out
}
