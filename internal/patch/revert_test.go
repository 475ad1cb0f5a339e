package patch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRevertPatches(t *testing.T) {
	patches := []CodePatch{{
		FilePath:        "bot.js",
		StartLine:       4,
		EndLine:         5,
		OriginalCode:    "a\nb",
		ReplacementCode: "x\ny\nz",
	}}

	got := BuildRevertPatches(patches)
	require.Len(t, got, 1)
	assert.Equal(t, CodePatch{
		FilePath:        "bot.js",
		StartLine:       4,
		EndLine:         6,
		OriginalCode:    "x\ny\nz",
		ReplacementCode: "a\nb",
	}, got[0])
}

func TestRevertRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		files   Files
		patches []CodePatch
	}{
		{
			name:  "single replacement",
			files: Files{"bot.js": source},
			patches: []CodePatch{{
				FilePath:        "bot.js",
				StartLine:       2,
				EndLine:         2,
				OriginalCode:    `  page.click("#send")`,
				ReplacementCode: "  page.click(\"#send-v2\")\n  page.wait(100)",
			}},
		},
		{
			name:  "several patches in one file",
			files: Files{"bot.js": source},
			patches: []CodePatch{
				{FilePath: "bot.js", StartLine: 7, EndLine: 8, OriginalCode: "  page.click(\".inbox\")\n  return page.text(\".msg\")", ReplacementCode: "  return page.text(\".msg-v2\")"},
				{FilePath: "bot.js", StartLine: 1, EndLine: 1, OriginalCode: "func send(page) {", ReplacementCode: "// v2\nfunc send(page) {\n  page.focus()"},
				{FilePath: "bot.js", StartLine: 3, EndLine: 3, OriginalCode: "  page.wait(\"#sent\")", ReplacementCode: ""},
			},
		},
		{
			name:  "several files",
			files: Files{"a.js": "one\ntwo\nthree\n", "b.js": "alpha\nbeta"},
			patches: []CodePatch{
				{FilePath: "b.js", StartLine: 2, EndLine: 2, OriginalCode: "beta", ReplacementCode: "gamma\ndelta"},
				{FilePath: "a.js", StartLine: 2, EndLine: 1, ReplacementCode: "one-and-a-half"},
			},
		},
		{
			name:  "deletion followed by adjacent replacement",
			files: Files{"a.js": "1\n2\n3\n4\ne\nf\ng\nh\n"},
			patches: []CodePatch{
				{FilePath: "a.js", StartLine: 5, EndLine: 6, OriginalCode: "e\nf", ReplacementCode: ""},
				{FilePath: "a.js", StartLine: 7, EndLine: 7, OriginalCode: "g", ReplacementCode: "G"},
			},
		},
		{
			name:  "insertion above replacement",
			files: Files{"a.js": "a\nb\nc\n"},
			patches: []CodePatch{
				{FilePath: "a.js", StartLine: 2, EndLine: 2, OriginalCode: "b", ReplacementCode: "B\nB2"},
				{FilePath: "a.js", StartLine: 2, EndLine: 1, ReplacementCode: "x\ny"},
			},
		},
		{
			name:  "file emptied",
			files: Files{"a.js": "a\nb\n"},
			patches: []CodePatch{
				{FilePath: "a.js", StartLine: 1, EndLine: 2, OriginalCode: "a\nb", ReplacementCode: ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patched, err := ApplyPatches(tt.files, tt.patches)
			require.NoError(t, err)
			assert.NotEqual(t, tt.files, patched)

			restored, err := ApplyPatches(patched, BuildRevertPatches(tt.patches))
			require.NoError(t, err)
			assert.Equal(t, tt.files, restored)
		})
	}
}

func TestRenderUnified(t *testing.T) {
	out, err := RenderUnified([]CodePatch{
		{FilePath: "bot.js", StartLine: 7, EndLine: 7, OriginalCode: "  page.click(\".inbox\")", ReplacementCode: "  page.click(\".inbox-v2\")"},
		{FilePath: "bot.js", StartLine: 2, EndLine: 3, OriginalCode: "  page.click(\"#send\")\n  page.wait(\"#sent\")", ReplacementCode: "  page.click(\"#send\")"},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "--- a/bot.js\n+++ b/bot.js\n"), out)
	assert.Contains(t, out, "@@ -2,2 +2,1 @@")
	assert.Contains(t, out, "@@ -7")
	assert.Contains(t, out, "+6")
	assert.Contains(t, out, "-  page.wait(\"#sent\")")
	assert.Contains(t, out, "+  page.click(\".inbox-v2\")")
	assert.Less(t, strings.Index(out, "@@ -2"), strings.Index(out, "@@ -7"))

	empty, err := RenderUnified(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
