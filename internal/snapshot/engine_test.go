package snapshot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/autoheal/internal/log"
)

type fakePage struct {
	url      string
	elements map[string]*ElementData
	failures map[string]error
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	return p.url, nil
}

func (p *fakePage) QueryElement(ctx context.Context, selector string) (*ElementData, error) {
	if err, ok := p.failures[selector]; ok {
		return nil, err
	}
	return p.elements[selector], nil
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestEngineSnapshot(t *testing.T) {
	page := &fakePage{
		url: "https://example.test/inbox",
		elements: map[string]*ElementData{
			"#send": {
				Box:       &BoundingBox{X: 10, Y: 20, Width: 80, Height: 30},
				Text:      "Send",
				OuterHTML: `<button id="send" class="btn primary">Send</button>`,
			},
		},
		failures: map[string]error{"#broken": errors.New("node detached")},
	}

	engine := NewEngine(page, nil, Options{Now: fixedNow}, log.Discard())
	snap, err := engine.Snapshot(context.Background(), []string{"#send", "#gone", "#broken"})
	require.NoError(t, err)

	assert.Equal(t, "https://example.test/inbox", snap.URL)
	assert.Equal(t, fixedNow(), snap.CapturedAt)
	require.Len(t, snap.Elements, 3)
	assert.Equal(t, []string{"#send", "#gone", "#broken"}, snap.Selectors())

	send := snap.Elements[0]
	assert.False(t, send.Missing)
	assert.Equal(t, "Send", send.Text)
	assert.Equal(t, map[string]string{"id": "send", "class": "btn primary"}, send.Attributes)
	assert.False(t, send.Truncated)

	gone := snap.Elements[1]
	assert.True(t, gone.Missing)
	assert.Empty(t, gone.ReadError)

	broken := snap.Elements[2]
	assert.True(t, broken.Missing)
	assert.Equal(t, "node detached", broken.ReadError)

	assert.True(t, snap.Present("#send"))
	assert.False(t, snap.Present("#broken"))
	assert.False(t, snap.Present("#untracked"))
}

func TestEngineSnapshotTruncatesHTML(t *testing.T) {
	long := `<div id="feed">` + strings.Repeat("x", 100) + `</div>`
	page := &fakePage{elements: map[string]*ElementData{"#feed": {OuterHTML: long}}}

	engine := NewEngine(page, nil, Options{MaxHTMLLength: 20, TruncationMarker: "[cut]"}, log.Discard())
	snap, err := engine.Snapshot(context.Background(), []string{"#feed"})
	require.NoError(t, err)

	el := snap.Elements[0]
	assert.True(t, el.Truncated)
	assert.Equal(t, long[:20]+"[cut]", el.HTML)
	assert.Equal(t, "feed", el.Attributes["id"])
}

func TestEngineSnapshotDrainsEvents(t *testing.T) {
	buf := NewEventBuffer(0, 0)
	buf.Record(Event{Console: &ConsoleEntry{Level: "error", Text: "boom"}})
	buf.Record(Event{Network: &NetworkFailure{URL: "https://api.test/x", Status: 500}})

	engine := NewEngine(&fakePage{}, buf, Options{}, log.Discard())
	snap, err := engine.Snapshot(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, snap.Console, 1)
	require.Len(t, snap.FailedRequests, 1)

	next, err := engine.Snapshot(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, next.Console)
	assert.Empty(t, next.FailedRequests)
}

func TestEngineSnapshotCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(&fakePage{}, nil, Options{}, log.Discard())
	_, err := engine.Snapshot(ctx, []string{"#a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		max       int
		want      string
		truncated bool
	}{
		{"short", "abc", 10, "abc", false},
		{"exact", "abcde", 5, "abcde", false},
		{"long", "abcdefgh", 4, "abcd~", true},
		{"disabled", "abcdefgh", 0, "abcdefgh", false},
		{"multibyte boundary", "aé€b", 3, "aé~", true},
		{"inside multibyte", "a€", 2, "a~", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := Truncate(tt.in, tt.max, "~")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.truncated, truncated)
		})
	}
}

func TestRootAttributes(t *testing.T) {
	tests := []struct {
		name string
		html string
		want map[string]string
	}{
		{"empty", "  ", nil},
		{"no attributes", "<span>hi</span>", nil},
		{"root only", `<a href="/x" data-id="7"><img src="y.png"></a>`, map[string]string{"href": "/x", "data-id": "7"}},
		{"self closing", `<input type="text" disabled/>`, map[string]string{"type": "text", "disabled": ""}},
		{"leading text", `hello <b class="k">x</b>`, map[string]string{"class": "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RootAttributes(tt.html))
		})
	}
}
