package snapshot

import (
	"context"
	"time"

	"github.com/felixgeelhaar/autoheal/internal/log"
)

// DefaultMaxHTMLLength caps the serialized HTML kept per element.
const DefaultMaxHTMLLength = 2000

// DefaultTruncationMarker replaces the tail of HTML beyond the cap.
const DefaultTruncationMarker = "...[truncated]"

// ElementData is what a Page reports for one element.
type ElementData struct {
	Box       *BoundingBox
	Text      string
	OuterHTML string
}

// Page is the read side of the browser collaborator.
type Page interface {
	// URL returns the current page URL.
	URL(ctx context.Context) (string, error)

	// QueryElement returns the element matching selector without waiting.
	// It returns (nil, nil) when nothing matches.
	QueryElement(ctx context.Context, selector string) (*ElementData, error)
}

// Options configures an Engine.
type Options struct {
	MaxHTMLLength    int
	TruncationMarker string
	Now              func() time.Time
}

func (o *Options) defaults() {
	if o.MaxHTMLLength <= 0 {
		o.MaxHTMLLength = DefaultMaxHTMLLength
	}
	if o.TruncationMarker == "" {
		o.TruncationMarker = DefaultTruncationMarker
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine captures DOMSnapshots from a Page.
type Engine struct {
	page   Page
	events *EventBuffer
	opts   Options
	logger *log.Logger
}

// NewEngine creates an Engine. events may be nil, in which case snapshots
// carry no console or network activity.
func NewEngine(page Page, events *EventBuffer, opts Options, logger *log.Logger) *Engine {
	opts.defaults()
	return &Engine{
		page:   page,
		events: events,
		opts:   opts,
		logger: log.OrDefault(logger).WithComponent("snapshot"),
	}
}

// Snapshot captures every tracked selector. An element that cannot be read
// is flagged missing; only context cancellation fails the whole snapshot.
func (e *Engine) Snapshot(ctx context.Context, selectors []string) (*DOMSnapshot, error) {
	snap := &DOMSnapshot{
		Elements: make([]ElementSnapshot, 0, len(selectors)),
	}

	if url, err := e.page.URL(ctx); err == nil {
		snap.URL = url
	} else {
		e.logger.Debug("page url unavailable", "error", err)
	}

	for _, sel := range selectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap.Elements = append(snap.Elements, e.captureElement(ctx, sel))
	}

	if e.events != nil {
		snap.Console, snap.FailedRequests = e.events.Drain()
	}
	snap.CapturedAt = e.opts.Now()

	e.logger.Debug("snapshot captured",
		"selectors", len(selectors),
		"console", len(snap.Console),
		"failed_requests", len(snap.FailedRequests))
	return snap, nil
}

func (e *Engine) captureElement(ctx context.Context, selector string) ElementSnapshot {
	el := ElementSnapshot{Selector: selector}

	data, err := e.page.QueryElement(ctx, selector)
	if err != nil {
		e.logger.Warn("element read failed", "selector", selector, "error", err)
		el.Missing = true
		el.ReadError = err.Error()
		return el
	}
	if data == nil {
		el.Missing = true
		return el
	}

	el.BoundingBox = data.Box
	el.Text = data.Text
	el.Attributes = RootAttributes(data.OuterHTML)
	el.HTML, el.Truncated = Truncate(data.OuterHTML, e.opts.MaxHTMLLength, e.opts.TruncationMarker)
	return el
}

// Truncate caps s at max bytes, replacing the excess with marker. It never
// splits a multi-byte UTF-8 sequence.
func Truncate(s string, max int, marker string) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker, true
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
