package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/felixgeelhaar/autoheal/internal/log"
	"github.com/felixgeelhaar/autoheal/internal/snapshot"
)

// Page is an open tab. It satisfies snapshot.Page and snapshot.EventSource.
type Page struct {
	page   *rod.Page
	logger *log.Logger
	now    func() time.Time
}

var (
	_ snapshot.Page        = (*Page)(nil)
	_ snapshot.EventSource = (*Page)(nil)
)

// URL returns the tab's current URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// QueryElement reads the first element matching selector without waiting
// for it to appear.
func (p *Page) QueryElement(ctx context.Context, selector string) (*snapshot.ElementData, error) {
	found, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %s: %w", selector, err)
	}
	if !found {
		return nil, nil
	}

	data := &snapshot.ElementData{}
	if data.OuterHTML, err = el.HTML(); err != nil {
		return nil, fmt.Errorf("browser: html %s: %w", selector, err)
	}
	if data.Text, err = el.Text(); err != nil {
		return nil, fmt.Errorf("browser: text %s: %w", selector, err)
	}

	// Elements without layout (display:none) have no quads.
	if shape, err := el.Shape(); err == nil {
		if box := shape.Box(); box != nil {
			data.Box = &snapshot.BoundingBox{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}
		}
	}
	return data, nil
}

// Screenshot captures the visible viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	img, err := p.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return img, nil
}

// Events enables the Runtime and Network domains and streams console
// messages and failed requests until ctx is cancelled.
func (p *Page) Events(ctx context.Context) (<-chan snapshot.Event, error) {
	if err := (proto.RuntimeEnable{}).Call(p.page); err != nil {
		return nil, fmt.Errorf("browser: enable runtime: %w", err)
	}
	if err := (proto.NetworkEnable{}).Call(p.page); err != nil {
		return nil, fmt.Errorf("browser: enable network: %w", err)
	}

	out := make(chan snapshot.Event, 64)
	tracker := newRequestTracker(p.now)

	emit := func(ev *snapshot.Event) {
		if ev == nil {
			return
		}
		select {
		case out <- *ev:
		case <-ctx.Done():
		}
	}

	wait := p.page.Context(ctx).EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			emit(consoleEvent(e, p.now()))
		},
		func(e *proto.NetworkRequestWillBeSent) {
			tracker.sent(e)
		},
		func(e *proto.NetworkResponseReceived) {
			emit(tracker.response(e))
		},
		func(e *proto.NetworkLoadingFailed) {
			emit(tracker.failed(e))
		},
		func(e *proto.NetworkLoadingFinished) {
			tracker.finished(e)
		},
	)

	go func() {
		defer close(out)
		wait()
		p.logger.Debug("event stream closed")
	}()
	return out, nil
}

// Close closes the tab.
func (p *Page) Close() error {
	return p.page.Close()
}
