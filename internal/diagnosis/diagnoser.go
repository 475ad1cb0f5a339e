package diagnosis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/autoheal/internal/classify"
	"github.com/felixgeelhaar/autoheal/internal/log"
	"github.com/felixgeelhaar/autoheal/internal/rootcause"
	"github.com/felixgeelhaar/autoheal/internal/snapshot"
)

// Screenshotter is implemented by pages that can capture a screenshot.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Options configures a Diagnoser.
type Options struct {
	// Selectors are the elements tracked in every snapshot.
	Selectors       []string
	ConsoleCapacity int
	NetworkCapacity int
	Snapshot        snapshot.Options
	Thresholds      rootcause.Thresholds
	Now             func() time.Time
}

// Diagnoser owns the event buffer attached to one page and captures the
// snapshots a diagnosis is built from.
type Diagnoser struct {
	page      snapshot.Page
	source    snapshot.EventSource
	events    *snapshot.EventBuffer
	engine    *snapshot.Engine
	analyzer  *rootcause.Analyzer
	selectors []string
	now       func() time.Time
	logger    *log.Logger

	mu       sync.Mutex
	baseline *snapshot.DOMSnapshot
}

// NewDiagnoser creates a Diagnoser for page. source may be nil when the
// page cannot report console or network activity.
func NewDiagnoser(page snapshot.Page, source snapshot.EventSource, opts Options, logger *log.Logger) *Diagnoser {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Snapshot.Now == nil {
		opts.Snapshot.Now = opts.Now
	}
	logger = log.OrDefault(logger).WithComponent("diagnosis")

	var events *snapshot.EventBuffer
	if source != nil {
		events = snapshot.NewEventBuffer(opts.ConsoleCapacity, opts.NetworkCapacity)
	}

	return &Diagnoser{
		page:      page,
		source:    source,
		events:    events,
		engine:    snapshot.NewEngine(page, events, opts.Snapshot, logger),
		analyzer:  rootcause.NewAnalyzer(opts.Thresholds),
		selectors: append([]string(nil), opts.Selectors...),
		now:       opts.Now,
		logger:    logger,
	}
}

// Start attaches the event buffer to the page.
func (d *Diagnoser) Start(ctx context.Context) error {
	if d.events == nil {
		return nil
	}
	return d.events.Start(ctx, d.source)
}

// Stop detaches the event buffer. It is safe to call more than once.
func (d *Diagnoser) Stop() {
	if d.events != nil {
		d.events.Stop()
	}
}

// Baseline captures and remembers a snapshot of the working page.
func (d *Diagnoser) Baseline(ctx context.Context) (*snapshot.DOMSnapshot, error) {
	snap, err := d.engine.Snapshot(ctx, d.selectors)
	if err != nil {
		return nil, fmt.Errorf("baseline snapshot: %w", err)
	}
	d.mu.Lock()
	d.baseline = snap
	d.mu.Unlock()
	return snap, nil
}

// Diagnose captures the post-failure snapshot and diagnoses err. When
// before is nil the last Baseline is used.
func (d *Diagnoser) Diagnose(ctx context.Context, failingSelector string, err error, before *snapshot.DOMSnapshot) (*Diagnosis, error) {
	if before == nil {
		d.mu.Lock()
		before = d.baseline
		d.mu.Unlock()
	}

	selectors := d.selectors
	if failingSelector != "" && !contains(selectors, failingSelector) {
		selectors = append(append([]string(nil), selectors...), failingSelector)
	}

	after, snapErr := d.engine.Snapshot(ctx, selectors)
	if snapErr != nil {
		if ctx.Err() != nil {
			return nil, snapErr
		}
		d.logger.Warn("post-failure snapshot unavailable", "error", snapErr)
		after = nil
	}

	diag := FromSnapshots(classify.FromError(err, failingSelector), before, after, d.analyzer)
	diag.DiagnosedAt = d.now()

	if shooter, ok := d.page.(Screenshotter); ok {
		if shot, shotErr := shooter.Screenshot(ctx); shotErr == nil {
			diag.Screenshot = shot
		} else {
			d.logger.Debug("screenshot unavailable", "error", shotErr)
		}
	}

	if d.events != nil {
		if console, network := d.events.Dropped(); console+network > 0 {
			d.logger.Debug("event buffer overflowed", "console_dropped", console, "network_dropped", network)
		}
	}
	d.logger.Info("failure diagnosed",
		"category", diag.Classification.Category,
		"confidence", diag.Classification.Confidence,
		"severity", diag.Analysis.Severity,
		"broken_selectors", len(diag.BrokenSelectors))
	return diag, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
