package snapshot

import (
	"context"
	"errors"
	"sync"
)

// Event is a single console message or network failure reported by the page.
// Exactly one of the fields is set.
type Event struct {
	Console *ConsoleEntry
	Network *NetworkFailure
}

// EventSource streams page events until ctx is cancelled, then closes the channel.
type EventSource interface {
	Events(ctx context.Context) (<-chan Event, error)
}

// Default ring sizes for an EventBuffer.
const (
	DefaultConsoleCapacity = 200
	DefaultNetworkCapacity = 200
)

// ErrBufferRunning is returned by Start when the buffer is already listening.
var ErrBufferRunning = errors.New("snapshot: event buffer already started")

// EventBuffer collects console and network events between snapshots.
// It has an explicit lifecycle: Start attaches to a source, Stop detaches,
// Drain hands the accumulated events to the next snapshot and clears them.
// When a ring is full the oldest entries are dropped.
type EventBuffer struct {
	mu             sync.Mutex
	console        []ConsoleEntry
	network        []NetworkFailure
	consoleCap     int
	networkCap     int
	droppedConsole int
	droppedNetwork int
	cancel         context.CancelFunc
	done           chan struct{}
}

// NewEventBuffer creates a buffer with the given ring capacities.
// Non-positive capacities fall back to the defaults.
func NewEventBuffer(consoleCap, networkCap int) *EventBuffer {
	if consoleCap <= 0 {
		consoleCap = DefaultConsoleCapacity
	}
	if networkCap <= 0 {
		networkCap = DefaultNetworkCapacity
	}
	return &EventBuffer{consoleCap: consoleCap, networkCap: networkCap}
}

// Start begins consuming events from src in a background goroutine.
func (b *EventBuffer) Start(ctx context.Context, src EventSource) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return ErrBufferRunning
	}
	listenCtx, cancel := context.WithCancel(ctx)
	events, err := src.Events(listenCtx)
	if err != nil {
		cancel()
		b.mu.Unlock()
		return err
	}
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		for ev := range events {
			b.Record(ev)
		}
	}()
	return nil
}

// Stop detaches from the source and waits for the consumer goroutine to exit.
// Events already buffered are kept until the next Drain.
func (b *EventBuffer) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the buffer is attached to a source.
func (b *EventBuffer) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

// Record appends one event.
func (b *EventBuffer) Record(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Console != nil {
		if len(b.console) >= b.consoleCap {
			b.console = b.console[1:]
			b.droppedConsole++
		}
		b.console = append(b.console, *ev.Console)
	}
	if ev.Network != nil {
		if len(b.network) >= b.networkCap {
			b.network = b.network[1:]
			b.droppedNetwork++
		}
		b.network = append(b.network, *ev.Network)
	}
}

// Drain returns everything recorded since the previous Drain and clears the buffer.
func (b *EventBuffer) Drain() ([]ConsoleEntry, []NetworkFailure) {
	b.mu.Lock()
	defer b.mu.Unlock()

	console, network := b.console, b.network
	b.console, b.network = nil, nil
	return console, network
}

// Dropped returns how many console and network events were evicted because
// the rings were full.
func (b *EventBuffer) Dropped() (console, network int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.droppedConsole, b.droppedNetwork
}
