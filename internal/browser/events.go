package browser

import (
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/felixgeelhaar/autoheal/internal/snapshot"
)

// maxPendingRequests bounds the request-id map for pages that never
// report completion.
const maxPendingRequests = 2048

func consoleEvent(e *proto.RuntimeConsoleAPICalled, at time.Time) *snapshot.Event {
	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		if arg == nil {
			continue
		}
		switch {
		case arg.Description != "":
			parts = append(parts, arg.Description)
		case !arg.Value.Nil():
			parts = append(parts, arg.Value.Str())
		}
	}
	return &snapshot.Event{Console: &snapshot.ConsoleEntry{
		Level:     string(e.Type),
		Text:      strings.Join(parts, " "),
		Timestamp: at,
	}}
}

type pendingRequest struct {
	url    string
	method string
}

// requestTracker correlates Network events by request id so that transport
// failures, which carry no URL, can be reported with one.
type requestTracker struct {
	mu      sync.Mutex
	pending map[proto.NetworkRequestID]pendingRequest
	now     func() time.Time
}

func newRequestTracker(now func() time.Time) *requestTracker {
	return &requestTracker{pending: make(map[proto.NetworkRequestID]pendingRequest), now: now}
}

func (t *requestTracker) sent(e *proto.NetworkRequestWillBeSent) {
	if e.Request == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) >= maxPendingRequests {
		t.pending = make(map[proto.NetworkRequestID]pendingRequest)
	}
	t.pending[e.RequestID] = pendingRequest{url: e.Request.URL, method: e.Request.Method}
}

// response reports HTTP error statuses. The request stays pending until
// loading finishes or fails.
func (t *requestTracker) response(e *proto.NetworkResponseReceived) *snapshot.Event {
	if e.Response == nil || e.Response.Status < 400 {
		return nil
	}
	t.mu.Lock()
	req := t.pending[e.RequestID]
	t.mu.Unlock()

	url := e.Response.URL
	if url == "" {
		url = req.url
	}
	return &snapshot.Event{Network: &snapshot.NetworkFailure{
		URL:       url,
		Method:    req.method,
		Status:    e.Response.Status,
		ErrorText: e.Response.StatusText,
		Timestamp: t.now(),
	}}
}

func (t *requestTracker) failed(e *proto.NetworkLoadingFailed) *snapshot.Event {
	t.mu.Lock()
	req, ok := t.pending[e.RequestID]
	delete(t.pending, e.RequestID)
	t.mu.Unlock()

	// Navigation away cancels in-flight requests; those are not failures.
	if e.Canceled {
		return nil
	}
	if !ok {
		req.url = string(e.RequestID)
	}
	return &snapshot.Event{Network: &snapshot.NetworkFailure{
		URL:       req.url,
		Method:    req.method,
		ErrorText: e.ErrorText,
		Timestamp: t.now(),
	}}
}

func (t *requestTracker) finished(e *proto.NetworkLoadingFinished) {
	t.mu.Lock()
	delete(t.pending, e.RequestID)
	t.mu.Unlock()
}

func (t *requestTracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
