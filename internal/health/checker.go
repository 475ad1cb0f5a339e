// Package health reads live health signals for the platforms a fix is
// rolled out to, and turns them into healthy/degraded/unhealthy results.
//
// Two layers live here:
//   - Monitor reports raw HealthMetrics for a platform. The deploy pipeline
//     polls it after every soak.
//   - Checker turns a signal into a Result. Manager runs a set of checkers
//     with a timeout and aggregates them for /healthz and /readyz.
package health

import (
	"context"
	"time"
)

// Checker evaluates one dependency or platform.
type Checker interface {
	// Name is a lowercase, hyphenated identifier such as "platform-mail".
	Name() string

	// Check must honour ctx and return quickly.
	Check(ctx context.Context) *Result
}

// Status is the outcome of a check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// Rank orders statuses from 0 (healthy) to 2 (unhealthy).
func (s Status) Rank() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Result is the outcome of one check.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency"`
}

// NewResult creates a Result.
func NewResult(status Status, message string) *Result {
	return &Result{Status: status, Message: message, Details: make(map[string]any)}
}

// WithDetail sets a detail and returns r.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// WithLatency sets the latency and returns r.
func (r *Result) WithLatency(latency time.Duration) *Result {
	r.Latency = latency
	return r
}

func Healthy(message string) *Result { return NewResult(StatusHealthy, message) }
func Degraded(message string) *Result { return NewResult(StatusDegraded, message) }
func Unhealthy(message string) *Result { return NewResult(StatusUnhealthy, message) }

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	CheckName string
	Fn        func(ctx context.Context) *Result
}

// Name returns CheckName.
func (c CheckerFunc) Name() string { return c.CheckName }

// Check calls Fn.
func (c CheckerFunc) Check(ctx context.Context) *Result { return c.Fn(ctx) }
