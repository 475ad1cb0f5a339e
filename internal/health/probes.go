package health

import (
	"context"
	"sync/atomic"
	"time"
)

// Report is the body served by the liveness and readiness endpoints.
type Report struct {
	Status    Status             `json:"status"`
	Version   string             `json:"version,omitempty"`
	Uptime    string             `json:"uptime"`
	Checks    map[string]*Result `json:"checks,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Probes tracks process lifecycle on top of a Manager.
type Probes struct {
	manager  *Manager
	version  string
	started  time.Time
	now      func() time.Time
	ready    atomic.Bool
	shutdown atomic.Bool
}

// NewProbes creates Probes reporting version.
func NewProbes(manager *Manager, version string) *Probes {
	if manager == nil {
		manager = NewManager()
	}
	return &Probes{manager: manager, version: version, started: time.Now(), now: time.Now}
}

// Manager returns the underlying check manager.
func (p *Probes) Manager() *Manager { return p.manager }

// MarkReady lets readiness checks run.
func (p *Probes) MarkReady() { p.ready.Store(true) }

// MarkShutdown fails readiness from now on.
func (p *Probes) MarkShutdown() { p.shutdown.Store(true) }

// Liveness reports the process is responsive. It runs no checks.
func (p *Probes) Liveness(ctx context.Context) *Report {
	status := StatusHealthy
	if p.shutdown.Load() {
		status = StatusDegraded
	}
	return p.report(status, nil)
}

// Readiness runs every registered check. It is unhealthy before MarkReady
// and after MarkShutdown.
func (p *Probes) Readiness(ctx context.Context) *Report {
	if p.shutdown.Load() || !p.ready.Load() {
		return p.report(StatusUnhealthy, nil)
	}
	checks := p.manager.Check(ctx)
	return p.report(Overall(checks), checks)
}

func (p *Probes) report(status Status, checks map[string]*Result) *Report {
	now := p.now()
	return &Report{
		Status:    status,
		Version:   p.version,
		Uptime:    now.Sub(p.started).Round(time.Second).String(),
		Checks:    checks,
		Timestamp: now,
	}
}
