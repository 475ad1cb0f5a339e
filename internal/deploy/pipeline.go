package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/autoheal/internal/health"
	"github.com/felixgeelhaar/autoheal/internal/log"
)

// Executor applies and reverts a fix in production.
type Executor interface {
	ApplyAtPercentage(ctx context.Context, rel *Release, percentage float64) error
	Rollback(ctx context.Context, rel *Release) error
}

// Observer is notified of rollout progress.
type Observer interface {
	StageApplied(platform string, percentage float64)
	RollbackTriggered(platform string)
	DeployFinished(rec *Record)
}

// Pipeline runs canary rollouts. One Pipeline may serve many deploys, but
// callers must not deploy concurrently to the same platform and function.
type Pipeline struct {
	cfg      Config
	executor Executor
	monitor  health.Monitor
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newID    func() string
	observer Observer
	logger   *log.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithSleep replaces the soak wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = sleep }
}

// WithIDs replaces the record ID generator.
func WithIDs(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// WithObserver registers o.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline validates cfg and creates a Pipeline.
func NewPipeline(cfg Config, executor Executor, monitor health.Monitor, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deploy config: %w", err)
	}
	if executor == nil || monitor == nil {
		return nil, fmt.Errorf("deploy pipeline needs an executor and a health monitor")
	}
	p := &Pipeline{
		cfg:      cfg,
		executor: executor,
		monitor:  monitor,
		now:      time.Now,
		sleep:    sleepContext,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.OrDefault(p.logger).WithComponent("deploy")
	return p, nil
}

// Config returns the pipeline's configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Deploy gates rel on confidence and, if it passes, rolls it out.
func (p *Pipeline) Deploy(ctx context.Context, rel *Release) *Record {
	r := p.begin(rel)
	if rel.Fix == nil || rel.Fix.Confidence < p.cfg.AutoDeployThreshold {
		r.rec.Status = StatusPendingReview
		r.rec.RollbackReason = fmt.Sprintf("confidence %.2f below auto-deploy threshold %.2f", r.rec.Confidence, p.cfg.AutoDeployThreshold)
		p.logger.Info("fix held for review",
			"platform", rel.Platform,
			"function", rel.AffectedFunction,
			"confidence", r.rec.Confidence)
		return p.finish(r)
	}
	return p.rollout(ctx, r)
}

// DeployApproved rolls rel out without the confidence gate. It is used once
// a human has approved a fix held for review.
func (p *Pipeline) DeployApproved(ctx context.Context, rel *Release) *Record {
	return p.rollout(ctx, p.begin(rel))
}

// rollout is the mutable state threaded through the stage loop.
type rollout struct {
	rel     *Release
	rec     *Record
	started time.Time
	applied bool
}

func (p *Pipeline) begin(rel *Release) *rollout {
	now := p.now()
	rec := &Record{
		ID:               p.newID(),
		Platform:         rel.Platform,
		AffectedFunction: rel.AffectedFunction,
		FixHash:          rel.FixHash,
		Status:           StatusInProgress,
		StartedAt:        now,
	}
	if rel.Fix != nil {
		rec.Confidence = rel.Fix.Confidence
	}
	return &rollout{rel: rel, rec: rec, started: now}
}

func (p *Pipeline) rollout(ctx context.Context, r *rollout) *Record {
	p.logger.Info("rollout started",
		"id", r.rec.ID,
		"platform", r.rel.Platform,
		"function", r.rel.AffectedFunction,
		"stages", len(p.cfg.Stages))

	var lastCheck time.Time
	for _, stage := range p.cfg.Stages {
		if p.overBudget(r) {
			if !r.applied {
				r.rec.Status = StatusFailed
				r.rec.RollbackReason = p.budgetReason(r)
				return p.finish(r)
			}
			return p.abort(ctx, r, StatusFailed, p.budgetReason(r))
		}

		if err := p.executor.ApplyAtPercentage(ctx, r.rel, stage.Percentage); err != nil {
			return p.abort(ctx, r, StatusFailed, fmt.Sprintf("apply at %g%% failed: %v", stage.Percentage, err))
		}
		r.applied = true
		r.rec.CurrentPercentage = stage.Percentage
		r.rec.Stages = append(r.rec.Stages, StageResult{Percentage: stage.Percentage, AppliedAt: p.now()})
		if p.observer != nil {
			p.observer.StageApplied(r.rel.Platform, stage.Percentage)
		}
		p.logger.Info("stage applied", "id", r.rec.ID, "percentage", stage.Percentage, "soak", stage.SoakDuration)

		if err := p.sleep(ctx, stage.SoakDuration); err != nil {
			return p.abort(ctx, r, StatusFailed, fmt.Sprintf("rollout interrupted at %g%%: %v", stage.Percentage, err))
		}
		if p.overBudget(r) {
			return p.abort(ctx, r, StatusFailed, p.budgetReason(r))
		}

		metrics, err := p.monitor.GetMetrics(ctx, r.rel.Platform)
		if err != nil {
			return p.abort(ctx, r, StatusFailed, fmt.Sprintf("health metrics unavailable at %g%%: %v", stage.Percentage, err))
		}
		if metrics == nil {
			return p.abort(ctx, r, StatusFailed, fmt.Sprintf("health metrics unavailable at %g%%: monitor returned no metrics", stage.Percentage))
		}
		checkedAt := p.now()
		current := &r.rec.Stages[len(r.rec.Stages)-1]
		current.Metrics = metrics
		current.CheckedAt = &checkedAt

		if reason, bad := regression(metrics, stage); bad {
			return p.abort(ctx, r, StatusRolledBack, reason)
		}
		lastCheck = checkedAt
	}

	r.rec.Status = StatusComplete
	r.rec.CompletedAt = &lastCheck
	p.logger.Info("rollout complete", "id", r.rec.ID, "platform", r.rel.Platform)
	return p.finish(r)
}

// regression reports why metrics fail stage, if they do.
func regression(m *health.HealthMetrics, stage Stage) (string, bool) {
	switch {
	case m.ErrorRate > stage.RollbackThreshold:
		return fmt.Sprintf("error rate %.1f%% exceeded rollback threshold %.1f%% at %g%% rollout",
			m.ErrorRate*100, stage.RollbackThreshold*100, stage.Percentage), true
	case m.SuspectedDetection:
		return fmt.Sprintf("automation detection suspected at %g%% rollout", stage.Percentage), true
	case m.CaptchaEncountered:
		return fmt.Sprintf("captcha encountered at %g%% rollout", stage.Percentage), true
	}
	return "", false
}

func (p *Pipeline) overBudget(r *rollout) bool {
	return p.cfg.MaxRolloutDuration > 0 && p.now().Sub(r.started) > p.cfg.MaxRolloutDuration
}

func (p *Pipeline) budgetReason(r *rollout) string {
	return fmt.Sprintf("rollout exceeded max duration %s (elapsed %s)",
		p.cfg.MaxRolloutDuration, p.now().Sub(r.started).Round(time.Millisecond))
}

// abort reverts the fix and ends the rollout. A failing rollback is logged
// and otherwise ignored.
func (p *Pipeline) abort(ctx context.Context, r *rollout, status Status, reason string) *Record {
	p.logger.Warn("rolling back",
		"id", r.rec.ID,
		"platform", r.rel.Platform,
		"percentage", r.rec.CurrentPercentage,
		"reason", reason)
	if p.observer != nil {
		p.observer.RollbackTriggered(r.rel.Platform)
	}

	if err := p.executor.Rollback(context.WithoutCancel(ctx), r.rel); err != nil {
		p.logger.Error("rollback failed", "id", r.rec.ID, "platform", r.rel.Platform, "error", err)
	} else {
		r.rec.CurrentPercentage = 0
	}

	r.rec.Status = status
	r.rec.RollbackReason = reason
	return p.finish(r)
}

func (p *Pipeline) finish(r *rollout) *Record {
	ended := p.now()
	if r.rec.CompletedAt != nil {
		ended = *r.rec.CompletedAt
	}
	r.rec.EndedAt = &ended
	if p.observer != nil {
		p.observer.DeployFinished(r.rec)
	}
	return r.rec
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
