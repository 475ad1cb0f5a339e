// Package deploy rolls a validated fix out to production traffic in
// stages, watching platform health after each soak and reverting on
// regression. Every rollout ends in a terminal Record; rollout failures
// are data, not errors.
package deploy

import (
	"time"

	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/health"
)

// Status is the state of a deployment.
type Status string

const (
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusComplete      Status = "COMPLETE"
	StatusRolledBack    Status = "ROLLED_BACK"
	StatusFailed        Status = "FAILED"
)

// Terminal reports whether a deploy call can end in s.
func (s Status) Terminal() bool {
	return s != StatusInProgress
}

// Release is the fix being rolled out and where it goes.
type Release struct {
	Platform         string              `json:"platform"`
	AffectedFunction string              `json:"affectedFunction"`
	FixHash          string              `json:"fixHash"`
	Fix              *fixgen.FixResponse `json:"fix"`
}

// StageResult records one completed or aborted stage.
type StageResult struct {
	Percentage float64               `json:"percentage"`
	AppliedAt  time.Time             `json:"appliedAt"`
	CheckedAt  *time.Time            `json:"checkedAt,omitempty"`
	Metrics    *health.HealthMetrics `json:"metrics,omitempty"`
}

// Record is the outcome of one deploy call.
type Record struct {
	ID                string        `json:"id"`
	Platform          string        `json:"platform"`
	AffectedFunction  string        `json:"affectedFunction"`
	FixHash           string        `json:"fixHash,omitempty"`
	Confidence        float64       `json:"confidence"`
	Status            Status        `json:"status"`
	RollbackReason    string        `json:"rollbackReason,omitempty"`
	CurrentPercentage float64       `json:"currentPercentage"`
	Stages            []StageResult `json:"stages,omitempty"`
	StartedAt         time.Time     `json:"startedAt"`
	EndedAt           *time.Time    `json:"endedAt,omitempty"`

	// CompletedAt is set only on COMPLETE: the instant the last stage's
	// health check passed.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
