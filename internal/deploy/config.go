package deploy

import (
	"fmt"
	"time"
)

// Stage is one step of a canary rollout.
type Stage struct {
	// Percentage of traffic served by the fix, in (0, 100].
	Percentage float64 `koanf:"percentage" yaml:"percentage" json:"percentage" validate:"gt=0,lte=100"`

	// SoakDuration is how long the stage runs before health is checked.
	SoakDuration time.Duration `koanf:"soak_duration" yaml:"soak_duration" json:"soakDuration" validate:"gte=0"`

	// RollbackThreshold is the error rate, in [0, 1], above which the
	// rollout is reverted.
	RollbackThreshold float64 `koanf:"rollback_threshold" yaml:"rollback_threshold" json:"rollbackThreshold" validate:"gte=0,lte=1"`
}

// Config controls the confidence gate and the rollout stages.
type Config struct {
	// AutoDeployThreshold is the minimum fix confidence deployed without
	// review.
	AutoDeployThreshold float64 `koanf:"auto_deploy_threshold" yaml:"auto_deploy_threshold" json:"autoDeployThreshold" validate:"gte=0,lte=1"`

	Stages []Stage `koanf:"stages" yaml:"stages" json:"stages" validate:"required,min=1,dive"`

	// MaxRolloutDuration bounds the whole rollout. Zero disables the bound.
	MaxRolloutDuration time.Duration `koanf:"max_rollout_duration" yaml:"max_rollout_duration" json:"maxRolloutDuration" validate:"gte=0"`
}

// DefaultConfig is a three-stage 5% / 25% / 100% rollout.
func DefaultConfig() Config {
	return Config{
		AutoDeployThreshold: 0.85,
		Stages: []Stage{
			{Percentage: 5, SoakDuration: 5 * time.Minute, RollbackThreshold: 0.05},
			{Percentage: 25, SoakDuration: 10 * time.Minute, RollbackThreshold: 0.03},
			{Percentage: 100, SoakDuration: 15 * time.Minute, RollbackThreshold: 0.02},
		},
		MaxRolloutDuration: 2 * time.Hour,
	}
}

// Validate checks the rules struct tags cannot express.
func (c Config) Validate() error {
	if c.AutoDeployThreshold < 0 || c.AutoDeployThreshold > 1 {
		return fmt.Errorf("auto deploy threshold %.2f outside [0,1]", c.AutoDeployThreshold)
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("at least one rollout stage is required")
	}
	prev := 0.0
	for i, s := range c.Stages {
		if s.Percentage <= 0 || s.Percentage > 100 {
			return fmt.Errorf("stage %d: percentage %g outside (0,100]", i+1, s.Percentage)
		}
		if s.Percentage <= prev {
			return fmt.Errorf("stage %d: percentage %g must be greater than %g", i+1, s.Percentage, prev)
		}
		if s.RollbackThreshold < 0 || s.RollbackThreshold > 1 {
			return fmt.Errorf("stage %d: rollback threshold %.2f outside [0,1]", i+1, s.RollbackThreshold)
		}
		if s.SoakDuration < 0 {
			return fmt.Errorf("stage %d: negative soak duration", i+1)
		}
		prev = s.Percentage
	}
	if c.MaxRolloutDuration < 0 {
		return fmt.Errorf("negative max rollout duration")
	}
	return nil
}
