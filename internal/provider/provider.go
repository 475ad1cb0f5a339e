package provider

import (
	"fmt"

	"github.com/felixgeelhaar/autoheal/internal/fixgen"
)

// New builds the oracle named by cfg.Name, wrapped in a rate limiter when
// cfg.RequestsPerMinute is positive.
func New(cfg Config) (fixgen.Oracle, error) {
	var (
		oracle fixgen.Oracle
		err    error
	)
	switch cfg.Name {
	case NameAnthropic, "":
		cfg.Name = NameAnthropic
		oracle, err = NewAnthropicOracle(cfg)
	case NameOpenAI:
		oracle, err = NewOpenAIOracle(cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerMinute > 0 {
		oracle = NewRateLimited(oracle, cfg.RequestsPerMinute, cfg.Burst)
	}
	return oracle, nil
}
