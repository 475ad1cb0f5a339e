package health

import (
	"context"
	"fmt"
)

// DefaultDegradedErrorRate is the error rate above which a platform is
// reported degraded.
const DefaultDegradedErrorRate = 0.05

// PlatformChecker maps a platform's HealthMetrics to a Result.
type PlatformChecker struct {
	monitor      Monitor
	platform     string
	degradedRate float64
}

// NewPlatformChecker creates a checker for platform. A non-positive
// degradedRate uses DefaultDegradedErrorRate.
func NewPlatformChecker(monitor Monitor, platform string, degradedRate float64) *PlatformChecker {
	if degradedRate <= 0 {
		degradedRate = DefaultDegradedErrorRate
	}
	return &PlatformChecker{monitor: monitor, platform: platform, degradedRate: degradedRate}
}

// Name returns "platform-<name>".
func (c *PlatformChecker) Name() string {
	return "platform-" + c.platform
}

// Check fetches metrics and evaluates them.
func (c *PlatformChecker) Check(ctx context.Context) *Result {
	m, err := c.monitor.GetMetrics(ctx, c.platform)
	if err != nil {
		return Unhealthy("metrics unavailable").WithDetail("error", err.Error())
	}
	return Evaluate(m, c.degradedRate)
}

// Evaluate classifies metrics: detection, captcha or disconnection is
// unhealthy; rate limiting or an error rate above degradedRate is degraded.
func Evaluate(m *HealthMetrics, degradedRate float64) *Result {
	var r *Result
	switch {
	case m.SuspectedDetection:
		r = Unhealthy("automation detection suspected")
	case m.CaptchaEncountered:
		r = Unhealthy("captcha encountered")
	case !m.Connected:
		r = Unhealthy("platform disconnected")
	case m.RateLimited:
		r = Degraded("rate limited")
	case m.ErrorRate > degradedRate:
		r = Degraded(fmt.Sprintf("error rate %.1f%% above %.1f%%", m.ErrorRate*100, degradedRate*100))
	default:
		r = Healthy("ok")
	}
	return r.
		WithDetail("platform", m.Platform).
		WithDetail("error_rate", m.ErrorRate).
		WithDetail("success_rate", m.SuccessRate)
}
