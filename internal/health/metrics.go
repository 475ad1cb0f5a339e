package health

import (
	"context"
	"time"
)

// HealthMetrics is a point-in-time view of a platform's live traffic.
type HealthMetrics struct {
	Platform           string    `json:"platform"`
	Timestamp          time.Time `json:"timestamp"`
	Connected          bool      `json:"connected"`
	SuccessRate        float64   `json:"successRate"`
	ErrorRate          float64   `json:"errorRate"`
	SuspectedDetection bool      `json:"suspectedDetection"`
	CaptchaEncountered bool      `json:"captchaEncountered"`
	RateLimited        bool      `json:"rateLimited"`
	MessagesSent       int64     `json:"messagesSent,omitempty"`
	MessagesFailed     int64     `json:"messagesFailed,omitempty"`
	AvgLatencyMs       float64   `json:"avgLatencyMs,omitempty"`
}

// Monitor reports current metrics for a platform.
type Monitor interface {
	GetMetrics(ctx context.Context, platform string) (*HealthMetrics, error)
}

// MonitorFunc adapts a function to Monitor.
type MonitorFunc func(ctx context.Context, platform string) (*HealthMetrics, error)

// GetMetrics calls f.
func (f MonitorFunc) GetMetrics(ctx context.Context, platform string) (*HealthMetrics, error) {
	return f(ctx, platform)
}
