// Package metrics exposes Prometheus instrumentation for the heal pipeline.
// A *Metrics satisfies the observer interfaces of fixgen, eval and deploy,
// so each stage reports to it without importing this package.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/eval"
)

const namespace = "autoheal"

// Metrics holds all Prometheus collectors for autoheal.
type Metrics struct {
	// Diagnosis
	Diagnoses *prometheus.CounterVec

	// Fix generation
	OracleCalls   *prometheus.CounterVec
	OracleLatency prometheus.Histogram
	ParseFailures *prometheus.CounterVec

	// Validation
	Validations        *prometheus.CounterVec
	ValidationDuration prometheus.Histogram
	PatchFailures      prometheus.Counter

	// Deployment
	StagesApplied *prometheus.CounterVec
	Rollbacks     *prometheus.CounterVec
	Deployments   *prometheus.CounterVec

	// End to end
	HealRuns     *prometheus.CounterVec
	HealDuration prometheus.Histogram

	// Errors by structured error code
	Errors *prometheus.CounterVec
}

// NewMetrics creates and registers every collector on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Diagnoses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diagnoses_total",
				Help:      "Failures diagnosed, by category and severity",
			},
			[]string{"category", "severity"},
		),

		OracleCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oracle_calls_total",
				Help:      "Fix oracle calls",
			},
			[]string{"success"},
		),
		OracleLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "oracle_latency_seconds",
				Help:      "Fix oracle call latency in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		ParseFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oracle_parse_failures_total",
				Help:      "Oracle responses rejected by the strict parser, by offending field",
			},
			[]string{"field"},
		),

		Validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Fix validations",
			},
			[]string{"passed"},
		),
		ValidationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "validation_duration_seconds",
				Help:      "Time spent applying patches and running generated tests",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		PatchFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "patch_failures_total",
				Help:      "Fixes whose patches did not apply",
			},
		),

		StagesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollout_stages_applied_total",
				Help:      "Rollout stages applied, by platform and percentage",
			},
			[]string{"platform", "percentage"},
		),
		Rollbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_total",
				Help:      "Rollbacks triggered",
			},
			[]string{"platform"},
		),
		Deployments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Deploy calls by terminal status",
			},
			[]string{"platform", "status"},
		),

		HealRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "heal_runs_total",
				Help:      "End-to-end heal runs by outcome",
			},
			[]string{"outcome"},
		),
		HealDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "heal_duration_seconds",
				Help:      "End-to-end heal duration in seconds",
				Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
			},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// RecordDiagnosis counts one diagnosis.
func (m *Metrics) RecordDiagnosis(category, severity string) {
	m.Diagnoses.WithLabelValues(category, severity).Inc()
}

// OracleCall implements fixgen.Observer.
func (m *Metrics) OracleCall(d time.Duration, err error) {
	m.OracleCalls.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
	m.OracleLatency.Observe(d.Seconds())
}

// ParseFailure implements fixgen.Observer.
func (m *Metrics) ParseFailure(field string) {
	m.ParseFailures.WithLabelValues(field).Inc()
}

// Validated implements eval.Observer.
func (m *Metrics) Validated(r *eval.ValidationResult) {
	m.Validations.WithLabelValues(strconv.FormatBool(r.Passed)).Inc()
	m.ValidationDuration.Observe(r.Duration().Seconds())
	if r.PatchErr != nil {
		m.PatchFailures.Inc()
	}
}

// StageApplied implements deploy.Observer.
func (m *Metrics) StageApplied(platform string, percentage float64) {
	m.StagesApplied.WithLabelValues(platform, strconv.FormatFloat(percentage, 'g', -1, 64)).Inc()
}

// RollbackTriggered implements deploy.Observer.
func (m *Metrics) RollbackTriggered(platform string) {
	m.Rollbacks.WithLabelValues(platform).Inc()
}

// DeployFinished implements deploy.Observer.
func (m *Metrics) DeployFinished(rec *deploy.Record) {
	m.Deployments.WithLabelValues(rec.Platform, string(rec.Status)).Inc()
}

// RecordHeal counts one end-to-end run.
func (m *Metrics) RecordHeal(outcome string, d time.Duration) {
	m.HealRuns.WithLabelValues(outcome).Inc()
	m.HealDuration.Observe(d.Seconds())
}

// RecordError counts err under its error code, or "unknown" when it
// carries none.
func (m *Metrics) RecordError(component string, err error) {
	if err == nil {
		return
	}
	code := "unknown"
	if c, ok := errors.Code(err); ok {
		code = string(c)
	}
	m.Errors.WithLabelValues(code, component).Inc()
}
