package metrics

import (
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/eval"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
)

var (
	_ fixgen.Observer = (*Metrics)(nil)
	_ eval.Observer   = (*Metrics)(nil)
	_ deploy.Observer = (*Metrics)(nil)
)

func TestOracleMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.OracleCall(2*time.Second, nil)
	m.OracleCall(time.Second, stderrors.New("503"))
	m.ParseFailure("confidence")
	m.ParseFailure("confidence")

	if got := testutil.ToFloat64(m.OracleCalls.WithLabelValues("true")); got != 1 {
		t.Errorf("successful oracle calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OracleCalls.WithLabelValues("false")); got != 1 {
		t.Errorf("failed oracle calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ParseFailures.WithLabelValues("confidence")); got != 2 {
		t.Errorf("parse failures = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.OracleLatency); got != 1 {
		t.Errorf("latency series = %d, want 1", got)
	}
}

func TestValidationMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Validated(&eval.ValidationResult{Passed: true, DurationMs: 1200})
	m.Validated(&eval.ValidationResult{Passed: false, PatchErr: stderrors.New("mismatch")})

	if got := testutil.ToFloat64(m.Validations.WithLabelValues("true")); got != 1 {
		t.Errorf("passed validations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PatchFailures); got != 1 {
		t.Errorf("patch failures = %v, want 1", got)
	}
}

func TestDeployMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.StageApplied("mail", 5)
	m.StageApplied("mail", 25)
	m.RollbackTriggered("mail")
	m.DeployFinished(&deploy.Record{Platform: "mail", Status: deploy.StatusRolledBack})

	if got := testutil.ToFloat64(m.StagesApplied.WithLabelValues("mail", "25")); got != 1 {
		t.Errorf("25%% stage = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Rollbacks.WithLabelValues("mail")); got != 1 {
		t.Errorf("rollbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Deployments.WithLabelValues("mail", "ROLLED_BACK")); got != 1 {
		t.Errorf("rolled back deployments = %v, want 1", got)
	}
}

func TestRecordError(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordError("fixgen", errors.New(errors.ErrCodeOracleAuth, "bad key"))
	m.RecordError("deploy", stderrors.New("plain"))
	m.RecordError("deploy", nil)

	if got := testutil.ToFloat64(m.Errors.WithLabelValues("ORACLE-003", "fixgen")); got != 1 {
		t.Errorf("coded errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("unknown", "deploy")); got != 1 {
		t.Errorf("uncoded errors = %v, want 1", got)
	}
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordHeal("deployed", 90*time.Second)
	m.RecordDiagnosis("SELECTOR_NOT_FOUND", "high")

	server := httptest.NewServer(HandlerFor(reg))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`autoheal_heal_runs_total{outcome="deployed"} 1`,
		`autoheal_diagnoses_total{category="SELECTOR_NOT_FOUND",severity="high"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
