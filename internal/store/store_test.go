package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/health"
	"github.com/felixgeelhaar/autoheal/internal/patch"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "autoheal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id string, status deploy.Status, started time.Time) *deploy.Record {
	return &deploy.Record{
		ID:               id,
		Platform:         "mail",
		AffectedFunction: "sendMessage",
		FixHash:          "hash-" + id,
		Confidence:       0.9,
		Status:           status,
		StartedAt:        started,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 5, 4, 10, 0, 0, 123456789, time.UTC)
	checked := started.Add(30 * time.Minute)
	rec := record("r1", deploy.StatusComplete, started)
	rec.CurrentPercentage = 100
	rec.CompletedAt = &checked
	rec.EndedAt = &checked
	rec.Stages = []deploy.StageResult{{
		Percentage: 5,
		AppliedAt:  started,
		CheckedAt:  &checked,
		Metrics:    &health.HealthMetrics{Platform: "mail", ErrorRate: 0.01, Connected: true},
	}}

	require.NoError(t, s.Save(ctx, rec, nil))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusComplete, got.Status)
	assert.Equal(t, started, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, checked, *got.CompletedAt)
	require.Len(t, got.Stages, 1)
	assert.Equal(t, 0.01, got.Stages[0].Metrics.ErrorRate)
	assert.Equal(t, 100.0, got.CurrentPercentage)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	code, ok := errors.Code(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeDeployRecordMissing, code)
}

func TestReleaseRoundTripAndUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := record("pending", deploy.StatusPendingReview, time.Now())
	rel := &deploy.Release{
		Platform:         "mail",
		AffectedFunction: "sendMessage",
		FixHash:          "hash-pending",
		Fix: &fixgen.FixResponse{
			Confidence:   0.4,
			SuggestedFix: []patch.CodePatch{{FilePath: "send.js", StartLine: 2, EndLine: 2, OriginalCode: "a", ReplacementCode: "b"}},
		},
	}
	require.NoError(t, s.Save(ctx, rec, rel))

	rec.Status = deploy.StatusComplete
	require.NoError(t, s.Save(ctx, rec, nil))

	got, err := s.Get(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusComplete, got.Status)

	loaded, err := s.Release(ctx, "pending")
	require.NoError(t, err, "a later save without a release keeps the stored one")
	require.Len(t, loaded.Fix.SuggestedFix, 1)
	assert.Equal(t, "send.js", loaded.Fix.SuggestedFix[0].FilePath)
}

func TestList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, record("a", deploy.StatusComplete, base), nil))
	require.NoError(t, s.Save(ctx, record("b", deploy.StatusRolledBack, base.Add(time.Hour)), nil))
	require.NoError(t, s.Save(ctx, record("c", deploy.StatusComplete, base.Add(500*time.Millisecond)), nil))
	other := record("d", deploy.StatusComplete, base.Add(2*time.Hour))
	other.Platform = "chat"
	require.NoError(t, s.Save(ctx, other, nil))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(all))

	mail, err := s.List(ctx, Filter{Platform: "mail", Status: deploy.StatusComplete})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(mail))

	limited, err := s.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(limited))

	byHash, err := s.List(ctx, Filter{FixHash: "hash-b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(byHash))
}

func TestChecker(t *testing.T) {
	s := openTestStore(t)
	c := s.Checker()
	assert.Equal(t, "store", c.Name())
	assert.Equal(t, health.StatusHealthy, c.Check(context.Background()).Status)
}

func ids(recs []*deploy.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
