// Package store persists deployment records in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/health"
)

// Store saves deploy.Records and the releases they rolled out.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS deployments (
			id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			affected_function TEXT NOT NULL,
			fix_hash TEXT,
			confidence REAL NOT NULL,
			status TEXT NOT NULL,
			rollback_reason TEXT,
			current_percentage REAL NOT NULL DEFAULT 0,
			stages TEXT,
			release_json TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_platform ON deployments(platform, affected_function)`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_status ON deployments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_fix_hash ON deployments(fix_hash)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces rec. rel may be nil; when set it is kept so a
// record held for review can be approved later.
func (s *Store) Save(ctx context.Context, rec *deploy.Record, rel *deploy.Release) error {
	stages, err := json.Marshal(rec.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}
	var release sql.NullString
	if rel != nil {
		data, err := json.Marshal(rel)
		if err != nil {
			return fmt.Errorf("failed to marshal release: %w", err)
		}
		release = sql.NullString{String: string(data), Valid: true}
	}

	query := `INSERT INTO deployments (
			id, platform, affected_function, fix_hash, confidence, status, rollback_reason,
			current_percentage, stages, release_json, started_at, ended_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			rollback_reason = excluded.rollback_reason,
			current_percentage = excluded.current_percentage,
			stages = excluded.stages,
			release_json = COALESCE(excluded.release_json, deployments.release_json),
			ended_at = excluded.ended_at,
			completed_at = excluded.completed_at`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Platform, rec.AffectedFunction, rec.FixHash, rec.Confidence,
		string(rec.Status), rec.RollbackReason, rec.CurrentPercentage, string(stages), release,
		formatTime(rec.StartedAt), formatTimePtr(rec.EndedAt), formatTimePtr(rec.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to save deployment %s: %w", rec.ID, err)
	}
	return nil
}

const recordColumns = `id, platform, affected_function, fix_hash, confidence, status, rollback_reason,
	current_percentage, stages, started_at, ended_at, completed_at`

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id string) (*deploy.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM deployments WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	return rec, err
}

// Release returns the release saved with record id.
func (s *Store) Release(ctx context.Context, id string) (*deploy.Release, error) {
	var data sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT release_json FROM deployments WHERE id = ?`, id).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) || (err == nil && !data.Valid) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load release %s: %w", id, err)
	}
	var rel deploy.Release
	if err := json.Unmarshal([]byte(data.String), &rel); err != nil {
		return nil, fmt.Errorf("failed to unmarshal release %s: %w", id, err)
	}
	return &rel, nil
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Platform         string
	AffectedFunction string
	Status           deploy.Status
	FixHash          string
	Limit            int
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]*deploy.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, f.Platform)
	}
	if f.AffectedFunction != "" {
		where = append(where, "affected_function = ?")
		args = append(args, f.AffectedFunction)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.FixHash != "" {
		where = append(where, "fix_hash = ?")
		args = append(args, f.FixHash)
	}

	query := `SELECT ` + recordColumns + ` FROM deployments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var out []*deploy.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Checker reports whether the database answers.
func (s *Store) Checker() health.Checker {
	return health.CheckerFunc{
		CheckName: "store",
		Fn: func(ctx context.Context) *health.Result {
			if err := s.db.PingContext(ctx); err != nil {
				return health.Unhealthy("database unreachable").WithDetail("error", err.Error())
			}
			return health.Healthy("ok")
		},
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*deploy.Record, error) {
	var (
		rec                     deploy.Record
		status                  string
		fixHash, reason, stages sql.NullString
		started                 string
		ended, completed        sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Platform, &rec.AffectedFunction, &fixHash, &rec.Confidence,
		&status, &reason, &rec.CurrentPercentage, &stages, &started, &ended, &completed)
	if err != nil {
		return nil, err
	}
	rec.Status = deploy.Status(status)
	rec.FixHash = fixHash.String
	rec.RollbackReason = reason.String

	if stages.Valid && stages.String != "" && stages.String != "null" {
		if err := json.Unmarshal([]byte(stages.String), &rec.Stages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stages for %s: %w", rec.ID, err)
		}
	}
	if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("bad started_at for %s: %w", rec.ID, err)
	}
	if rec.EndedAt, err = parseTimePtr(ended); err != nil {
		return nil, fmt.Errorf("bad ended_at for %s: %w", rec.ID, err)
	}
	if rec.CompletedAt, err = parseTimePtr(completed); err != nil {
		return nil, fmt.Errorf("bad completed_at for %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func notFound(id string) error {
	return errors.New(errors.ErrCodeDeployRecordMissing, fmt.Sprintf("deployment %s not found", id)).
		WithSuggestion("List deployments with 'autoheal deployments' or GET /deployments")
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
