package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/autoheal/internal/patch"
)

// HTTPExecutor drives a rollout controller over HTTP:
// POST {base}/rollouts to apply at a percentage and POST {base}/rollbacks
// to revert.
type HTTPExecutor struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Executor = (*HTTPExecutor)(nil)

// NewHTTPExecutor creates an executor. token, when set, is sent as a
// bearer token.
func NewHTTPExecutor(baseURL, token string, client *http.Client) *HTTPExecutor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPExecutor{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

type rolloutRequest struct {
	Platform         string            `json:"platform"`
	AffectedFunction string            `json:"affectedFunction"`
	FixHash          string            `json:"fixHash"`
	Percentage       float64           `json:"percentage,omitempty"`
	Patches          []patch.CodePatch `json:"patches,omitempty"`
}

// ApplyAtPercentage routes percentage of traffic to the fix.
func (e *HTTPExecutor) ApplyAtPercentage(ctx context.Context, rel *Release, percentage float64) error {
	body := rolloutRequest{
		Platform:         rel.Platform,
		AffectedFunction: rel.AffectedFunction,
		FixHash:          rel.FixHash,
		Percentage:       percentage,
	}
	if rel.Fix != nil {
		body.Patches = rel.Fix.SuggestedFix
	}
	return e.post(ctx, "/rollouts", body)
}

// Rollback returns all traffic to the previous version.
func (e *HTTPExecutor) Rollback(ctx context.Context, rel *Release) error {
	return e.post(ctx, "/rollbacks", rolloutRequest{
		Platform:         rel.Platform,
		AffectedFunction: rel.AffectedFunction,
		FixHash:          rel.FixHash,
	})
}

func (e *HTTPExecutor) post(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("POST %s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
