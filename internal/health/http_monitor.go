package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPMonitor reads HealthMetrics from GET {BaseURL}/metrics/{platform}.
type HTTPMonitor struct {
	baseURL string
	client  *http.Client
}

// NewHTTPMonitor creates a monitor for baseURL. A nil client gets a 10s
// timeout.
func NewHTTPMonitor(baseURL string, client *http.Client) *HTTPMonitor {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPMonitor{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// GetMetrics fetches and decodes the platform's metrics.
func (m *HTTPMonitor) GetMetrics(ctx context.Context, platform string) (*HealthMetrics, error) {
	endpoint := m.baseURL + "/metrics/" + url.PathEscape(platform)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build metrics request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metrics for %s: %w", platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch metrics for %s: HTTP %d: %s", platform, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var metrics HealthMetrics
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		return nil, fmt.Errorf("decode metrics for %s: %w", platform, err)
	}
	if metrics.Platform == "" {
		metrics.Platform = platform
	}
	return &metrics, nil
}
