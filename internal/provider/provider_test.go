package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/fixgen"
)

var testMessages = []fixgen.Message{
	{Role: fixgen.RoleSystem, Content: "you fix scrapers"},
	{Role: fixgen.RoleUser, Content: "fix #send"},
}

func TestAnthropicOracleComplete(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "{\"ok\":true}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	oracle, err := NewAnthropicOracle(Config{Name: NameAnthropic, Model: "claude-test", APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	out, err := oracle.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	assert.Equal(t, "claude-test", body["model"])
	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
}

func TestAnthropicOracleAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	oracle, err := NewAnthropicOracle(Config{Name: NameAnthropic, APIKey: "bad", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = oracle.Complete(context.Background(), testMessages)
	require.Error(t, err)
	code, ok := errors.Code(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeOracleAuth, code)
}

func TestOpenAIOracleComplete(t *testing.T) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "patched"}, "finish_reason": "stop"}]
		}`))
	}))
	defer server.Close()

	oracle, err := NewOpenAIOracle(Config{Name: NameOpenAI, Model: "gpt-test", APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	out, err := oracle.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, "patched", out)

	assert.Equal(t, "gpt-test", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
}

func TestOpenAIOracleRateLimitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	oracle, err := NewOpenAIOracle(Config{Name: NameOpenAI, APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	_, err = oracle.Complete(context.Background(), testMessages)
	code, ok := errors.Code(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeOracleRateLimit, code)
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("AUTOHEAL_TEST_KEY", "from-env")

	key, err := Config{APIKey: "inline"}.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "inline", key)

	key, err = Config{APIKeyEnv: "AUTOHEAL_TEST_KEY"}.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	_, err = Config{Name: NameOpenAI, APIKeyEnv: "AUTOHEAL_MISSING_KEY"}.ResolveAPIKey()
	assert.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	oracle, err := New(Config{Name: NameOpenAI, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIOracle{}, oracle)

	oracle, err = New(Config{Name: NameAnthropic, APIKey: "k", RequestsPerMinute: 60})
	require.NoError(t, err)
	assert.IsType(t, &RateLimited{}, oracle)

	_, err = New(Config{Name: "gemini", APIKey: "k"})
	assert.Error(t, err)
}

func TestRateLimitedHonoursContext(t *testing.T) {
	var calls atomic.Int32
	next := fixgen.OracleFunc(func(ctx context.Context, messages []fixgen.Message) (string, error) {
		calls.Add(1)
		return "ok", nil
	})
	limited := NewRateLimited(next, 1, 1)

	_, err := limited.Complete(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.Complete(ctx, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
