package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/felixgeelhaar/autoheal/internal/fixgen"
)

// OpenAIOracle sends fix requests to an OpenAI-compatible chat completion
// endpoint.
type OpenAIOracle struct {
	client    *openai.Client
	model     string
	maxTokens int
}

var _ fixgen.Oracle = (*OpenAIOracle)(nil)

// NewOpenAIOracle creates an oracle from cfg.
func NewOpenAIOracle(cfg Config) (*OpenAIOracle, error) {
	cfg.applyDefaults()
	key, err := cfg.ResolveAPIKey()
	if err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIOracle{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Complete sends messages and returns the first choice's content.
func (o *OpenAIOracle) Complete(ctx context.Context, messages []fixgen.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:               o.model,
		MaxCompletionTokens: o.maxTokens,
		Messages:            make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openAIRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyError(NameOpenAI, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIRole(r fixgen.Role) string {
	switch r {
	case fixgen.RoleSystem:
		return openai.ChatMessageRoleSystem
	case fixgen.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
