package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/felixgeelhaar/autoheal/internal/fixgen"
)

// AnthropicOracle sends fix requests to the Anthropic Messages API.
type AnthropicOracle struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ fixgen.Oracle = (*AnthropicOracle)(nil)

// NewAnthropicOracle creates an oracle from cfg.
func NewAnthropicOracle(cfg Config) (*AnthropicOracle, error) {
	cfg.applyDefaults()
	key, err := cfg.ResolveAPIKey()
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicOracle{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}, nil
}

// Complete sends messages and returns the first text block of the reply.
// System messages are folded into the system prompt.
func (o *AnthropicOracle) Complete(ctx context.Context, messages []fixgen.Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(o.model),
		MaxTokens: o.maxTokens,
	}

	for _, m := range messages {
		switch m.Role {
		case fixgen.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case fixgen.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	message, err := o.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyError(NameAnthropic, err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text content in Anthropic response")
	}
	return b.String(), nil
}
