package fixgen

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/autoheal/internal/log"
)

// Role tags a message sent to the oracle.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged prompt message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Oracle is the text-generation collaborator: messages in, raw text out.
type Oracle interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, messages []Message) (string, error)

// Complete calls f.
func (f OracleFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// Observer receives generation telemetry. All methods must be safe to call
// from any goroutine.
type Observer interface {
	OracleCall(duration time.Duration, err error)
	ParseFailure(field string)
}

// Generator produces a FixResponse for a FixRequest in one oracle round
// trip. It never retries: a malformed response is returned to the caller.
type Generator struct {
	oracle   Oracle
	opts     PromptOptions
	observer Observer
	logger   *log.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(oracle Oracle, opts PromptOptions, logger *log.Logger) *Generator {
	return &Generator{
		oracle: oracle,
		opts:   opts,
		logger: log.OrDefault(logger).WithComponent("fixgen"),
	}
}

// WithObserver attaches telemetry.
func (g *Generator) WithObserver(o Observer) *Generator {
	g.observer = o
	return g
}

// Generate asks the oracle for a fix and parses the answer strictly.
// Oracle failures are wrapped; parse failures are returned as *ParseError.
func (g *Generator) Generate(ctx context.Context, req FixRequest) (*FixResponse, error) {
	messages := Messages(req, g.opts)

	start := time.Now()
	raw, err := g.oracle.Complete(ctx, messages)
	elapsed := time.Since(start)
	if g.observer != nil {
		g.observer.OracleCall(elapsed, err)
	}
	if err != nil {
		g.logger.Warn("oracle call failed", "platform", req.Platform, "error", err)
		return nil, fmt.Errorf("oracle: %w", err)
	}

	resp, err := ParseResponse(raw)
	if err != nil {
		if pe, ok := err.(*ParseError); ok && g.observer != nil {
			g.observer.ParseFailure(pe.Field)
		}
		g.logger.Warn("oracle response rejected", "platform", req.Platform, "error", err)
		return nil, err
	}

	g.logger.Info("fix generated",
		"platform", req.Platform,
		"function", req.AffectedFunction,
		"confidence", resp.Confidence,
		"patches", len(resp.SuggestedFix),
		"tests", len(resp.TestCases),
		"duration", elapsed)
	return resp, nil
}
