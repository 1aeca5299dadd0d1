package generation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/closer/internal/anthropic"
)

// AnthropicGenerator drafts suggestions with the Anthropic Messages API.
type AnthropicGenerator struct {
	llm       *anthropic.Client
	maxTokens int
	logger    *slog.Logger
}

func NewAnthropic(llm *anthropic.Client, maxTokens int, logger *slog.Logger) *AnthropicGenerator {
	return &AnthropicGenerator{llm: llm, maxTokens: maxTokens, logger: logger}
}

func (g *AnthropicGenerator) Name() string { return "anthropic" }

func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	messages := []anthropic.Message{
		{Role: "user", Content: UserPrompt(req.History)},
	}

	completion, err := g.llm.Complete(ctx, req.StagePrompt, messages, g.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}

	g.logger.Debug("generation complete",
		"provider", g.Name(),
		"analyzer", req.Analyzer,
		"input_tokens", completion.InputTokens,
		"output_tokens", completion.OutputTokens,
	)

	res, err := ParseResult(completion.Text)
	if err != nil {
		g.logger.Warn("unparseable generation output", "analyzer", req.Analyzer, "error", err, "raw", completion.Text)
		return nil, err
	}
	return res, nil
}
