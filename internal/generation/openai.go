package generation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIGenerator drafts suggestions with any OpenAI-compatible chat
// completions endpoint.
type OpenAIGenerator struct {
	client      openaigo.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// OpenAIConfig configures NewOpenAI.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// Temperature is sent only when positive.
	Temperature float64
	// HTTPClient is optional.
	HTTPClient *http.Client
}

func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai generator: api key is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base+"/"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIGenerator{
		client:      openaigo.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

func (g *OpenAIGenerator) Name() string { return "openai" }

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	params := openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(g.model),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(req.StagePrompt),
			openaigo.UserMessage(UserPrompt(req.History)),
		},
	}
	if g.maxTokens > 0 {
		params.MaxCompletionTokens = openaigo.Int(int64(g.maxTokens))
	}
	if g.temperature > 0 {
		params.Temperature = openaigo.Float(g.temperature)
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai generate: %w", ErrMalformedOutput)
	}

	g.logger.Debug("generation complete",
		"provider", g.Name(),
		"analyzer", req.Analyzer,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	raw := resp.Choices[0].Message.Content
	res, err := ParseResult(raw)
	if err != nil {
		g.logger.Warn("unparseable generation output", "analyzer", req.Analyzer, "error", err, "raw", raw)
		return nil, err
	}
	return res, nil
}
