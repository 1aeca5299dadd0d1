// Package suggestion runs one suggestion cycle: route the session snapshot
// to its stage analyzer, ask the generation backend for a draft, and let
// the analyzer finish it. A cycle always yields a suggestion; any backend
// failure falls back to the analyzer's canned answer.
package suggestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MikeSquared-Agency/closer/internal/analyzer"
	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/generation"
	"github.com/MikeSquared-Agency/closer/internal/metrics"
	"github.com/MikeSquared-Agency/closer/internal/stage"
	"github.com/MikeSquared-Agency/closer/internal/telemetry"
)

// Source values for Outcome.Source.
const (
	SourceGenerated = "generated"
	SourceFallback  = "fallback"
)

var errNoGenerator = errors.New("no generation backend configured")

// Outcome is the result of one cycle.
type Outcome struct {
	Suggestion *conversation.Suggestion
	// Analysis is the analyzer's stage analysis bundle.
	Analysis map[string]any
	Source   string
	// Err is the backend error that forced a fallback, if any.
	Err error
}

// Pipeline is safe for concurrent use; it holds no per-session state.
type Pipeline struct {
	router  *analyzer.Router
	gen     generation.Generator
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewPipeline builds a pipeline. gen may be nil, in which case every cycle
// returns the analyzer fallback.
func NewPipeline(gen generation.Generator, timeout time.Duration, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		router:  analyzer.NewRouter(),
		gen:     gen,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Router exposes the analyzers for the immediate interrupt path.
func (p *Pipeline) Router() *analyzer.Router {
	return p.router
}

// Run produces exactly one suggestion for target. A stage without an
// analyzer is handled by discovery.
func (p *Pipeline) Run(ctx context.Context, c *analyzer.Context, target stage.Stage) Outcome {
	a, ok := p.router.For(target)
	if !ok {
		p.logger.Warn("no analyzer for stage, using discovery",
			"session_id", c.SessionID, "stage", target)
		target = stage.Discovery
		a, _ = p.router.For(target)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "suggestion.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", c.SessionID),
		attribute.String("stage", string(target)),
	)

	plan := a.Analyze(c)

	raw, err := p.generate(ctx, a, plan, c)
	var out analyzer.Enhanced
	source := SourceGenerated
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		p.logger.Warn("generation failed, using fallback",
			"session_id", c.SessionID, "stage", target, "error", err)
		out = a.Fallback()
		source = SourceFallback
	} else {
		out = a.Enhance(raw, c, plan)
	}
	span.SetAttributes(attribute.String("source", source))
	metrics.RecordSuggestion(string(target), source)

	s := &conversation.Suggestion{
		ID:           uuid.New().String(),
		SessionID:    c.SessionID,
		Text:         out.Text,
		Type:         out.Type,
		Confidence:   out.Confidence,
		Stage:        target,
		Reasoning:    out.Reasoning,
		Context:      out.Context,
		Alternatives: out.Alternatives,
		NextActions:  out.NextActions,
		Fallback:     source == SourceFallback,
		CreatedAt:    p.now().UTC(),
	}
	if s.Context == nil {
		s.Context = map[string]any{}
	}
	if s.Alternatives == nil {
		s.Alternatives = []string{}
	}
	if s.NextActions == nil {
		s.NextActions = []string{}
	}

	p.logger.Info("suggestion produced",
		"session_id", c.SessionID,
		"stage", target,
		"type", s.Type,
		"confidence", s.Confidence,
		"source", source,
	)

	return Outcome{Suggestion: s, Analysis: plan.Analysis, Source: source, Err: err}
}

func (p *Pipeline) generate(ctx context.Context, a analyzer.Analyzer, plan analyzer.Plan, c *analyzer.Context) (*generation.Result, error) {
	if p.gen == nil {
		return nil, errNoGenerator
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	done := metrics.ObserveGeneration(p.gen.Name())
	defer done()

	return p.gen.Generate(ctx, generation.Request{
		Analyzer:    string(a.Stage()),
		StagePrompt: plan.Prompt,
		History:     c.Recent,
	})
}
