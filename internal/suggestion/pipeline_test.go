package suggestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/analyzer"
	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/generation"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGenerator struct {
	result *generation.Result
	err    error
	block  bool
	got    []generation.Request
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	f.got = append(f.got, req)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

func snapshot(s stage.Stage) *analyzer.Context {
	history := []conversation.Message{
		{Speaker: conversation.Seller, Text: "Thanks for making the time today."},
		{Speaker: conversation.Customer, Text: "Sure. Our reporting process is slow and manual."},
	}
	return &analyzer.Context{SessionID: "sess-1", Stage: s, History: history, Recent: history}
}

func TestRunGenerated(t *testing.T) {
	conf := 0.9
	gen := &fakeGenerator{result: &generation.Result{
		Suggestion: "What does that slow reporting cost your team each week?",
		Confidence: &conf,
	}}
	p := NewPipeline(gen, time.Second, discardLogger())

	out := p.Run(context.Background(), snapshot(stage.Discovery), stage.Discovery)
	if out.Source != SourceGenerated {
		t.Fatalf("Source = %s, want generated (err %v)", out.Source, out.Err)
	}
	s := out.Suggestion
	if s.ID == "" || s.SessionID != "sess-1" {
		t.Errorf("ids not stamped: %+v", s)
	}
	if s.Stage != stage.Discovery {
		t.Errorf("Stage = %s, want discovery", s.Stage)
	}
	if math.Abs(s.Confidence-0.9) > 0.001 {
		t.Errorf("Confidence = %f, want 0.9", s.Confidence)
	}
	if s.Fallback {
		t.Error("generated suggestion marked as fallback")
	}
	if len(gen.got) != 1 || gen.got[0].Analyzer != "discovery" || gen.got[0].StagePrompt == "" {
		t.Errorf("generator request = %+v", gen.got)
	}
	if out.Analysis["qualification_stage"] == nil {
		t.Errorf("missing discovery analysis: %v", out.Analysis)
	}
}

func TestRunFallsBackOnError(t *testing.T) {
	tests := []struct {
		stage stage.Stage
		want  float64
	}{
		{stage.Opening, 0.6},
		{stage.Discovery, 0.6},
		{stage.Pitch, 0.6},
		{stage.Objection, 0.6},
		{stage.Closing, 0.6},
		{stage.Interrupt, 0.5},
	}
	p := NewPipeline(&fakeGenerator{err: errors.New("backend down")}, time.Second, discardLogger())
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			out := p.Run(context.Background(), snapshot(tt.stage), tt.stage)
			if out.Source != SourceFallback || out.Err == nil {
				t.Fatalf("Source = %s, Err = %v; want fallback with error", out.Source, out.Err)
			}
			if math.Abs(out.Suggestion.Confidence-tt.want) > 0.001 {
				t.Errorf("Confidence = %f, want %f", out.Suggestion.Confidence, tt.want)
			}
			if !out.Suggestion.Fallback {
				t.Error("fallback flag not set")
			}
		})
	}
}

func TestRunTimesOut(t *testing.T) {
	p := NewPipeline(&fakeGenerator{block: true}, 20*time.Millisecond, discardLogger())
	out := p.Run(context.Background(), snapshot(stage.Pitch), stage.Pitch)
	if out.Source != SourceFallback {
		t.Fatalf("Source = %s, want fallback", out.Source)
	}
	if !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want deadline exceeded", out.Err)
	}
}

func TestRunWithoutGenerator(t *testing.T) {
	p := NewPipeline(nil, time.Second, discardLogger())
	out := p.Run(context.Background(), snapshot(stage.Closing), stage.Closing)
	if out.Source != SourceFallback {
		t.Errorf("Source = %s, want fallback", out.Source)
	}
}

func TestRunUnknownStageUsesDiscovery(t *testing.T) {
	gen := &fakeGenerator{result: &generation.Result{Suggestion: "Tell me more about that."}}
	p := NewPipeline(gen, time.Second, discardLogger())
	out := p.Run(context.Background(), snapshot(stage.Discovery), stage.Stage("negotiation"))
	if out.Suggestion.Stage != stage.Discovery {
		t.Errorf("Stage = %s, want discovery", out.Suggestion.Stage)
	}
}
