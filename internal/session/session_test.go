package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/analytics"
	"github.com/MikeSquared-Agency/closer/internal/analyzer"
	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/generation"
	"github.com/MikeSquared-Agency/closer/internal/interrupt"
	"github.com/MikeSquared-Agency/closer/internal/stage"
	"github.com/MikeSquared-Agency/closer/internal/suggestion"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gatedGenerator blocks every call until release is closed, announcing
// each call on entered when that channel is set.
type gatedGenerator struct {
	entered chan struct{}
	release chan struct{}
	err     error
}

func (g *gatedGenerator) Name() string { return "gated" }

func (g *gatedGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	conf := 0.85
	return &generation.Result{Suggestion: "Ask what the delay costs them each month.", Confidence: &conf}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Notify(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type recordingRecorder struct {
	mu          sync.Mutex
	suggestions int
	transitions []Transition
	summaries   []analytics.Summary
	err         error
}

func (r *recordingRecorder) SaveSuggestion(context.Context, *conversation.Suggestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suggestions++
	return r.err
}

func (r *recordingRecorder) SaveTransition(_ context.Context, t Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
	return r.err
}

func (r *recordingRecorder) SaveSummary(_ context.Context, s analytics.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	return r.err
}

func newTestRegistry(gen generation.Generator, n Notifier, r Recorder) *Registry {
	return NewRegistry(Deps{
		Pipeline: suggestion.NewPipeline(gen, time.Second, discardLogger()),
		Notifier: n,
		Recorder: r,
		Logger:   discardLogger(),
	})
}

func TestStartInOpening(t *testing.T) {
	n := &recordingNotifier{}
	reg := newTestRegistry(&gatedGenerator{}, n, nil)
	s := reg.Start(context.Background(), "user-1")
	defer s.End(context.Background())

	if s.Stage() != stage.Opening {
		t.Errorf("Stage = %s, want opening", s.Stage())
	}
	got, err := reg.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
	if kinds := n.kinds(); len(kinds) != 1 || kinds[0] != EventSessionStarted {
		t.Errorf("events = %v, want [session.started]", kinds)
	}
}

func TestGetUnknownSession(t *testing.T) {
	reg := newTestRegistry(nil, nil, nil)
	if _, err := reg.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get err = %v, want ErrSessionNotFound", err)
	}
	if _, err := reg.End(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("End err = %v, want ErrSessionNotFound", err)
	}
}

func TestSubmitSellerDoesNotGenerate(t *testing.T) {
	rec := &recordingRecorder{}
	reg := newTestRegistry(&gatedGenerator{}, nil, rec)
	s := reg.Start(context.Background(), "")
	defer s.End(context.Background())

	res, err := s.Submit(context.Background(), conversation.Seller, "Hello, thanks for joining.", 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if res.Suggestion != nil {
		t.Error("seller message produced a suggestion")
	}
	if res.Message.Stage != stage.Opening {
		t.Errorf("message stage = %s, want opening", res.Message.Stage)
	}
	if rec.suggestions != 0 {
		t.Errorf("saved %d suggestions, want 0", rec.suggestions)
	}
}

func TestCustomerInputAutoAdvances(t *testing.T) {
	rec := &recordingRecorder{}
	reg := newTestRegistry(&gatedGenerator{}, nil, rec)
	s := reg.Start(context.Background(), "")
	defer s.End(context.Background())
	ctx := context.Background()

	first, err := s.ProcessCustomerInput(ctx, "Hello there.")
	if err != nil {
		t.Fatal(err)
	}
	if first == nil || first.Stage != stage.Opening {
		t.Fatalf("first suggestion = %+v, want opening", first)
	}
	if s.Stage() != stage.Opening {
		t.Fatalf("advanced after one customer message")
	}

	res, err := s.Submit(ctx, conversation.Customer, "Good, thanks for asking.", 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if res.Transition == nil {
		t.Fatal("expected an automatic transition")
	}
	if res.Transition.From != stage.Opening || res.Transition.To != stage.Discovery {
		t.Errorf("transition = %s -> %s, want opening -> discovery", res.Transition.From, res.Transition.To)
	}
	if !res.Transition.Automatic || !res.Transition.Legal {
		t.Errorf("transition automatic=%v legal=%v, want both true", res.Transition.Automatic, res.Transition.Legal)
	}
	if res.Suggestion == nil || res.Suggestion.Stage != stage.Discovery {
		t.Errorf("suggestion = %+v, want one discovery suggestion", res.Suggestion)
	}
	if got := s.Status().StackDepth; got != 1 {
		t.Errorf("StackDepth = %d, want 1", got)
	}
	if rec.suggestions != 2 {
		t.Errorf("saved %d suggestions, want 2", rec.suggestions)
	}
}

func TestPainPointsOnlyGrow(t *testing.T) {
	reg := newTestRegistry(nil, nil, nil)
	s := reg.Start(context.Background(), "")
	defer s.End(context.Background())
	ctx := context.Background()

	if _, err := s.AdvanceStage(ctx, "discovery"); err != nil {
		t.Fatal(err)
	}
	inputs := []string{
		"Our biggest problem is month-end reporting.",
		"Nothing else comes to mind.",
		"Our biggest problem is month-end reporting.",
	}
	for i, text := range inputs {
		if _, err := s.ProcessCustomerInput(ctx, text); err != nil {
			t.Fatal(err)
		}
		if got := len(s.Status().Profile.PainPoints); got != 1 {
			t.Fatalf("after input %d: %d pain points, want 1", i, got)
		}
	}
}

func TestAdvanceStage(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   stage.Stage
		legal  bool
	}{
		{"legal", "discovery", stage.Discovery, true},
		{"illegal allowed", "closing", stage.Closing, false},
		{"interrupt resolves to discovery", "interrupt", stage.Discovery, true},
		{"unknown resolves to discovery", "negotiation", stage.Discovery, true},
		{"case insensitive", "  Discovery ", stage.Discovery, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingRecorder{}
			reg := newTestRegistry(nil, nil, rec)
			s := reg.Start(context.Background(), "")
			defer s.End(context.Background())

			res, err := s.AdvanceStage(context.Background(), tt.target)
			if err != nil {
				t.Fatal(err)
			}
			if !res.Success || res.PreviousStage != stage.Opening || res.NewStage != tt.want {
				t.Errorf("result = %+v, want opening -> %s", res, tt.want)
			}
			if res.Legal != tt.legal {
				t.Errorf("Legal = %v, want %v", res.Legal, tt.legal)
			}
			if s.Stage() != tt.want {
				t.Errorf("Stage = %s, want %s", s.Stage(), tt.want)
			}
			if res.Suggestion == nil || res.Suggestion.Stage != tt.want {
				t.Errorf("suggestion = %+v, want one for %s", res.Suggestion, tt.want)
			}
			if len(rec.transitions) != 1 || rec.transitions[0].Automatic {
				t.Errorf("transitions = %+v, want one manual", rec.transitions)
			}
		})
	}
}

func TestSnapshotCarriesStackTail(t *testing.T) {
	reg := newTestRegistry(nil, nil, nil)
	s := reg.Start(context.Background(), "")
	defer s.End(context.Background())

	for _, target := range []string{"discovery", "pitch", "objection", "pitch"} {
		if _, err := s.AdvanceStage(context.Background(), target); err != nil {
			t.Fatal(err)
		}
	}

	c := s.snapshot(recentWindow)
	want := [][2]stage.Stage{
		{stage.Discovery, stage.Pitch},
		{stage.Pitch, stage.Objection},
		{stage.Objection, stage.Pitch},
	}
	if len(c.Stack) != len(want) {
		t.Fatalf("snapshot stack = %+v, want %d entries", c.Stack, len(want))
	}
	for i, w := range want {
		if c.Stack[i].From != w[0] || c.Stack[i].To != w[1] {
			t.Errorf("Stack[%d] = %s -> %s, want %s -> %s", i, c.Stack[i].From, c.Stack[i].To, w[0], w[1])
		}
	}
	if got := len(s.Status().RecentContext); got != 4 {
		t.Errorf("RecentContext has %d entries, want 4", got)
	}

	a, _ := analyzer.NewRouter().For(stage.Pitch)
	prompt := a.Analyze(c).Prompt
	if !strings.Contains(prompt, "moved objection -> pitch") {
		t.Errorf("pitch prompt is missing the latest transition:\n%s", prompt)
	}
	if strings.Contains(prompt, "moved opening -> discovery") {
		t.Errorf("pitch prompt includes an entry outside the window:\n%s", prompt)
	}
}

func TestFailingGeneratorFallsBack(t *testing.T) {
	reg := newTestRegistry(&gatedGenerator{err: errors.New("upstream 529")}, nil, nil)
	s := reg.Start(context.Background(), "")
	defer s.End(context.Background())

	sug, err := s.GenerateSuggestion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sug == nil || sug.Text == "" {
		t.Fatal("expected a fallback suggestion")
	}
	if sug.Confidence != 0.6 {
		t.Errorf("Confidence = %v, want 0.6", sug.Confidence)
	}
	latest, err := s.LatestSuggestion(context.Background())
	if err != nil || latest != sug {
		t.Errorf("LatestSuggestion = %v, %v, want the fallback", latest, err)
	}
}

func TestHandleInterruptKeepsStage(t *testing.T) {
	n := &recordingNotifier{}
	reg := newTestRegistry(nil, n, nil)
	s := reg.Start(context.Background(), "")
	defer s.End(context.Background())
	ctx := context.Background()

	if _, err := s.AdvanceStage(ctx, "discovery"); err != nil {
		t.Fatal(err)
	}
	res, err := s.HandleInterrupt(ctx, conversation.Customer, "This is urgent, we need to talk")
	if err != nil {
		t.Fatal(err)
	}
	if s.Stage() != stage.Discovery {
		t.Errorf("Stage = %s, want discovery", s.Stage())
	}
	if res.Stage != stage.Discovery {
		t.Errorf("result stage = %s, want discovery", res.Stage)
	}
	if res.Response.Classification.Type != interrupt.Urgency {
		t.Errorf("Type = %s, want urgency", res.Response.Classification.Type)
	}
	if !res.Response.ShouldPause {
		t.Error("urgent interrupt should pause")
	}
	if res.Response.ImmediateResponse == "" {
		t.Error("missing immediate response")
	}
	if res.Suggestion == nil || res.Suggestion.Stage != stage.Interrupt {
		t.Errorf("bridge suggestion = %+v, want interrupt-stage suggestion", res.Suggestion)
	}

	st := s.Status()
	if st.StackDepth != 2 {
		t.Errorf("StackDepth = %d, want 2", st.StackDepth)
	}
	if st.RecentContext[1].Kind != conversation.KindInterrupt {
		t.Errorf("last entry kind = %s, want interrupt", st.RecentContext[1].Kind)
	}
	last := s.history[len(s.history)-1]
	if last.Metadata["type"] != "interrupt" || last.Stage != stage.Discovery {
		t.Errorf("interrupt message = %+v", last)
	}

	found := false
	for _, k := range n.kinds() {
		if k == EventInterruptHandled {
			found = true
		}
	}
	if !found {
		t.Error("no interrupt.handled event")
	}
}

func TestOperationsRunInOrder(t *testing.T) {
	gen := &gatedGenerator{entered: make(chan struct{}), release: make(chan struct{})}
	reg := newTestRegistry(gen, nil, nil)
	s := reg.Start(context.Background(), "")
	defer s.End(context.Background())
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = s.ProcessCustomerInput(ctx, "first")
	}()
	<-gen.entered

	go func() {
		defer wg.Done()
		_, _ = s.ProcessCustomerInput(ctx, "second")
	}()

	// Status does not wait on the queue.
	if got := s.Status().MessageCount; got != 1 {
		t.Errorf("MessageCount while first runs = %d, want 1", got)
	}

	close(gen.release)
	<-gen.entered
	wg.Wait()

	if len(s.history) != 2 || s.history[0].Text != "first" || s.history[1].Text != "second" {
		t.Errorf("history = %+v, want first then second", s.history)
	}
}

func TestEndDiscardsInFlightSuggestion(t *testing.T) {
	gen := &gatedGenerator{entered: make(chan struct{}), release: make(chan struct{})}
	rec := &recordingRecorder{}
	reg := newTestRegistry(gen, nil, rec)
	s := reg.Start(context.Background(), "")

	done := make(chan *conversation.Suggestion)
	go func() {
		sug, _ := s.GenerateSuggestion(context.Background())
		done <- sug
	}()
	<-gen.entered

	summary, err := reg.End(context.Background(), s.ID())
	if err != nil {
		t.Fatal(err)
	}
	if summary.SuggestionsMade != 0 {
		t.Errorf("SuggestionsMade = %d, want 0", summary.SuggestionsMade)
	}
	close(gen.release)
	<-done
	<-s.Done()

	if s.Status().LastSuggestion != nil {
		t.Error("suggestion committed after End")
	}
	if rec.suggestions != 0 {
		t.Errorf("saved %d suggestions after End, want 0", rec.suggestions)
	}
	if _, err := s.Submit(context.Background(), conversation.Customer, "hello?", 0.9); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("Submit after End err = %v, want ErrSessionEnded", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len = %d, want 0", reg.Len())
	}
}

func TestEndIsIdempotent(t *testing.T) {
	rec := &recordingRecorder{err: errors.New("db down")}
	reg := newTestRegistry(nil, nil, rec)
	s := reg.Start(context.Background(), "user-9")
	ctx := context.Background()

	if _, err := s.ProcessCustomerInput(ctx, "We are interested but the price is a concern."); err != nil {
		t.Fatal(err)
	}
	first := s.End(ctx)
	second := s.End(ctx)
	if first.SessionID != second.SessionID || first.MessageCount != second.MessageCount {
		t.Errorf("End not idempotent: %+v vs %+v", first, second)
	}
	if first.UserID != "user-9" || first.MessageCount != 1 || first.SuggestionsMade != 1 {
		t.Errorf("summary = %+v", first)
	}
	if len(rec.summaries) != 1 {
		t.Errorf("saved %d summaries, want 1", len(rec.summaries))
	}
}

func TestRegistryClose(t *testing.T) {
	reg := newTestRegistry(nil, nil, nil)
	a := reg.Start(context.Background(), "")
	b := reg.Start(context.Background(), "")
	reg.Close(context.Background())

	if reg.Len() != 0 {
		t.Errorf("Len = %d, want 0", reg.Len())
	}
	for _, s := range []*Session{a, b} {
		select {
		case <-s.Done():
		case <-time.After(time.Second):
			t.Fatalf("session %s still running", s.ID())
		}
	}
}
