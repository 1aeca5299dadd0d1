// Package session owns live sales calls. Every call is a Session driven by
// a single goroutine that applies state-changing operations one at a time,
// so a second customer input queues behind the first instead of
// interleaving with it. Reads (Status, Metrics) take a read lock and never
// wait on the queue.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/analytics"
	"github.com/MikeSquared-Agency/closer/internal/analyzer"
	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/interrupt"
	"github.com/MikeSquared-Agency/closer/internal/metrics"
	"github.com/MikeSquared-Agency/closer/internal/profile"
	"github.com/MikeSquared-Agency/closer/internal/scoring"
	"github.com/MikeSquared-Agency/closer/internal/stage"
	"github.com/MikeSquared-Agency/closer/internal/suggestion"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session ended")
)

const (
	recentWindow    = 5
	interruptWindow = 3
	stackWindow     = 3
	statusWindow    = 5
	// DefaultConfidence applies to messages submitted without one.
	DefaultConfidence = 0.9
)

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan struct{}
}

// Session is one live call.
type Session struct {
	id     string
	userID string

	pipeline *suggestion.Pipeline
	notifier Notifier
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu           sync.RWMutex
	current      stage.Stage
	profile      profile.Profile
	history      []conversation.Message
	stack        conversation.Stack
	last         *conversation.Suggestion
	suggestions  int
	startedAt    time.Time
	lastActivity time.Time
	ended        bool
	summary      analytics.Summary

	jobs    chan job
	quit    chan struct{}
	stopped chan struct{}
	endOnce sync.Once
}

// Deps are the collaborators a session works with. Only Pipeline is
// required.
type Deps struct {
	Pipeline *suggestion.Pipeline
	Notifier Notifier
	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

func newSession(id, userID string, d Deps) *Session {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	now := d.Now().UTC()
	s := &Session{
		id:           id,
		userID:       userID,
		pipeline:     d.Pipeline,
		notifier:     d.Notifier,
		recorder:     d.Recorder,
		logger:       d.Logger.With("session_id", id),
		now:          d.Now,
		current:      stage.Opening,
		startedAt:    now,
		lastActivity: now,
		jobs:         make(chan job),
		quit:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.quit:
			return
		case j := <-s.jobs:
			j.fn(j.ctx)
			close(j.done)
		}
	}
}

// do queues fn behind every earlier operation and waits for it. If ctx is
// cancelled while fn runs, do returns early but fn still completes.
func (s *Session) do(ctx context.Context, fn func(ctx context.Context)) error {
	j := job{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case <-s.quit:
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	case s.jobs <- j:
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitResult is what a submitted utterance produced.
type SubmitResult struct {
	Message    conversation.Message     `json:"message"`
	Suggestion *conversation.Suggestion `json:"suggestion,omitempty"`
	Transition *Transition              `json:"transition,omitempty"`
}

// Submit appends an utterance to the history. Customer utterances then go
// through ProcessCustomerInput; seller utterances are only recorded.
func (s *Session) Submit(ctx context.Context, speaker conversation.Speaker, text string, confidence float64) (SubmitResult, error) {
	var res SubmitResult
	err := s.do(ctx, func(ctx context.Context) {
		res.Message = s.appendMessage(speaker, text, confidence, nil)
		if speaker == conversation.Customer {
			res.Transition, res.Suggestion = s.processCustomerInput(ctx, text)
		}
	})
	return res, err
}

// ProcessCustomerInput records a customer utterance, merges what it reveals
// into the profile, advances the stage when the current one is complete and
// produces exactly one suggestion.
func (s *Session) ProcessCustomerInput(ctx context.Context, text string) (*conversation.Suggestion, error) {
	res, err := s.Submit(ctx, conversation.Customer, text, DefaultConfidence)
	return res.Suggestion, err
}

func (s *Session) processCustomerInput(ctx context.Context, text string) (*Transition, *conversation.Suggestion) {
	if in := profile.ExtractInsights(text); !in.Empty() {
		s.mu.Lock()
		s.profile = profile.Merge(s.profile, in)
		s.mu.Unlock()
	}

	s.mu.RLock()
	decision := scoring.Decide(s.current, s.history, s.profile)
	s.mu.RUnlock()

	var tr *Transition
	if decision.ShouldAdvance {
		s.logger.Info("stage complete", "score", decision.Score, "next_stage", decision.Next)
		t := s.transition(ctx, decision.Next, true)
		tr = &t
	}
	return tr, s.generate(ctx, s.Stage())
}

// TransitionResult is returned by AdvanceStage.
type TransitionResult struct {
	Success       bool                     `json:"success"`
	PreviousStage stage.Stage              `json:"previous_stage"`
	NewStage      stage.Stage              `json:"new_stage"`
	Legal         bool                     `json:"legal"`
	Suggestion    *conversation.Suggestion `json:"suggestion"`
}

// AdvanceStage moves the call to target and produces a suggestion for the
// new stage. Illegal targets are allowed with a warning. Names that are not
// a real stage, including interrupt, resolve to discovery.
func (s *Session) AdvanceStage(ctx context.Context, target string) (TransitionResult, error) {
	var res TransitionResult
	err := s.do(ctx, func(ctx context.Context) {
		to := s.resolveTarget(target)
		t := s.transition(ctx, to, false)
		res = TransitionResult{
			Success:       true,
			PreviousStage: t.From,
			NewStage:      t.To,
			Legal:         t.Legal,
			Suggestion:    s.generate(ctx, t.To),
		}
	})
	return res, err
}

func (s *Session) resolveTarget(name string) stage.Stage {
	to, err := stage.Parse(name)
	if err != nil || to == stage.Interrupt {
		s.logger.Warn("unusable stage target, using discovery", "target", name)
		return stage.Discovery
	}
	return to
}

// transition applies a stage change. to must be a real stage.
func (s *Session) transition(ctx context.Context, to stage.Stage, automatic bool) Transition {
	at := s.now().UTC()

	s.mu.Lock()
	from := s.current
	legal := stage.IsLegal(from, to)
	s.stack.Push(conversation.TransitionEntry(at, from, to))
	s.current = to
	s.lastActivity = at
	s.mu.Unlock()

	if !legal {
		s.logger.Warn("illegal stage transition allowed", "from", from, "to", to)
	}
	metrics.RecordTransition(string(from), string(to), legal)

	t := Transition{SessionID: s.id, From: from, To: to, Legal: legal, Automatic: automatic, At: at}
	s.logger.Info("stage advanced", "from", from, "to", to, "legal", legal, "automatic", automatic)
	persist(s.logger, "stage_transition", s.id, s.recorder.SaveTransition(ctx, t))
	s.notifier.Notify(ctx, Event{Kind: EventStageTransition, SessionID: s.id, At: at, Payload: t})
	return t
}

// InterruptResult is the handling of one interruption.
type InterruptResult struct {
	SessionID string                     `json:"session_id"`
	Stage     stage.Stage                `json:"stage"`
	Response  analyzer.InterruptResponse `json:"response"`
	// Suggestion is a drafted bridge back to the interrupted stage, produced
	// only when the interruption pauses the main conversation.
	Suggestion *conversation.Suggestion `json:"suggestion,omitempty"`
}

// HandleInterrupt records an out-of-turn utterance and answers it
// immediately. The current stage does not change.
func (s *Session) HandleInterrupt(ctx context.Context, speaker conversation.Speaker, text string) (InterruptResult, error) {
	var res InterruptResult
	err := s.do(ctx, func(ctx context.Context) {
		at := s.now().UTC()

		s.mu.Lock()
		current := s.current
		s.stack.Push(conversation.InterruptEntry(at, current, speaker, text))
		s.mu.Unlock()

		cls := interrupt.Classify(text, string(speaker), current)
		c := s.snapshot(interruptWindow)
		c.Interrupt = &analyzer.InterruptInput{Speaker: speaker, Text: text}
		resp := s.pipeline.Router().Interrupt().Respond(c, cls)

		s.appendMessage(speaker, text, DefaultConfidence, map[string]string{"type": "interrupt"})
		metrics.RecordInterrupt(string(cls.Type), string(cls.Priority))
		s.logger.Info("interrupt handled",
			"type", cls.Type, "priority", cls.Priority, "should_pause", resp.ShouldPause)

		res = InterruptResult{SessionID: s.id, Stage: current, Response: resp}
		if resp.ShouldPause {
			res.Suggestion = s.generateWith(ctx, stage.Interrupt, c)
		}
		s.notifier.Notify(ctx, Event{Kind: EventInterruptHandled, SessionID: s.id, At: at, Payload: res})
	})
	return res, err
}

// GenerateSuggestion runs the suggestion pipeline for the current stage.
func (s *Session) GenerateSuggestion(ctx context.Context) (*conversation.Suggestion, error) {
	var out *conversation.Suggestion
	err := s.do(ctx, func(ctx context.Context) {
		out = s.generate(ctx, s.Stage())
	})
	return out, err
}

// LatestSuggestion returns the last suggestion, generating one when the
// session has none yet.
func (s *Session) LatestSuggestion(ctx context.Context) (*conversation.Suggestion, error) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil {
		return last, nil
	}
	return s.GenerateSuggestion(ctx)
}

func (s *Session) generate(ctx context.Context, target stage.Stage) *conversation.Suggestion {
	return s.generateWith(ctx, target, s.snapshot(recentWindow))
}

// generateWith runs the pipeline outside the lock and commits the result
// only if the session is still live.
func (s *Session) generateWith(ctx context.Context, target stage.Stage, c *analyzer.Context) *conversation.Suggestion {
	out := s.pipeline.Run(ctx, c, target)
	sug := out.Suggestion

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		s.logger.Info("session ended during generation, discarding suggestion", "suggestion_id", sug.ID)
		return sug
	}
	s.last = sug
	s.suggestions++
	s.mu.Unlock()

	persist(s.logger, "suggestion_event", s.id, s.recorder.SaveSuggestion(ctx, sug))
	s.notifier.Notify(ctx, Event{Kind: EventSuggestionGenerated, SessionID: s.id, At: sug.CreatedAt, Payload: sug})
	return sug
}

// snapshot copies the state an analyzer needs. recent is the size of the
// recent-message window.
func (s *Session) snapshot(recent int) *analyzer.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := slices.Clone(s.history)
	return &analyzer.Context{
		SessionID: s.id,
		UserID:    s.userID,
		Stage:     s.current,
		Profile:   s.profile.Clone(),
		Recent:    conversation.Last(history, recent),
		History:   history,
		Stack:     s.stack.Last(stackWindow),
		Metadata:  map[string]string{"session_id": s.id, "user_id": s.userID},
	}
}

func (s *Session) appendMessage(speaker conversation.Speaker, text string, confidence float64, meta map[string]string) conversation.Message {
	at := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	m := conversation.Message{
		SessionID:  s.id,
		Timestamp:  at,
		Speaker:    speaker,
		Text:       text,
		Confidence: confidence,
		Stage:      s.current,
		Metadata:   meta,
	}
	s.history = append(s.history, m)
	s.lastActivity = at
	return m
}

// Stage returns the current stage. It is always one of the five real stages.
func (s *Session) Stage() stage.Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID      string                      `json:"session_id"`
	UserID         string                      `json:"user_id,omitempty"`
	Stage          stage.Stage                 `json:"current_stage"`
	MessageCount   int                         `json:"message_count"`
	Profile        profile.Profile             `json:"customer_profile"`
	LastSuggestion *conversation.Suggestion    `json:"last_suggestion,omitempty"`
	StageProgress  map[stage.Stage]float64     `json:"stage_progress"`
	StageActions   []string                    `json:"stage_actions"`
	StackDepth     int                         `json:"context_stack_depth"`
	RecentContext  []conversation.ContextEntry `json:"recent_context"`
	StartedAt      time.Time                   `json:"started_at"`
	LastActivity   time.Time                   `json:"last_activity"`
	Ended          bool                        `json:"ended"`
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		SessionID:      s.id,
		UserID:         s.userID,
		Stage:          s.current,
		MessageCount:   len(s.history),
		Profile:        s.profile.Clone(),
		LastSuggestion: s.last,
		StageProgress:  analytics.StageProgress(s.history),
		StageActions:   stage.Actions(s.current),
		StackDepth:     s.stack.Len(),
		RecentContext:  s.stack.Last(statusWindow),
		StartedAt:      s.startedAt,
		LastActivity:   s.lastActivity,
		Ended:          s.ended,
	}
}

// Metrics computes the call's performance metrics so far.
func (s *Session) Metrics() analytics.Performance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return analytics.Measure(s.id, s.history, s.startedAt, s.now().UTC())
}

// End stops the session and returns its summary. Queued operations fail
// with ErrSessionEnded; an operation already running finishes but its
// suggestion is discarded. Calling End again returns the same summary.
func (s *Session) End(ctx context.Context) analytics.Summary {
	s.endOnce.Do(func() {
		end := s.now().UTC()
		s.mu.Lock()
		s.ended = true
		s.summary = analytics.Summarize(analytics.SummaryInput{
			SessionID:   s.id,
			UserID:      s.userID,
			Start:       s.startedAt,
			End:         end,
			History:     s.history,
			Profile:     s.profile,
			FinalStage:  s.current,
			Suggestions: s.suggestions,
		})
		summary := s.summary
		s.mu.Unlock()
		close(s.quit)

		s.logger.Info("session ended",
			"duration_minutes", summary.DurationMinutes,
			"message_count", summary.MessageCount,
			"outcome", summary.Outcome)
		persist(s.logger, "session_summary", s.id, s.recorder.SaveSummary(ctx, summary))
		s.notifier.Notify(ctx, Event{Kind: EventSessionEnded, SessionID: s.id, At: end, Payload: summary})
	})
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}
