package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/analytics"
	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// EventKind names what happened in a session.
type EventKind string

const (
	EventSessionStarted      EventKind = "session.started"
	EventSessionEnded        EventKind = "session.ended"
	EventSuggestionGenerated EventKind = "suggestion.generated"
	EventStageTransition     EventKind = "stage.transition"
	EventInterruptHandled    EventKind = "interrupt.handled"
)

// Event is fanned out to every Notifier. Payload is one of
// *conversation.Suggestion, Transition, InterruptResult, analytics.Summary
// or Started.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload"`
}

// Started is the payload of EventSessionStarted.
type Started struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Transition records one stage change.
type Transition struct {
	SessionID string      `json:"session_id"`
	From      stage.Stage `json:"from_stage"`
	To        stage.Stage `json:"to_stage"`
	Legal     bool        `json:"legal"`
	// Automatic is true when the completion scorer triggered the move.
	Automatic bool      `json:"automatic"`
	At        time.Time `json:"at"`
}

// Notifier receives session events. Implementations must not block for
// long; they run on the session's goroutine.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Notifiers fans an event out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, e Event) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, e)
		}
	}
}

// Recorder is the write-only persistence collaborator.
type Recorder interface {
	SaveSuggestion(ctx context.Context, s *conversation.Suggestion) error
	SaveTransition(ctx context.Context, t Transition) error
	SaveSummary(ctx context.Context, s analytics.Summary) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

type nopRecorder struct{}

func (nopRecorder) SaveSuggestion(context.Context, *conversation.Suggestion) error { return nil }
func (nopRecorder) SaveTransition(context.Context, Transition) error               { return nil }
func (nopRecorder) SaveSummary(context.Context, analytics.Summary) error           { return nil }

// persist runs a recorder write and logs failures. Persistence never fails
// a session operation.
func persist(logger *slog.Logger, what, sessionID string, err error) {
	if err != nil {
		logger.Warn("persist failed", "record", what, "session_id", sessionID, "error", err)
	}
}
