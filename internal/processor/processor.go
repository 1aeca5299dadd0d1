// Package processor turns speech-to-text transcript events into session
// messages. Events arrive from NATS or from a WebSocket stream.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/metrics"
	"github.com/MikeSquared-Agency/closer/internal/session"
)

// ErrInvalidEvent is returned for events that cannot be routed to a session.
var ErrInvalidEvent = errors.New("invalid transcript event")

// Result labels for the transcript events counter.
const (
	ResultConsumed       = "consumed"
	ResultPartial        = "partial"
	ResultEmpty          = "empty"
	ResultInvalid        = "invalid"
	ResultUnknownSession = "unknown_session"
	ResultEnded          = "ended"
	ResultFailed         = "failed"
)

// TranscriptEvent is one recognized utterance.
type TranscriptEvent struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Speaker    string    `json:"speaker,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	IsFinal    bool      `json:"is_final"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// Sessions looks up live sessions.
type Sessions interface {
	Get(id string) (*session.Session, error)
}

// Processor feeds transcript events into sessions.
type Processor struct {
	sessions Sessions
	logger   *slog.Logger
}

func New(sessions Sessions, logger *slog.Logger) *Processor {
	return &Processor{sessions: sessions, logger: logger}
}

// HandleTranscript is the NATS handler for the transcript subject.
func (p *Processor) HandleTranscript(subject string, data []byte) {
	var evt TranscriptEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		metrics.RecordTranscriptEvent(ResultInvalid)
		p.logger.Error("failed to parse transcript event", "subject", subject, "error", err)
		return
	}
	if _, err := p.Ingest(context.Background(), evt); err != nil {
		p.logger.Warn("transcript event dropped",
			"subject", subject, "session_id", evt.SessionID, "error", err)
	}
}

// Ingest applies one event. Partial and blank events are skipped and yield
// a nil result with no error.
func (p *Processor) Ingest(ctx context.Context, evt TranscriptEvent) (*session.SubmitResult, error) {
	if !evt.IsFinal {
		metrics.RecordTranscriptEvent(ResultPartial)
		return nil, nil
	}
	text := strings.TrimSpace(evt.Text)
	if text == "" {
		metrics.RecordTranscriptEvent(ResultEmpty)
		return nil, nil
	}
	if evt.SessionID == "" {
		metrics.RecordTranscriptEvent(ResultInvalid)
		return nil, fmt.Errorf("%w: missing session_id", ErrInvalidEvent)
	}

	s, err := p.sessions.Get(evt.SessionID)
	if err != nil {
		metrics.RecordTranscriptEvent(ResultUnknownSession)
		return nil, fmt.Errorf("ingest transcript: %w", err)
	}

	speaker := conversation.Customer
	if evt.Speaker != "" {
		speaker = conversation.ParseSpeaker(evt.Speaker)
	}
	confidence := session.DefaultConfidence
	if evt.Confidence != nil {
		confidence = *evt.Confidence
	}

	res, err := s.Submit(ctx, speaker, text, confidence)
	switch {
	case errors.Is(err, session.ErrSessionEnded):
		metrics.RecordTranscriptEvent(ResultEnded)
		return nil, fmt.Errorf("ingest transcript: %w", err)
	case err != nil:
		metrics.RecordTranscriptEvent(ResultFailed)
		return nil, fmt.Errorf("ingest transcript: %w", err)
	}

	metrics.RecordTranscriptEvent(ResultConsumed)
	p.logger.Debug("transcript consumed",
		"session_id", evt.SessionID, "speaker", speaker, "suggested", res.Suggestion != nil)
	return &res, nil
}
