package processor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/session"
	"github.com/MikeSquared-Agency/closer/internal/suggestion"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry() *session.Registry {
	return session.NewRegistry(session.Deps{
		Pipeline: suggestion.NewPipeline(nil, time.Second, discardLogger()),
		Logger:   discardLogger(),
	})
}

func ptr(f float64) *float64 { return &f }

func TestIngest(t *testing.T) {
	reg := newRegistry()
	defer reg.Close(context.Background())
	s := reg.Start(context.Background(), "")
	p := New(reg, discardLogger())

	tests := []struct {
		name       string
		evt        TranscriptEvent
		wantNil    bool
		wantErr    error
		speaker    conversation.Speaker
		confidence float64
	}{
		{
			name:    "partial skipped",
			evt:     TranscriptEvent{SessionID: s.ID(), Text: "we are look", IsFinal: false},
			wantNil: true,
		},
		{
			name:    "blank skipped",
			evt:     TranscriptEvent{SessionID: s.ID(), Text: "   ", IsFinal: true},
			wantNil: true,
		},
		{
			name:    "missing session",
			evt:     TranscriptEvent{Text: "hello", IsFinal: true},
			wantNil: true,
			wantErr: ErrInvalidEvent,
		},
		{
			name:    "unknown session",
			evt:     TranscriptEvent{SessionID: "nope", Text: "hello", IsFinal: true},
			wantNil: true,
			wantErr: session.ErrSessionNotFound,
		},
		{
			name:       "defaults",
			evt:        TranscriptEvent{SessionID: s.ID(), Text: "Hi, who is this?", IsFinal: true},
			speaker:    conversation.Customer,
			confidence: session.DefaultConfidence,
		},
		{
			name:       "seller with confidence",
			evt:        TranscriptEvent{SessionID: s.ID(), Text: "Thanks for joining.", Speaker: "agent", Confidence: ptr(0.72), IsFinal: true},
			speaker:    conversation.Seller,
			confidence: 0.72,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Ingest(context.Background(), tt.evt)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if res != nil {
					t.Errorf("result = %+v, want nil", res)
				}
				return
			}
			if res.Message.Speaker != tt.speaker {
				t.Errorf("Speaker = %s, want %s", res.Message.Speaker, tt.speaker)
			}
			if res.Message.Confidence != tt.confidence {
				t.Errorf("Confidence = %v, want %v", res.Message.Confidence, tt.confidence)
			}
			if (tt.speaker == conversation.Customer) != (res.Suggestion != nil) {
				t.Errorf("suggestion presence = %v for %s", res.Suggestion != nil, tt.speaker)
			}
		})
	}

	if got := s.Status().MessageCount; got != 2 {
		t.Errorf("MessageCount = %d, want 2", got)
	}
}

func TestIngestEndedSession(t *testing.T) {
	reg := newRegistry()
	s := reg.Start(context.Background(), "")
	p := New(staleLookup{s}, discardLogger())
	s.End(context.Background())

	_, err := p.Ingest(context.Background(), TranscriptEvent{SessionID: s.ID(), Text: "still there?", IsFinal: true})
	if !errors.Is(err, session.ErrSessionEnded) {
		t.Errorf("err = %v, want ErrSessionEnded", err)
	}
}

// staleLookup keeps returning a session after it ended, as a caller holding
// an old reference would.
type staleLookup struct{ s *session.Session }

func (l staleLookup) Get(string) (*session.Session, error) { return l.s, nil }

func TestHandleTranscript(t *testing.T) {
	reg := newRegistry()
	defer reg.Close(context.Background())
	s := reg.Start(context.Background(), "")
	p := New(reg, discardLogger())

	data, _ := json.Marshal(TranscriptEvent{SessionID: s.ID(), Text: "We struggle with churn.", IsFinal: true})
	p.HandleTranscript("closer.transcript.event", data)
	p.HandleTranscript("closer.transcript.event", []byte("{not json"))

	st := s.Status()
	if st.MessageCount != 1 {
		t.Fatalf("MessageCount = %d, want 1", st.MessageCount)
	}
	if len(st.Profile.PainPoints) != 1 {
		t.Errorf("PainPoints = %v, want one", st.Profile.PainPoints)
	}
}
