package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MikeSquared-Agency/closer/internal/analytics"
	"github.com/MikeSquared-Agency/closer/internal/profile"
	"github.com/MikeSquared-Agency/closer/internal/session"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSummary() analytics.Summary {
	return analytics.Summary{
		SessionID:        "sess-42",
		UserID:           "rep-7",
		DurationMinutes:  27.6,
		MessageCount:     18,
		Profile:          profile.Profile{Company: "Acme", PainPoints: []string{"Reporting takes two days"}},
		StagesCovered:    []stage.Stage{stage.Opening, stage.Discovery, stage.Pitch},
		FinalStage:       stage.Pitch,
		KeyTopics:        []string{"integration", "roi"},
		ObjectionsRaised: []string{"The price seems high"},
		Outcome:          analytics.OutcomeFollowUpNeeded,
		NextSteps:        []string{"Send proposal", "Book technical call"},
		Performance:      analytics.Performance{FlowScore: 0.81, CustomerEngagement: 0.5},
	}
}

func TestFormatDebrief(t *testing.T) {
	msg := formatDebrief(sampleSummary())

	checks := []string{
		"Acme",
		"28 min",
		"18 messages",
		"rep-7",
		"opening > discovery > pitch",
		"ended in pitch",
		"0.81",
		"integration, roi",
		"Pain points found: 1",
		"Reporting takes two days",
		"Objections raised: 1",
		"The price seems high",
	}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q", check)
		}
	}
}

func TestFormatDebrief_Empty(t *testing.T) {
	msg := formatDebrief(analytics.Summary{SessionID: "s", FinalStage: stage.Opening})

	if !strings.Contains(msg, "unknown company") {
		t.Errorf("expected unknown company placeholder, got %q", msg)
	}
	if !strings.Contains(msg, "No topics, pain points or objections") {
		t.Errorf("expected empty message, got %q", msg)
	}
}

type slackStub struct {
	mu       sync.Mutex
	payloads []map[string]any
	fail     string
}

func (s *slackStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		s.mu.Lock()
		s.payloads = append(s.payloads, payload)
		s.mu.Unlock()

		if s.fail != "" {
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": s.fail})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "1234567890.123456"})
	}
}

func TestPostDebrief_Success(t *testing.T) {
	stub := &slackStub{}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	ts, err := p.PostDebrief(context.Background(), sampleSummary())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != "1234567890.123456" {
		t.Errorf("expected ts 1234567890.123456, got %q", ts)
	}
	if len(stub.payloads) != 2 {
		t.Fatalf("expected summary and thread reply, got %d posts", len(stub.payloads))
	}
	if stub.payloads[0]["channel"] != "C123" {
		t.Errorf("expected channel C123, got %v", stub.payloads[0]["channel"])
	}
	if stub.payloads[1]["thread_ts"] != ts {
		t.Errorf("expected reply in thread %s, got %v", ts, stub.payloads[1]["thread_ts"])
	}
	if text, _ := stub.payloads[1]["text"].(string); !strings.Contains(text, "Book technical call") {
		t.Errorf("expected next steps in reply, got %q", text)
	}
}

func TestPostDebrief_SlackError(t *testing.T) {
	stub := &slackStub{fail: "channel_not_found"}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	if _, err := p.PostDebrief(context.Background(), sampleSummary()); err == nil {
		t.Fatal("expected error for slack error response")
	}
	if len(stub.payloads) != 1 {
		t.Errorf("expected no thread reply after failure, got %d posts", len(stub.payloads))
	}
}

func TestNotify_OnlySessionEnded(t *testing.T) {
	stub := &slackStub{}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	p.Notify(context.Background(), session.Event{Kind: session.EventSuggestionGenerated, SessionID: "sess-42"})
	p.Notify(context.Background(), session.Event{Kind: session.EventSessionEnded, SessionID: "sess-42", Payload: "not a summary"})
	p.Notify(context.Background(), session.Event{Kind: session.EventSessionEnded, SessionID: "sess-42", Payload: sampleSummary()})
	p.Wait()

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.payloads) != 2 {
		t.Errorf("expected one debrief with its thread reply, got %d posts", len(stub.payloads))
	}
}
