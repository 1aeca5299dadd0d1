//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/session"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_PublisherRoundTrip(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), discardLogger())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan session.Event, 1)
	err = client.Subscribe("closer.session.>", func(subject string, data []byte) {
		var e session.Event
		if err := json.Unmarshal(data, &e); err == nil {
			received <- e
		}
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	NewPublisher(client, discardLogger()).Notify(ctx, session.Event{
		Kind:      session.EventSessionStarted,
		SessionID: "integration-sess",
		At:        time.Now().UTC(),
	})

	select {
	case e := <-received:
		if e.SessionID != "integration-sess" || e.Kind != session.EventSessionStarted {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
