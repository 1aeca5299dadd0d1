// Package conversation holds the per-session records: transcript messages,
// generated suggestions and the context stack of suspension events.
package conversation

import (
	"strings"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// Speaker identifies who said an utterance.
type Speaker string

const (
	Seller   Speaker = "seller"
	Customer Speaker = "customer"
)

// ParseSpeaker maps free-form speaker labels onto the two call roles.
// Anything that is not recognizably the seller is treated as the customer.
func ParseSpeaker(s string) Speaker {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "seller", "salesperson", "agent", "rep":
		return Seller
	default:
		return Customer
	}
}

// Message is one immutable transcript utterance.
type Message struct {
	SessionID  string            `json:"session_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Speaker    Speaker           `json:"speaker"`
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	Stage      stage.Stage       `json:"stage"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Last returns the trailing n messages of history without copying.
func Last(history []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// FromCustomer filters msgs down to customer utterances.
func FromCustomer(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Speaker == Customer {
			out = append(out, m)
		}
	}
	return out
}

// LowerText joins the message texts with a space and lowercases the result.
func LowerText(msgs []Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.Text
	}
	return strings.ToLower(strings.Join(parts, " "))
}
