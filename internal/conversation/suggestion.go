package conversation

import (
	"time"

	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// Suggestion is the seller-facing output of one generation cycle.
type Suggestion struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"session_id"`
	Text         string         `json:"suggestion"`
	Type         string         `json:"type"`
	Confidence   float64        `json:"confidence"`
	Stage        stage.Stage    `json:"stage"`
	Reasoning    string         `json:"reasoning,omitempty"`
	Context      map[string]any `json:"context"`
	Alternatives []string       `json:"alternatives"`
	NextActions  []string       `json:"next_actions"`
	Fallback     bool           `json:"fallback"`
	CreatedAt    time.Time      `json:"created_at"`
}
