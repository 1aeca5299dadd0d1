package scoring

import (
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/keywords"
	"github.com/MikeSquared-Agency/closer/internal/profile"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// Decision is the outcome of checking whether to leave the current stage.
type Decision struct {
	ShouldAdvance bool        `json:"should_advance"`
	Next          stage.Stage `json:"next_stage,omitempty"`
	Score         float64     `json:"completion_score"`
}

// Decide scores the current stage over the last Window messages of history
// and, when the score clears AdvanceThreshold, picks exactly one legal next
// stage. Discovery prefers pitch once two pain points are known and pitch
// prefers objection when the customer has voiced a concern.
func Decide(current stage.Stage, history []conversation.Message, p profile.Profile) Decision {
	recent := conversation.Last(history, Window)
	score := CompletionScore(current, recent, p)

	d := Decision{Score: score}
	if score < AdvanceThreshold {
		return d
	}

	next := stage.ValidTransitions(current)
	if len(next) == 0 {
		return d
	}

	target := next[0]
	switch current {
	case stage.Discovery:
		if len(p.PainPoints) >= 2 {
			target = stage.Pitch
		}
	case stage.Pitch:
		for _, m := range conversation.FromCustomer(recent) {
			if keywords.Any(strings.ToLower(m.Text), pivotWords...) {
				target = stage.Objection
				break
			}
		}
	}

	d.ShouldAdvance = true
	d.Next = target
	return d
}
