// Package scoring decides how complete the current sales stage is and
// whether the call should move on.
package scoring

import (
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/keywords"
	"github.com/MikeSquared-Agency/closer/internal/profile"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// AdvanceThreshold is the completion score at which a stage is considered done.
const AdvanceThreshold = 0.7

// Window is the number of trailing messages the scorer looks at.
const Window = 5

var (
	greetingWords   = []string{"hello", "hi"}
	valueWords      = []string{"value", "benefit", "solution", "help", "improve"}
	objectionWords  = []string{"concern", "worry", "but", "however", "issue"}
	resolutionWords = []string{"understand", "address", "solution", "resolve"}
	commitmentWords = []string{"yes", "agree", "proceed", "forward", "start"}
	pivotWords      = []string{"concern", "but"}
)

// CompletionScore rates how far the call has got through stage s, given the
// recent messages and what is known about the customer. The result is
// always within [0, 1].
func CompletionScore(s stage.Stage, recent []conversation.Message, p profile.Profile) float64 {
	customers := conversation.FromCustomer(recent)

	switch s {
	case stage.Opening:
		greeted := false
		for _, m := range recent {
			if keywords.Any(strings.ToLower(m.Text), greetingWords...) {
				greeted = true
				break
			}
		}
		if greeted && len(customers) >= 2 {
			return 0.8
		}
		return 0.3

	case stage.Discovery:
		painScore := float64(len(p.PainPoints)) * 0.3
		if painScore > 1.0 {
			painScore = 1.0
		}
		qualified := 0.0
		if p.BudgetRange != "" || p.Timeline != "" {
			qualified = 0.5
		}
		return clamp((painScore + qualified) / 2)

	case stage.Pitch:
		if keywords.Any(conversation.LowerText(recent), valueWords...) && countQuestions(customers) >= 1 {
			return 0.7
		}
		return 0.4

	case stage.Objection:
		text := conversation.LowerText(recent)
		if keywords.Any(text, objectionWords...) && keywords.Any(text, resolutionWords...) {
			return 0.8
		}
		return 0.3

	case stage.Closing:
		if keywords.Any(conversation.LowerText(customers), commitmentWords...) {
			return 0.9
		}
		return 0.2

	default:
		return 0.5
	}
}

func countQuestions(msgs []conversation.Message) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m.Text, "?") {
			n++
		}
	}
	return n
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
