package analyzer

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/generation"
	"github.com/MikeSquared-Agency/closer/internal/keywords"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// Opening builds rapport and earns permission to move into discovery.
type Opening struct{}

// OpeningPhase places the call inside the opening by how many messages
// have been exchanged. It returns the phase and the suggestion type for it.
func OpeningPhase(historyLen int) (phase, kind string) {
	switch {
	case historyLen == 0:
		return "initial_greeting", "greeting"
	case historyLen <= 3:
		return "rapport_building", "rapport_building"
	case historyLen <= 5:
		return "agenda_setting", "agenda_setting"
	default:
		return "transition_to_discovery", "transition"
	}
}

// RapportLevel averages a per-message rapport score over the recent
// customer messages. Without customer messages it is unknown.
func RapportLevel(recent []conversation.Message) string {
	customers := conversation.FromCustomer(recent)
	if len(customers) == 0 {
		return "unknown"
	}
	total := 0
	for _, m := range customers {
		lower := strings.ToLower(m.Text)
		if keywords.Any(lower, "great", "good", "excellent", "thank you", "appreciate") {
			total += 2
		}
		if keywords.Any(lower, "yes", "sure", "absolutely", "definitely") {
			total++
		}
		if keywords.Any(lower, "i", "we", "our", "my") {
			total++
		}
		if len([]rune(m.Text)) > 20 {
			total++
		}
	}
	avg := float64(total) / float64(len(customers))
	switch {
	case avg >= 3:
		return "high"
	case avg >= 1.5:
		return "medium"
	default:
		return "low"
	}
}

// ReadyForDiscovery reports whether the opening has done its job.
func ReadyForDiscovery(c *Context) bool {
	if len(c.History) < 4 {
		return false
	}
	if r := RapportLevel(c.Recent); r == "medium" || r == "high" {
		return true
	}
	for _, m := range conversation.FromCustomer(c.Recent) {
		if keywords.Any(strings.ToLower(m.Text), "tell me more", "how", "what", "interested", "learn", "understand") {
			return true
		}
	}
	return len(c.History) > 8
}

var openingAlternatives = map[string][]string{
	"greeting": {
		"Good morning! Thank you for taking the time to speak with me today.",
		"Hi there! I'm excited to learn more about your business.",
		"Thank you for joining me today. I hope you're having a great day so far.",
	},
	"rapport_building": {
		"Before we dive in, how has your week been going?",
		"I'd love to hear a bit about what you're working on lately.",
		"What's been keeping you busy in your role recently?",
	},
	"agenda_setting": {
		"I'd like to use our time effectively today. What would make this conversation most valuable for you?",
		"To make sure we cover what's most important to you, what are your main priorities right now?",
		"I have some ideas about how we might help, but I'd love to understand your situation first.",
	},
	"transition": {
		"Now that we've connected, I'd love to understand more about your current challenges.",
		"Let's dive into what brought you to explore a solution like ours.",
		"I'm curious to learn more about your business and what you're hoping to achieve.",
	},
}

type openingDetail struct {
	phase string
	kind  string
}

func (*Opening) sealed() {}

func (*Opening) Stage() stage.Stage { return stage.Opening }

func (*Opening) Analyze(c *Context) Plan {
	phase, kind := OpeningPhase(len(c.History))
	rapport := RapportLevel(c.Recent)
	return Plan{
		Focus: phase,
		Analysis: map[string]any{
			"opening_phase":       phase,
			"rapport_level":       rapport,
			"ready_for_discovery": ReadyForDiscovery(c),
		},
		Prompt: fmt.Sprintf(openingPrompt, phase, rapport,
			profileSummary(c.Profile), lastCustomerText(c.Recent)),
		detail: openingDetail{phase: phase, kind: kind},
	}
}

func (*Opening) Enhance(raw *generation.Result, c *Context, p Plan) Enhanced {
	d, _ := p.detail.(openingDetail)
	out := fromResult(raw)

	out.Type = d.kind
	out.Context["opening_phase"] = d.phase
	if d.kind == "transition" {
		out.NextActions = append(out.NextActions,
			"Begin understanding customer needs",
			"Ask open-ended discovery questions")
	}

	if len(out.Alternatives) == 0 {
		if alts, ok := openingAlternatives[d.kind]; ok {
			out.Alternatives = append([]string(nil), alts...)
		} else {
			out.Alternatives = []string{
				"That's interesting. Could you tell me more?",
				"I'd love to understand that better.",
				"Help me understand your perspective on that.",
			}
		}
	}

	lower := strings.ToLower(out.Text)
	if strings.Contains(lower, "greeting") || strings.Contains(lower, "hello") {
		out.Context["conversation_tone"] = "professional"
	}
	return out
}

func (*Opening) Fallback() Enhanced {
	return Enhanced{
		Text:       "Thank you for taking the time to speak with me today. I'm looking forward to learning more about your business and how we might be able to help.",
		Type:       "greeting",
		Confidence: 0.6,
		Reasoning:  "Professional, warm greeting that sets positive tone",
		Alternatives: []string{
			"Good morning! I appreciate you joining me today.",
			"Thank you for your time today. I'm excited to hear about your business.",
		},
		NextActions: []string{
			"Build rapport with the customer",
			"Ask about their current situation",
			"Set expectations for the conversation",
		},
		Context: map[string]any{
			"opening_phase":     "initial_greeting",
			"conversation_tone": "professional",
			"rapport_level":     "low",
		},
	}
}
