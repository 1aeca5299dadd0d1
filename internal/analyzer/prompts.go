package analyzer

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/profile"
)

const openingPrompt = `You are coaching a salesperson through the opening of a live sales call.
Build rapport, set an agenda, and earn the right to ask about the customer's business.

Opening phase: %s
Rapport level: %s
Customer profile:
%s
Last customer message: %q

Suggest one or two natural sentences the seller can say right now. Keep it warm and professional.`

const discoveryPrompt = `You are coaching a salesperson through discovery on a live sales call.
Uncover pain, its impact, and how the customer buys.

Focus area: %s (%s)
Qualification: %s
Information gaps: %s
Customer profile:
%s
Last customer message: %q

Suggest a single open question that digs into the focus area. Do not pitch.`

const pitchPrompt = `You are coaching a salesperson presenting a solution on a live sales call.
Tie every claim back to a pain point the customer has already named.

Framework: %s
Pitch element to cover next: %s (%s)
Customer analysis: %s
Customer profile:
%s
Conversation context: %s
Last customer message: %q

Suggest one or two sentences that deliver the pitch element in the customer's own terms.`

const objectionPrompt = `You are coaching a salesperson handling an objection on a live sales call.
Acknowledge, clarify, then answer with evidence. Never argue.

Objection type: %s
Framework: %s
Current step: %s
Intensity: %s, emotional state: %s, risk: %s
Customer profile:
%s
Conversation context: %s
Customer objection: %q

Suggest one or two sentences for the current step.`

const closingPrompt = `You are coaching a salesperson closing a live sales call.
The case has been made; guide the customer to a decision and then stop talking.

Closing technique: %s
Closing step: %s (%s)
Readiness: %.2f (%s)
Closing analysis: %s
Customer profile:
%s
Last customer message: %q

Suggest one or two confident sentences for this step.`

const interruptPrompt = `You are coaching a salesperson who was just interrupted on a live sales call.
Respond to the interruption, then bring the conversation back on track.

Interrupted stage: %s
Interruption: %q
Type: %s, priority: %s, emotional state: %s
Recovery strategy: %s, transition: %s
Recent context: %s

Suggest one or two sentences that handle the interruption and bridge back.`

func profileSummary(p profile.Profile) string {
	var parts []string
	if p.Name != "" {
		parts = append(parts, "Name: "+p.Name)
	}
	if p.Company != "" {
		parts = append(parts, "Company: "+p.Company)
	}
	if p.Role != "" {
		parts = append(parts, "Role: "+p.Role)
	}
	if len(p.PainPoints) > 0 {
		parts = append(parts, "Pain points: "+strings.Join(first(p.PainPoints, 3), "; "))
	}
	if len(p.Interests) > 0 {
		parts = append(parts, "Interests: "+strings.Join(first(p.Interests, 3), "; "))
	}
	if p.BudgetRange != "" {
		parts = append(parts, "Budget: "+p.BudgetRange)
	}
	if p.Timeline != "" {
		parts = append(parts, "Timeline: "+p.Timeline)
	}
	if p.DecisionAuthority != "" {
		parts = append(parts, "Decision role: "+p.DecisionAuthority)
	}
	if len(parts) == 0 {
		return "Limited customer information"
	}
	return strings.Join(parts, "\n")
}

func transcript(msgs []conversation.Message) string {
	if len(msgs) == 0 {
		return "No recent history"
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = fmt.Sprintf("%s: %s", strings.ToUpper(string(m.Speaker)), m.Text)
	}
	return strings.Join(lines, " | ")
}

// stackSummary renders context stack entries oldest first.
func stackSummary(entries []conversation.ContextEntry) string {
	if len(entries) == 0 {
		return "No prior context"
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		switch e.Kind {
		case conversation.KindStageTransition:
			lines[i] = fmt.Sprintf("moved %s -> %s", e.From, e.To)
		case conversation.KindInterrupt:
			lines[i] = fmt.Sprintf("%s interrupted during %s: %q", e.Speaker, e.Stage, e.Text)
		default:
			lines[i] = string(e.Kind)
		}
	}
	return strings.Join(lines, " | ")
}
