package analyzer

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/generation"
	"github.com/MikeSquared-Agency/closer/internal/interrupt"
	"github.com/MikeSquared-Agency/closer/internal/keywords"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// Interruption handles out-of-turn utterances. It answers immediately
// from templates and, when asked for a suggestion, drafts a bridge back
// to the interrupted stage.
type Interruption struct{}

var interruptStrategies = map[interrupt.Type]string{
	interrupt.Question:      "Answer directly then redirect",
	interrupt.Objection:     "Acknowledge, address, then continue",
	interrupt.Tangent:       "Acknowledge and redirect back",
	interrupt.Clarification: "Stop and clarify immediately",
	interrupt.Urgency:       "Address urgency then assess impact",
	interrupt.Emotional:     "Acknowledge emotion and empathize",
	interrupt.Information:   "Note information and continue",
	interrupt.Positive:      "Acknowledge positively and build momentum",
	interrupt.General:       "Acknowledge and continue",
}

// RecoveryPlan says how to get the main conversation back on track.
type RecoveryPlan struct {
	Approach           string   `json:"approach"`
	Timing             string   `json:"timing"`
	TransitionMethod   string   `json:"transition_method"`
	ContentAdjustments []string `json:"content_adjustments"`
}

// ContextUpdates records what the interruption revealed.
type ContextUpdates struct {
	InterruptLogged    bool     `json:"interrupt_logged"`
	InterruptType      string   `json:"interrupt_type"`
	CustomerState      string   `json:"customer_state"`
	FlowAdjustments    []string `json:"flow_adjustments"`
	NewConcerns        []string `json:"new_concerns,omitempty"`
	InformationGaps    []string `json:"information_gaps,omitempty"`
	PositiveIndicators []string `json:"positive_indicators,omitempty"`
}

// InterruptResponse is the immediate handling of one interruption.
type InterruptResponse struct {
	ImmediateResponse string                   `json:"immediate_response"`
	Classification    interrupt.Classification `json:"classification"`
	ShouldPause       bool                     `json:"should_pause_main_conversation"`
	RecoveryPlan      RecoveryPlan             `json:"recovery_plan"`
	ContextUpdates    ContextUpdates           `json:"context_updates"`
	Confidence        float64                  `json:"confidence"`
	// Objection is set when the interruption is an objection.
	Objection *ObjectionInterrupt `json:"objection,omitempty"`
}

// ImmediateResponse picks the template reply for a classified interruption.
func ImmediateResponse(c interrupt.Classification) string {
	switch c.Type {
	case interrupt.Urgency:
		return "I understand this is urgent. Let me address that right away."
	case interrupt.Emotional:
		return fmt.Sprintf("I can hear that you're %s. Let me make sure I understand your concern.", c.EmotionalState)
	case interrupt.Question:
		return "That's a great question. Let me answer that for you."
	case interrupt.Objection:
		return "I appreciate you bringing that up. Let me address that concern."
	case interrupt.Clarification:
		return "Let me clarify that for you right away."
	case interrupt.Tangent:
		return "That's interesting. Let me make a note of that and we can circle back."
	case interrupt.Positive:
		return "I'm glad to hear that! That's exactly what we're aiming for."
	default:
		return "I hear you. Let me address that."
	}
}

// PlanRecovery decides how to resume the interrupted stage.
func PlanRecovery(c interrupt.Classification, current stage.Stage) RecoveryPlan {
	plan := RecoveryPlan{Approach: "direct", Timing: "immediate", TransitionMethod: "bridge"}

	switch c.FlowImpact {
	case interrupt.LevelHigh:
		switch c.Type {
		case interrupt.Objection, interrupt.Emotional, interrupt.Urgency:
			plan = RecoveryPlan{
				Approach:           "address_fully",
				Timing:             "after_resolution",
				TransitionMethod:   "summary_bridge",
				ContentAdjustments: []string{"acknowledge_interrupt", "validate_concern", "resolve_before_continuing"},
			}
		case interrupt.Tangent:
			plan = RecoveryPlan{
				Approach:           "acknowledge_redirect",
				Timing:             "immediate",
				TransitionMethod:   "polite_redirect",
				ContentAdjustments: []string{"note_for_later", "redirect_to_main_topic"},
			}
		}
	case interrupt.LevelMedium:
		plan = RecoveryPlan{
			Approach:           "quick_handle",
			Timing:             "immediate",
			TransitionMethod:   "smooth_transition",
			ContentAdjustments: []string{"brief_acknowledgment", "continue_main_flow"},
		}
	default:
		plan = RecoveryPlan{
			Approach:           "minimal_acknowledgment",
			Timing:             "immediate",
			TransitionMethod:   "continue_seamlessly",
			ContentAdjustments: []string{"brief_note", "maintain_momentum"},
		}
	}

	switch current {
	case stage.Closing:
		plan.ContentAdjustments = append(plan.ContentAdjustments, "maintain_closing_momentum")
	case stage.Discovery:
		plan.ContentAdjustments = append(plan.ContentAdjustments, "incorporate_into_discovery")
	case stage.Pitch:
		plan.ContentAdjustments = append(plan.ContentAdjustments, "relate_to_value_prop")
	}
	if plan.ContentAdjustments == nil {
		plan.ContentAdjustments = []string{}
	}
	return plan
}

// UpdatesFor records what an interruption tells us about the customer.
func UpdatesFor(c interrupt.Classification, text string) ContextUpdates {
	u := ContextUpdates{
		InterruptLogged: true,
		InterruptType:   string(c.Type),
		CustomerState:   c.EmotionalState,
		FlowAdjustments: []string{},
	}
	excerpt := []string{keywords.Truncate(text, 100)}
	switch c.Type {
	case interrupt.Objection:
		u.NewConcerns = excerpt
	case interrupt.Question:
		u.InformationGaps = excerpt
	case interrupt.Positive:
		u.PositiveIndicators = excerpt
	}
	if c.Priority == interrupt.Critical {
		u.FlowAdjustments = append(u.FlowAdjustments, "pause_main_conversation")
	} else if c.TopicRelevance == interrupt.LevelLow {
		u.FlowAdjustments = append(u.FlowAdjustments, "note_for_later_discussion")
	}
	return u
}

// Respond builds the immediate response to a classified interruption. It
// never calls the generation backend.
func (*Interruption) Respond(c *Context, cls interrupt.Classification) InterruptResponse {
	var text string
	if c.Interrupt != nil {
		text = c.Interrupt.Text
	}
	resp := InterruptResponse{
		ImmediateResponse: ImmediateResponse(cls),
		Classification:    cls,
		ShouldPause:       interrupt.ShouldPause(cls),
		RecoveryPlan:      PlanRecovery(cls, c.Stage),
		ContextUpdates:    UpdatesFor(cls, text),
		Confidence:        cls.Confidence,
	}
	if cls.Type == interrupt.Objection {
		o := HandleObjectionInterrupt(text)
		resp.Objection = &o
	}
	return resp
}

// FallbackResponse is the immediate response used when nothing better is
// available.
func FallbackResponse() InterruptResponse {
	return InterruptResponse{
		ImmediateResponse: "I understand. Let me address that for you.",
		Classification: interrupt.Classification{
			Type:           interrupt.General,
			Priority:       interrupt.Medium,
			Confidence:     0.5,
			EmotionalState: "neutral",
			FlowImpact:     interrupt.LevelMedium,
			TopicRelevance: interrupt.LevelLow,
		},
		RecoveryPlan: RecoveryPlan{
			Approach:           "acknowledge_and_continue",
			Timing:             "immediate",
			TransitionMethod:   "bridge",
			ContentAdjustments: []string{"acknowledge_input", "continue_conversation"},
		},
		ContextUpdates: ContextUpdates{
			InterruptLogged: true,
			CustomerState:   "neutral",
			FlowAdjustments: []string{},
		},
		Confidence: 0.5,
	}
}

func (*Interruption) sealed() {}

func (*Interruption) Stage() stage.Stage { return stage.Interrupt }

func (*Interruption) Analyze(c *Context) Plan {
	text := lastCustomerText(c.Recent)
	if c.Interrupt != nil {
		text = c.Interrupt.Text
	}
	cls := interrupt.Classify(text, "customer", c.Stage)
	plan := PlanRecovery(cls, c.Stage)

	prompt := fmt.Sprintf(interruptPrompt,
		c.Stage, text, cls.Type, cls.Priority, cls.EmotionalState,
		interruptStrategies[cls.Type], plan.TransitionMethod, transcript(c.Recent))

	return Plan{
		Focus: string(cls.Type),
		Analysis: map[string]any{
			"interrupt_type":  cls.Type,
			"priority":        cls.Priority,
			"emotional_state": cls.EmotionalState,
			"flow_impact":     cls.FlowImpact,
			"topic_relevance": cls.TopicRelevance,
			"recovery_plan":   plan,
		},
		Prompt: prompt,
	}
}

func (*Interruption) Enhance(raw *generation.Result, c *Context, p Plan) Enhanced {
	out := fromResult(raw)
	lower := strings.ToLower(out.Text)
	switch {
	case keywords.Any(lower, "recap", "summary", "discussed"):
		out.Type = "summarize"
	case keywords.Any(lower, "back to", "return to", "continue"):
		out.Type = "redirect"
	case keywords.Any(lower, "understand", "appreciate", "hear"):
		out.Type = "acknowledge"
	default:
		out.Type = "bridge"
	}
	out.Context["recovery_method"] = out.Type
	out.Context["stage_continuation"] = c.Stage
	out.NextActions = append(out.NextActions,
		"Monitor for additional interruptions",
		"Ensure customer feels heard",
		"Maintain conversation momentum")
	return out
}

func (*Interruption) Fallback() Enhanced {
	return Enhanced{
		Text:       "I understand. Let me address that for you.",
		Type:       "acknowledgment",
		Confidence: 0.5,
		Reasoning:  "Generic acknowledgment while the interruption is handled",
		Alternatives: []string{
			"I hear you. Let me respond to that.",
		},
		NextActions: []string{
			"Acknowledge the interruption",
			"Continue the conversation",
		},
		Context: map[string]any{
			"recovery_method": "acknowledge_and_continue",
		},
	}
}
