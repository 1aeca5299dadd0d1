// Package interrupt classifies out-of-turn utterances and decides whether
// the main conversation has to pause for them.
package interrupt

import (
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/keywords"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// Type is the kind of interruption.
type Type string

const (
	Question      Type = "question"
	Objection     Type = "objection"
	Tangent       Type = "tangent"
	Clarification Type = "clarification"
	Urgency       Type = "urgency"
	Emotional     Type = "emotional"
	Information   Type = "information"
	Positive      Type = "positive"
	General       Type = "general"
)

// Priority ranks how soon an interruption must be handled.
type Priority string

const (
	Critical Priority = "critical"
	High     Priority = "high"
	Medium   Priority = "medium"
	Low      Priority = "low"
)

// Level is a coarse high/medium/low rating.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

type typeRule struct {
	typ        Type
	priority   Priority
	indicators []string
}

// Checked in order; ties keep the earlier type.
var typeRules = []typeRule{
	{Question, High, []string{"?", "how", "what", "when", "where", "why", "can you"}},
	{Objection, High, []string{"but", "however", "concern", "worry", "issue", "problem"}},
	{Tangent, Medium, []string{"by the way", "also", "speaking of", "reminds me"}},
	{Clarification, High, []string{"wait", "hold on", "confused", "don't understand"}},
	{Urgency, Critical, []string{"urgent", "important", "immediately", "asap", "emergency"}},
	{Emotional, Critical, []string{"frustrated", "angry", "upset", "disappointed"}},
	{Information, Low, []string{"just to let you know", "forgot to mention", "by the way"}},
	{Positive, Medium, []string{"great", "excellent", "love", "perfect", "amazing"}},
}

type emotionRule struct {
	state      string
	indicators []string
}

var emotionRules = []emotionRule{
	{"frustrated", []string{"frustrated", "annoying", "difficult", "hate"}},
	{"excited", []string{"excited", "great", "love", "amazing", "fantastic"}},
	{"concerned", []string{"worried", "concerned", "nervous", "unsure"}},
	{"confused", []string{"confused", "don't understand", "unclear", "lost"}},
	{"impatient", []string{"hurry", "quickly", "fast", "urgent", "time"}},
	{"skeptical", []string{"really", "sure", "doubt", "believe"}},
}

var stageTopics = map[stage.Stage][]string{
	stage.Opening:   {"name", "company", "role", "background"},
	stage.Discovery: {"problem", "challenge", "need", "current", "process"},
	stage.Pitch:     {"solution", "feature", "benefit", "value", "capability"},
	stage.Objection: {"concern", "worry", "but", "however", "issue"},
	stage.Closing:   {"decision", "timeline", "next step", "start", "implement"},
}

// Classification describes one interruption.
type Classification struct {
	Type           Type     `json:"interrupt_type"`
	Priority       Priority `json:"priority"`
	Confidence     float64  `json:"confidence"`
	EmotionalState string   `json:"emotional_state"`
	FlowImpact     Level    `json:"flow_impact"`
	TopicRelevance Level    `json:"topic_relevance"`
}

// Classify scores text against each type's indicator set and derives the
// remaining attributes from the winner. The speaker does not influence the
// result today; it is accepted so callers pass the full utterance context.
func Classify(text, speaker string, current stage.Stage) Classification {
	lower := strings.ToLower(text)

	typ, priority, best := General, Medium, 0
	for _, rule := range typeRules {
		if n := keywords.Count(lower, rule.indicators...); n > best {
			typ, priority, best = rule.typ, rule.priority, n
		}
	}

	confidence := 0.5 + 0.1*float64(best)
	if confidence > 0.9 {
		confidence = 0.9
	}

	return Classification{
		Type:           typ,
		Priority:       priority,
		Confidence:     confidence,
		EmotionalState: EmotionalState(lower),
		FlowImpact:     flowImpact(typ, text),
		TopicRelevance: topicRelevance(lower, current),
	}
}

// EmotionalState returns the first emotion whose keywords appear in the
// lowercased text, or neutral.
func EmotionalState(lower string) string {
	for _, rule := range emotionRules {
		if keywords.Any(lower, rule.indicators...) {
			return rule.state
		}
	}
	return "neutral"
}

func flowImpact(typ Type, text string) Level {
	switch typ {
	case Urgency, Emotional, Objection, Clarification:
		return LevelHigh
	case Question:
		if len([]rune(text)) > 50 || strings.Contains(text, "?") {
			return LevelMedium
		}
		return LevelLow
	case Positive:
		return LevelLow
	default:
		return LevelMedium
	}
}

func topicRelevance(lower string, current stage.Stage) Level {
	n := keywords.Count(lower, stageTopics[current]...)
	switch {
	case n >= 2:
		return LevelHigh
	case n == 1:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ShouldPause reports whether the main conversation must stop while the
// interruption is dealt with.
func ShouldPause(c Classification) bool {
	if c.Priority == Critical || c.Priority == High {
		return true
	}
	if c.FlowImpact == LevelHigh {
		return true
	}
	switch c.Type {
	case Urgency, Emotional, Clarification:
		return true
	}
	return false
}
