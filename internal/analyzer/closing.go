package analyzer

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/generation"
	"github.com/MikeSquared-Agency/closer/internal/keywords"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// Closing steers the call towards a decision.
type Closing struct{}

// ClosingSignals are the inputs to the readiness score.
type ClosingSignals struct {
	BuyingSignals      int    `json:"buying_signals"`
	ObjectionsResolved bool   `json:"objections_resolved"`
	Engagement         string `json:"engagement_level"`
	Authority          string `json:"decision_authority"`
	Urgency            string `json:"urgency_level"`
	RiskFactors        int    `json:"risk_factors"`
}

// ClosingAnalysis is the closing analyzer's reading of the customer.
type ClosingAnalysis struct {
	ClosingSignals
	ReadinessScore float64 `json:"readiness_score"`
	Recommendation string  `json:"recommendation"`
}

var (
	engagementWeight = map[string]float64{"high": 0.2, "medium": 0.1, "low": 0}
	authorityWeight  = map[string]float64{"high": 0.15, "medium": 0.1, "low": 0.05, "unknown": 0}
	urgencyWeight    = map[string]float64{"high": 0.15, "medium": 0.1, "low": 0, "unknown": 0.05}
)

// ReadinessScore weighs the closing signals into [0, 1].
func ReadinessScore(s ClosingSignals) float64 {
	score := min(0.3, float64(s.BuyingSignals)*0.06)
	if s.ObjectionsResolved {
		score += 0.2
	}
	score += engagementWeight[s.Engagement]
	score += authorityWeight[s.Authority]
	score += urgencyWeight[s.Urgency]
	score -= min(0.25, float64(s.RiskFactors)*0.05)
	return clamp01(score)
}

// Recommendation bands a readiness score.
func Recommendation(score float64) string {
	switch {
	case score >= 0.8:
		return "strong_close"
	case score >= 0.6:
		return "trial_close"
	case score >= 0.4:
		return "soft_close"
	default:
		return "more_discovery"
	}
}

var (
	strongBuying = []string{"yes", "interested", "sounds good", "let's do it", "move forward"}
	mediumBuying = []string{"how", "when", "timeline", "process", "next step"}
	weakBuying   = []string{"maybe", "possibly", "considering", "thinking"}

	closingObjections  = []string{"but", "however", "concern", "worry", "issue", "problem"}
	closingResolutions = []string{"understand", "makes sense", "see", "good point", "fair enough"}

	ownAuthority  = []string{"decide", "my decision", "i can", "my call"}
	teamAuthority = []string{"team", "boss", "manager", "approval", "committee"}

	closingHighUrgency   = []string{"urgent", "asap", "immediately", "soon", "deadline", "pressure"}
	closingMediumUrgency = []string{"month", "quarter", "planning", "timeline"}
	closingLowUrgency    = []string{"eventually", "someday", "future", "later"}

	closingRisks = [][]string{
		{"expensive", "cost", "budget", "cheap"},
		{"team", "committee", "approval", "boss"},
		{"comparing", "other", "competitor", "alternative"},
		{"later", "not now", "timing", "busy"},
		{"not sure", "uncertain", "maybe", "think about"},
	}
)

// AnalyzeClosing reads buying signals from the customer's last five
// messages across the whole call.
func AnalyzeClosing(c *Context) ClosingAnalysis {
	customers := conversation.FromCustomer(c.History)
	recentText := conversation.LowerText(conversation.Last(customers, 5))
	fullText := conversation.LowerText(c.History)

	var s ClosingSignals

	buying := 2*keywords.Count(recentText, strongBuying...) +
		keywords.Count(recentText, mediumBuying...) -
		keywords.Count(recentText, weakBuying...)
	buying += min(questionCount(conversation.Last(customers, 3)), 2)
	s.BuyingSignals = max(0, min(5, buying))

	s.ObjectionsResolved = keywords.Count(recentText, closingObjections...) <= 1 &&
		keywords.Count(fullText, closingResolutions...) >= 2

	s.Engagement = closingEngagement(customers)
	s.Authority = closingAuthority(c.Profile.DecisionAuthority, recentText)

	switch {
	case keywords.Any(recentText, closingHighUrgency...):
		s.Urgency = "high"
	case keywords.Any(recentText, closingMediumUrgency...):
		s.Urgency = "medium"
	case keywords.Any(recentText, closingLowUrgency...):
		s.Urgency = "low"
	default:
		s.Urgency = "unknown"
	}

	for _, group := range closingRisks {
		if keywords.Any(recentText, group...) {
			s.RiskFactors++
		}
	}

	score := ReadinessScore(s)
	return ClosingAnalysis{ClosingSignals: s, ReadinessScore: score, Recommendation: Recommendation(score)}
}

func closingEngagement(customers []conversation.Message) string {
	if len(customers) == 0 {
		return "low"
	}
	recent := conversation.Last(customers, 3)
	avg := avgLength(recent)
	q := questionCount(recent)
	switch {
	case avg > 40 && q >= 2:
		return "high"
	case avg > 20 && q >= 1:
		return "medium"
	default:
		return "low"
	}
}

func closingAuthority(declared, recentText string) string {
	if declared != "" {
		d := strings.ToLower(declared)
		if strings.Contains(d, "final") {
			return "high"
		}
		if strings.Contains(d, "involved") {
			return "medium"
		}
	}
	if keywords.Any(recentText, ownAuthority...) {
		return "high"
	}
	if keywords.Any(recentText, teamAuthority...) {
		return "low"
	}
	return "unknown"
}

// SelectTechnique picks a closing technique. text is the customer's
// lowercased recent speech.
func SelectTechnique(a ClosingAnalysis, text string) string {
	switch {
	case a.ReadinessScore >= 0.8:
		return "assumptive"
	case a.Engagement == "high" && a.ReadinessScore >= 0.6:
		return "summary"
	case keywords.Any(text, "risk", "sure", "careful", "safe"):
		return "trial"
	case a.Urgency == "high" || keywords.Any(text, "budget", "quarter", "deadline"):
		return "urgency"
	case keywords.Any(text, "options", "choices", "compare", "different"):
		return "alternative"
	case a.RiskFactors > 2:
		return "question"
	default:
		return "summary"
	}
}

// ClosingStep finds the first step of the closing sequence the call has
// not covered yet.
func ClosingStep(history []conversation.Message) string {
	text := conversation.LowerText(history)
	switch {
	case !keywords.Any(text, "summary", "recap"):
		return "value_summary"
	case !keywords.Any(text, "fit", "right solution"):
		return "fit_confirmation"
	case !strings.Contains(keywords.Tail(text, 200), "?"):
		return "decision_check"
	case !keywords.Any(text, "move forward", "get started"):
		return "close_attempt"
	case !keywords.Any(text, "next step", "timeline"):
		return "next_steps"
	default:
		return "implementation_planning"
	}
}

var closingStepGuidance = map[string]string{
	"value_summary":           "Summarize the key benefits and tie them to the customer's pain points.",
	"fit_confirmation":        "Confirm the solution fits the customer's situation.",
	"decision_check":          "Check where the customer's thinking is and surface remaining concerns.",
	"close_attempt":           "Ask for the decision directly.",
	"next_steps":              "Lay out the concrete steps to move forward.",
	"implementation_planning": "Agree timeline, resources and kickoff.",
}

var closingNextActions = map[string][]string{
	"value_summary":           {"Confirm understanding", "Check agreement", "Address questions"},
	"fit_confirmation":        {"Get explicit confirmation", "Handle any concerns", "Move to decision"},
	"decision_check":          {"Listen for concerns", "Address objections", "Gauge readiness"},
	"close_attempt":           {"Wait for response", "Handle objections", "Confirm commitment"},
	"next_steps":              {"Get calendar out", "Discuss timeline", "Assign responsibilities"},
	"implementation_planning": {"Set milestones", "Plan kickoff", "Exchange contacts"},
}

var closingAlternatives = map[string][]string{
	"assumptive": {
		"When would you like to get started with implementation?",
		"What's the best timeline for rolling this out?",
		"Should we schedule the kickoff for next week?",
	},
	"summary": {
		"Does this solution address your main concerns?",
		"Are you comfortable that this is the right fit?",
		"Do you see how this solves your key challenges?",
	},
	"question": {
		"What questions do you have before we move forward?",
		"What would you need to feel confident about this decision?",
		"Is there anything holding you back from moving ahead?",
	},
	"trial": {
		"How about we start with a pilot program?",
		"Would a trial period help you feel more comfortable?",
		"What if we could minimize the risk with a phased approach?",
	},
}

var defaultClosingAlternatives = []string{
	"Are you ready to move forward with this?",
	"What do you think about taking the next step?",
	"How does this sound to you?",
}

type closingDetail struct {
	analysis  ClosingAnalysis
	technique string
	step      string
}

func (*Closing) sealed() {}

func (*Closing) Stage() stage.Stage { return stage.Closing }

func (*Closing) Analyze(c *Context) Plan {
	a := AnalyzeClosing(c)
	technique := SelectTechnique(a, customerText(c.Recent))
	step := ClosingStep(c.History)

	analysis := map[string]any{
		"buying_signals":      a.BuyingSignals,
		"objections_resolved": a.ObjectionsResolved,
		"engagement_level":    a.Engagement,
		"decision_authority":  a.Authority,
		"urgency_level":       a.Urgency,
		"risk_factors":        a.RiskFactors,
		"readiness_score":     a.ReadinessScore,
		"recommendation":      a.Recommendation,
	}

	prompt := fmt.Sprintf(closingPrompt,
		technique, step, closingStepGuidance[step],
		a.ReadinessScore, a.Recommendation, toJSON(analysis),
		profileSummary(c.Profile), lastCustomerText(c.Recent))

	return Plan{
		Focus:    technique,
		Analysis: analysis,
		Prompt:   prompt,
		detail:   closingDetail{analysis: a, technique: technique, step: step},
	}
}

func (*Closing) Enhance(raw *generation.Result, c *Context, p Plan) Enhanced {
	d, _ := p.detail.(closingDetail)
	out := fromResult(raw)
	lower := strings.ToLower(out.Text)

	switch {
	case strings.Contains(out.Text, "?") && keywords.Any(lower, "ready", "move forward", "get started"):
		out.Type = "trial_close"
	case keywords.Any(lower, "summary", "recap", "benefits", "value"):
		out.Type = "summary"
	case keywords.Any(lower, "next", "step", "timeline", "implementation"):
		out.Type = "next_steps"
	case keywords.Any(lower, "when", "how", "start"):
		out.Type = "implementation"
	default:
		out.Type = "ask"
	}

	out.Context["technique"] = d.technique
	out.Context["step"] = d.step
	out.Context["urgency"] = urgencyTone(lower)
	out.Context["close_strength"] = closeStrength(lower)
	out.Context["analysis"] = p.Analysis

	actions, ok := closingNextActions[d.step]
	if !ok {
		actions = []string{"Continue toward commitment"}
	}
	out.NextActions = append(out.NextActions, actions...)

	if len(out.Alternatives) == 0 {
		if alts, ok := closingAlternatives[d.technique]; ok {
			out.Alternatives = append([]string(nil), alts...)
		} else {
			out.Alternatives = append([]string(nil), defaultClosingAlternatives...)
		}
	}
	return out
}

func urgencyTone(lower string) string {
	switch {
	case keywords.Any(lower, "today", "now", "immediately", "limited", "deadline"):
		return "high"
	case keywords.Any(lower, "soon", "this week", "this month", "quickly"):
		return "medium"
	default:
		return "low"
	}
}

func closeStrength(lower string) string {
	switch {
	case keywords.Any(lower, "decision", "commit", "sign", "agree", "purchase"):
		return "strong"
	case keywords.Any(lower, "ready", "move forward", "get started", "next step"):
		return "medium"
	case keywords.Any(lower, "thoughts", "questions", "concerns", "make sense"):
		return "soft"
	default:
		return "medium"
	}
}

func (*Closing) Fallback() Enhanced {
	return Enhanced{
		Text:       "Based on everything we've discussed, I believe this solution is a great fit for your needs. Are you ready to move forward?",
		Type:       "trial_close",
		Confidence: 0.6,
		Reasoning:  "Direct but professional closing attempt that summarizes value and asks for decision",
		Alternatives: []string{
			"Does this solution address your main concerns?",
			"What questions do you have before we take the next step?",
		},
		NextActions: []string{
			"Wait for customer response",
			"Address any final concerns",
			"Discuss next steps and timeline",
		},
		Context: map[string]any{
			"technique":      "summary",
			"step":           "close_attempt",
			"urgency":        "medium",
			"close_strength": "medium",
		},
	}
}
