package analyzer

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/generation"
	"github.com/MikeSquared-Agency/closer/internal/keywords"
	"github.com/MikeSquared-Agency/closer/internal/profile"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// Pitch ties the solution to the pain the customer has described.
type Pitch struct{}

// PitchAnalysis profiles the customer for the pitch.
type PitchAnalysis struct {
	PrimaryPainPoints    []string `json:"primary_pain_points"`
	Interests            []string `json:"interests"`
	Urgency              string   `json:"urgency_level"`
	BudgetSignals        string   `json:"budget_signals"`
	DecisionComplexity   string   `json:"decision_complexity"`
	CompetitiveSituation string   `json:"competitive_situation"`
	Sophistication       string   `json:"customer_sophistication"`
	Engagement           string   `json:"engagement_level"`
	ObjectionLikelihood  string   `json:"objection_likelihood"`
}

var valueFrameworks = map[string]string{
	"pain_relief":           "Problem, then solution, then benefit",
	"gain_creation":         "Current state, then improved state, then value created",
	"roi_focused":           "Investment, then returns, then timeline",
	"competitive_advantage": "Challenge, then our advantage, then the customer's win",
}

var pitchElements = map[string]string{
	"problem_confirmation": "Confirm understanding of their specific challenge",
	"solution_overview":    "High-level solution explanation",
	"feature_benefit":      "Specific features tied to their needs",
	"proof_points":         "Evidence, case studies, testimonials",
	"roi_demonstration":    "Financial impact and returns",
	"risk_mitigation":      "Address concerns about implementation",
	"next_steps":           "Clear path forward",
}

type elementRule struct {
	element    string
	indicators []string
}

// risk_mitigation and next_steps have no coverage indicators, so the
// sequence always ends there.
var pitchSequence = []elementRule{
	{"problem_confirmation", []string{"understand", "problem", "challenge"}},
	{"solution_overview", []string{"solution", "approach", "system"}},
	{"feature_benefit", []string{"feature", "capability", "function"}},
	{"proof_points", []string{"case", "example", "client", "customer"}},
	{"roi_demonstration", []string{"save", "roi", "return", "investment"}},
	{"risk_mitigation", nil},
	{"next_steps", nil},
}

var pitchListening = map[string][]string{
	"problem_confirmation": {"Agreement signals", "Additional pain points", "Emotional responses"},
	"solution_overview":    {"Understanding signals", "Interest indicators", "Questions about approach"},
	"feature_benefit":      {"Feature interest", "Benefit comprehension", "Specific use cases"},
	"proof_points":         {"Credibility acceptance", "Similarity recognition", "Reference requests"},
	"roi_demonstration":    {"Financial interest", "ROI questions", "Timeline discussions"},
	"risk_mitigation":      {"Concern reduction", "Confidence building", "Implementation questions"},
	"next_steps":           {"Commitment signals", "Decision timeline", "Process questions"},
}

var pitchAlternatives = map[string][]string{
	"problem_confirmation": {
		"Does this match what you're experiencing?",
		"Is this the challenge you're facing?",
		"Have I understood your situation correctly?",
	},
	"solution_overview": {
		"Here's how we typically address this challenge.",
		"Our approach to solving this is straightforward.",
		"Let me show you how this works.",
	},
	"feature_benefit": {
		"This feature directly addresses the need you described.",
		"What this means for you day to day is less manual work.",
		"Here's the impact this would have on your team.",
	},
	"proof_points": {
		"We helped a company in a similar position get there in one quarter.",
		"Here's an example of how this worked for another client.",
		"Let me share a relevant case study.",
	},
	"roi_demonstration": {
		"Based on what you've shared, here's the potential ROI.",
		"This investment typically pays for itself quickly.",
		"Let's put some numbers on the financial impact.",
	},
}

// AnalyzePitch reads the whole call and the profile.
func AnalyzePitch(c *Context) PitchAnalysis {
	p := c.Profile
	text := conversation.LowerText(c.History)
	customers := conversation.FromCustomer(c.History)

	return PitchAnalysis{
		PrimaryPainPoints:    first(p.PainPoints, 3),
		Interests:            append([]string{}, p.Interests...),
		Urgency:              pitchUrgency(text, p),
		BudgetSignals:        budgetSignals(text, p),
		DecisionComplexity:   decisionComplexity(text, p),
		CompetitiveSituation: competitiveSituation(text),
		Sophistication:       sophistication(text),
		Engagement:           pitchEngagement(customers),
		ObjectionLikelihood:  objectionLikelihood(conversation.LowerText(customers)),
	}
}

func pitchUrgency(text string, p profile.Profile) string {
	switch {
	case keywords.Any(text, "urgent", "asap", "immediately", "soon", "pressure", "deadline"):
		return "high"
	case keywords.Any(text, "this quarter", "next month", "planning", "timeline"):
		return "medium"
	case keywords.Any(text, "eventually", "someday", "thinking about", "considering"):
		return "low"
	}
	if t := strings.ToLower(p.Timeline); t != "" {
		if keywords.Any(t, "urgent", "soon", "asap") {
			return "high"
		}
		if keywords.Any(t, "month", "quarter") {
			return "medium"
		}
	}
	return "unknown"
}

func budgetSignals(text string, p profile.Profile) string {
	switch {
	case keywords.Any(text, "budget", "investment", "spend", "allocate", "approved"):
		return "positive"
	case keywords.Any(text, "expensive", "cost", "cheap", "free", "tight budget"):
		return "price_sensitive"
	case p.BudgetRange != "":
		return "indicated"
	default:
		return "unknown"
	}
}

func decisionComplexity(text string, p profile.Profile) string {
	n := keywords.Count(text, "team", "committee", "approve", "boss", "stakeholders", "board")
	switch {
	case n >= 3:
		return "high"
	case n >= 1:
		return "medium"
	case strings.Contains(strings.ToLower(p.DecisionAuthority), "final"):
		return "low"
	default:
		return "unknown"
	}
}

func competitiveSituation(text string) string {
	if keywords.Any(text, "comparing", "other", "alternative", "versus", "competitor") {
		return "competitive"
	}
	return "unclear"
}

func sophistication(text string) string {
	switch {
	case keywords.Count(text, "roi", "metrics", "kpi", "analytics", "integration", "scalability") >= 2:
		return "high"
	case keywords.Count(text, "simple", "easy", "basic", "straightforward") >= 2:
		return "low"
	default:
		return "medium"
	}
}

func pitchEngagement(customers []conversation.Message) string {
	if len(customers) == 0 {
		return "unknown"
	}
	avg := avgLength(customers)
	q := questionCount(customers)
	switch {
	case avg > 50 && q >= 2:
		return "high"
	case avg > 25 && q >= 1:
		return "medium"
	default:
		return "low"
	}
}

func objectionLikelihood(customerText string) string {
	n := keywords.Count(customerText, "but", "however", "concern", "worry", "issue", "problem")
	switch {
	case n >= 3:
		return "high"
	case n >= 1:
		return "medium"
	default:
		return "low"
	}
}

// SelectFramework picks the value framework for the pitch.
func SelectFramework(a PitchAnalysis) string {
	if a.Urgency == "high" && len(a.PrimaryPainPoints) >= 2 {
		return "pain_relief"
	}
	if a.BudgetSignals == "positive" && a.Sophistication == "high" {
		return "roi_focused"
	}
	if len(a.Interests) >= 2 {
		for _, in := range a.Interests {
			l := strings.ToLower(in)
			if strings.Contains(l, "grow") || strings.Contains(l, "improve") {
				return "gain_creation"
			}
		}
	}
	if a.DecisionComplexity == "high" || a.CompetitiveSituation == "competitive" {
		return "competitive_advantage"
	}
	return "pain_relief"
}

// NextPitchElement returns the first element of the pitch sequence the
// call has not covered.
func NextPitchElement(history []conversation.Message) string {
	text := conversation.LowerText(history)
	for _, rule := range pitchSequence {
		if len(rule.indicators) == 0 || !keywords.Any(text, rule.indicators...) {
			return rule.element
		}
	}
	return "next_steps"
}

// PitchTransition suggests whether the customer's last three messages call
// for objection handling or closing.
func PitchTransition(recent []conversation.Message) (bool, stage.Stage, string) {
	customers := conversation.FromCustomer(recent)
	if len(customers) == 0 {
		return false, "", "No customer response"
	}
	last3 := conversation.Last(customers, 3)
	text := conversation.LowerText(last3)
	if keywords.Any(text, "but", "however", "concern", "worry", "issue", "expensive", "cost") {
		return true, stage.Objection, "Customer expressed concerns or objections"
	}
	if keywords.Any(text, "interested", "sounds good", "how", "when", "next steps", "move forward") {
		return true, stage.Closing, "Customer showing buying interest"
	}
	if len(customers) >= 3 && avgLength(last3) > 30 {
		return false, "", "Customer engaged but unclear on direction"
	}
	return false, "", "Pitch in progress"
}

func valueStrength(lower string) string {
	switch {
	case keywords.Any(lower, "save", "increase", "reduce", "eliminate", "improve", "roi"):
		return "high"
	case keywords.Any(lower, "help", "assist", "support", "enable"):
		return "medium"
	default:
		return "low"
	}
}

type pitchDetail struct {
	framework string
	element   string
}

func (*Pitch) sealed() {}

func (*Pitch) Stage() stage.Stage { return stage.Pitch }

func (*Pitch) Analyze(c *Context) Plan {
	a := AnalyzePitch(c)
	framework := SelectFramework(a)
	element := NextPitchElement(c.History)
	transition, next, reason := PitchTransition(c.Recent)

	analysis := map[string]any{
		"primary_pain_points":     a.PrimaryPainPoints,
		"interests":               a.Interests,
		"urgency_level":           a.Urgency,
		"budget_signals":          a.BudgetSignals,
		"decision_complexity":     a.DecisionComplexity,
		"competitive_situation":   a.CompetitiveSituation,
		"customer_sophistication": a.Sophistication,
		"engagement_level":        a.Engagement,
		"objection_likelihood":    a.ObjectionLikelihood,
	}
	analysis["suggested_transition"] = map[string]any{
		"should_transition": transition,
		"next_stage":        next,
		"reason":            reason,
	}

	prompt := fmt.Sprintf(pitchPrompt,
		fmt.Sprintf("%s (%s)", framework, valueFrameworks[framework]),
		element, pitchElements[element],
		toJSON(a), profileSummary(c.Profile), stackSummary(c.Stack), lastCustomerText(c.Recent))

	return Plan{
		Focus:    element,
		Analysis: analysis,
		Prompt:   prompt,
		detail:   pitchDetail{framework: framework, element: element},
	}
}

func (*Pitch) Enhance(raw *generation.Result, c *Context, p Plan) Enhanced {
	d, _ := p.detail.(pitchDetail)
	out := fromResult(raw)
	lower := strings.ToLower(out.Text)

	switch {
	case keywords.Any(lower, "save", "roi", "return", "investment"):
		out.Type = "roi_demo"
	case keywords.Any(lower, "feature", "capability", "helps", "enables"):
		out.Type = "feature_benefit"
	case keywords.Any(lower, "client", "customer", "example", "case"):
		out.Type = "proof_point"
	case strings.Contains(out.Text, "?"):
		out.Type = "trial_close"
	default:
		out.Type = "value_proposition"
	}

	out.Context["framework"] = d.framework
	out.Context["element"] = d.element
	out.Context["value_strength"] = valueStrength(lower)
	if d.element == "roi_demonstration" || d.element == "next_steps" {
		out.Context["urgency_building"] = true
	}
	out.Context["analysis"] = p.Analysis

	points, ok := pitchListening[d.element]
	if !ok {
		points = []string{"Customer engagement", "Interest level", "Questions"}
	}
	out.NextActions = append(out.NextActions, points...)

	if len(out.Alternatives) == 0 {
		if alts, ok := pitchAlternatives[d.element]; ok {
			out.Alternatives = append([]string(nil), alts...)
		} else {
			out.Alternatives = []string{
				"Let me explain how this benefits you specifically.",
				"Here's what this means for your situation.",
				"The value for your business would be significant.",
			}
		}
	}
	return out
}

func (*Pitch) Fallback() Enhanced {
	return Enhanced{
		Text:       "Based on what you've shared about your challenges, I believe our solution could make a significant impact. Let me show you how it directly addresses your specific needs.",
		Type:       "value_proposition",
		Confidence: 0.6,
		Reasoning:  "Generic value proposition that connects to customer needs",
		Alternatives: []string{
			"Here's how we can solve the problem you described.",
			"Let me demonstrate the value this would create for your business.",
		},
		NextActions: []string{
			"Watch for engagement and interest signals",
			"Listen for questions about the solution",
			"Prepare to address potential concerns",
		},
		Context: map[string]any{
			"framework":      "pain_relief",
			"element":        "solution_overview",
			"value_strength": "medium",
		},
	}
}
