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

// Discovery keeps the seller asking about pain, impact and process.
type Discovery struct{}

// DiscoveryProgress records which discovery areas the call has touched.
type DiscoveryProgress struct {
	CurrentSituation string   `json:"current_situation"`
	PainPoints       int      `json:"pain_points"`
	Impact           string   `json:"impact"`
	DesiredOutcome   string   `json:"desired_outcome"`
	DecisionProcess  string   `json:"decision_process"`
	BudgetTimeline   string   `json:"budget_timeline"`
	Gaps             []string `json:"gaps"`
}

var discoveryPriority = []string{
	"pain_points",
	"current_situation",
	"impact",
	"desired_outcome",
	"decision_process",
	"budget_timeline",
}

var areaQuestions = map[string][]string{
	"current_situation": {"How are you currently handling this?", "What's your current process?", "What tools are you using today?"},
	"pain_points":       {"What's the biggest challenge you're facing?", "What would you change about your current situation?", "Where do you see the most friction?"},
	"impact":            {"How is this affecting your business?", "What's the cost of not solving this?", "How much time does this take up?"},
	"desired_outcome":   {"What would an ideal solution look like?", "What are your goals here?", "What does success look like to you?"},
	"decision_process":  {"Who else is involved in this decision?", "What's your typical evaluation process?", "What criteria matter most?"},
	"budget_timeline":   {"What's your timeline for a decision?", "When would you like this in place?", "What budget range are you working with?"},
}

var listeningPoints = map[string][]string{
	"current_situation": {"Current tools and processes", "Team structure", "Workflow details"},
	"pain_points":       {"Emotional language", "Frustration indicators", "Specific problems"},
	"impact":            {"Cost implications", "Time lost", "Business consequences"},
	"desired_outcome":   {"Success criteria", "Goals and objectives", "Vision statements"},
	"decision_process":  {"Stakeholder names", "Approval process", "Evaluation criteria"},
	"budget_timeline":   {"Urgency indicators", "Budget hints", "Timeline pressure"},
}

var discoveryAlternatives = map[string][]string{
	"current_situation": {
		"Walk me through your current process.",
		"How are you handling this today?",
		"What does your typical workflow look like?",
	},
	"pain_points": {
		"What's the biggest challenge with your current approach?",
		"Where do you see the most friction?",
		"What keeps you up at night about this?",
	},
	"impact": {
		"How is this affecting your business?",
		"What's the cost of the status quo?",
		"How much time does this consume?",
	},
	"desired_outcome": {
		"What would success look like?",
		"If you could solve this perfectly, what would that mean?",
		"What are you hoping to achieve?",
	},
	"decision_process": {
		"Who else would be involved in evaluating a solution?",
		"How do you typically make decisions like this?",
		"What factors are most important in your evaluation?",
	},
	"budget_timeline": {
		"What's driving the timing on this?",
		"When would you like to have this resolved?",
		"What kind of investment makes sense for solving this?",
	},
}

// AnalyzeDiscovery scans the whole call for each discovery area. Decision
// process and budget/timeline only count as gaps when the profile knows
// nothing about them either.
func AnalyzeDiscovery(c *Context) DiscoveryProgress {
	p := c.Profile
	text := conversation.LowerText(c.History)

	d := DiscoveryProgress{
		CurrentSituation: "unknown",
		PainPoints:       len(p.PainPoints),
		Impact:           "unknown",
		DesiredOutcome:   "unknown",
		DecisionProcess:  "unknown",
		BudgetTimeline:   "unknown",
		Gaps:             []string{},
	}
	if p.DecisionAuthority != "" {
		d.DecisionProcess = "partial"
	}
	if p.BudgetRange != "" || p.Timeline != "" {
		d.BudgetTimeline = "partial"
	}

	if keywords.Any(text, "currently", "today", "now", "existing", "using") {
		d.CurrentSituation = "discovered"
	} else {
		d.Gaps = append(d.Gaps, "current_situation")
	}
	if keywords.Any(text, "cost", "time", "impact", "affect", "problem") {
		d.Impact = "discovered"
	} else {
		d.Gaps = append(d.Gaps, "impact")
	}
	if keywords.Any(text, "want", "need", "goal", "ideal", "looking for") {
		d.DesiredOutcome = "discovered"
	} else {
		d.Gaps = append(d.Gaps, "desired_outcome")
	}
	if keywords.Any(text, "team", "boss", "approve", "decision", "evaluate") {
		d.DecisionProcess = "discovered"
	} else if p.DecisionAuthority == "" {
		d.Gaps = append(d.Gaps, "decision_process")
	}
	switch {
	case keywords.Any(text, "budget", "cost", "price", "investment"):
		d.BudgetTimeline = "budget_discovered"
	case keywords.Any(text, "when", "timeline", "soon", "urgent", "month", "quarter"):
		d.BudgetTimeline = "timeline_discovered"
	case p.BudgetRange == "" && p.Timeline == "":
		d.Gaps = append(d.Gaps, "budget_timeline")
	}
	return d
}

// NextDiscoveryArea walks the priority order for the first gap, with pain
// points also chosen while fewer than two are known. With no gaps it
// follows up on the customer's last message.
func NextDiscoveryArea(d DiscoveryProgress, recent []conversation.Message) string {
	for _, area := range discoveryPriority {
		for _, gap := range d.Gaps {
			if gap == area {
				return area
			}
		}
		if area == "pain_points" && d.PainPoints < 2 {
			return area
		}
	}

	last := strings.ToLower(lastCustomerText(recent))
	switch {
	case last == "":
		return "pain_points"
	case keywords.Any(last, "problem", "issue", "challenge"):
		return "pain_points"
	case keywords.Any(last, "process", "currently", "today"):
		return "current_situation"
	case keywords.Any(last, "cost", "time", "impact"):
		return "impact"
	case keywords.Any(last, "want", "need", "goal"):
		return "desired_outcome"
	default:
		return "pain_points"
	}
}

// QualificationStage bands how qualified the prospect looks from the profile.
func QualificationStage(p profile.Profile) string {
	score := 0
	switch {
	case len(p.PainPoints) >= 2:
		score += 2
	case len(p.PainPoints) >= 1:
		score++
	}
	if p.BudgetRange != "" {
		score++
	}
	if p.Timeline != "" {
		score++
	}
	if p.DecisionAuthority != "" {
		score++
	}

	switch {
	case score >= 4:
		return "highly_qualified"
	case score >= 2:
		return "moderately_qualified"
	default:
		return "early_qualification"
	}
}

// ReadyForPitch reports whether at least three of the four pitch
// prerequisites hold.
func ReadyForPitch(c *Context) bool {
	met := 0
	if len(c.Profile.PainPoints) >= 2 {
		met++
	}
	if c.Profile.BudgetRange != "" || c.Profile.Timeline != "" {
		met++
	}
	if keywords.Any(conversation.LowerText(c.History), "currently", "today", "process", "using") {
		met++
	}
	customers := conversation.FromCustomer(c.History)
	if len(customers) >= 3 {
		for _, m := range conversation.Last(customers, 3) {
			if len([]rune(m.Text)) > 30 {
				met++
				break
			}
		}
	}
	return met >= 3
}

func questionDepth(painPoints int) string {
	switch {
	case painPoints == 0:
		return "surface"
	case painPoints < 3:
		return "medium"
	default:
		return "deep"
	}
}

func (*Discovery) sealed() {}

func (*Discovery) Stage() stage.Stage { return stage.Discovery }

func (*Discovery) Analyze(c *Context) Plan {
	progress := AnalyzeDiscovery(c)
	area := NextDiscoveryArea(progress, c.Recent)
	qualification := QualificationStage(c.Profile)

	analysis := map[string]any{
		"current_situation":   progress.CurrentSituation,
		"pain_points":         progress.PainPoints,
		"impact":              progress.Impact,
		"desired_outcome":     progress.DesiredOutcome,
		"decision_process":    progress.DecisionProcess,
		"budget_timeline":     progress.BudgetTimeline,
		"gaps":                progress.Gaps,
		"qualification_stage": qualification,
		"ready_for_pitch":     ReadyForPitch(c),
	}

	gaps := "none"
	if len(progress.Gaps) > 0 {
		gaps = strings.Join(progress.Gaps, ", ")
	}
	prompt := fmt.Sprintf(discoveryPrompt,
		area, strings.Join(areaQuestions[area], " / "),
		qualification, gaps,
		profileSummary(c.Profile), lastCustomerText(c.Recent))

	return Plan{Focus: area, Analysis: analysis, Prompt: prompt}
}

func (*Discovery) Enhance(raw *generation.Result, c *Context, p Plan) Enhanced {
	out := fromResult(raw)
	lower := strings.ToLower(out.Text)

	switch {
	case !strings.Contains(out.Text, "?"):
		out.Type = "statement"
	case startsWithAny(lower, "what", "how", "why", "tell me", "describe"):
		out.Type = "open_question"
	default:
		out.Type = "clarification"
	}

	out.Context["discovery_area"] = p.Focus
	out.Context["qualification_stage"] = QualificationStage(c.Profile)
	out.Context["question_depth"] = questionDepth(len(c.Profile.PainPoints))
	out.Context["analysis"] = p.Analysis

	points, ok := listeningPoints[p.Focus]
	if !ok {
		points = []string{"Key details", "Emotional responses", "Follow-up opportunities"}
	}
	out.NextActions = append(out.NextActions, points...)

	if len(out.Alternatives) == 0 {
		if alts, ok := discoveryAlternatives[p.Focus]; ok {
			out.Alternatives = append([]string(nil), alts...)
		} else {
			out.Alternatives = []string{
				"Help me understand that better.",
				"Can you give me more details on that?",
				"What else should I know about this?",
			}
		}
	}
	return out
}

func (*Discovery) Fallback() Enhanced {
	return Enhanced{
		Text:       "Help me understand your current situation better. What's the biggest challenge you're facing right now?",
		Type:       "open_question",
		Confidence: 0.6,
		Reasoning:  "Open-ended question to uncover pain points and current state",
		Alternatives: []string{
			"Tell me more about how you're handling this today.",
			"What's working well with your current approach, and what isn't?",
		},
		NextActions: []string{
			"Listen for pain points and challenges",
			"Identify emotional language",
			"Ask follow-up questions for clarity",
		},
		Context: map[string]any{
			"discovery_area":      "pain_points",
			"question_depth":      "surface",
			"qualification_stage": "early_qualification",
		},
	}
}

func startsWithAny(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
