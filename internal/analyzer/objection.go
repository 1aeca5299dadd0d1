package analyzer

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/generation"
	"github.com/MikeSquared-Agency/closer/internal/keywords"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// ObjectionHandler works an objection through acknowledge, clarify and
// evidence without arguing with the customer.
type ObjectionHandler struct{}

type objectionKind struct {
	name       string
	indicators []string
	framework  string
	approach   string
}

// Order matters: ties in the score go to the earlier kind, and the quick
// classifier returns the first kind with any hit.
var objectionKinds = []objectionKind{
	{"price", []string{"expensive", "cost", "price", "budget", "cheap", "affordable"},
		"acknowledge, value, reframe, proof", "Focus on ROI and value, not just price"},
	{"authority", []string{"boss", "manager", "decision", "approval", "team"},
		"acknowledge, qualify, involve, next steps", "Work with them to involve decision makers"},
	{"timing", []string{"later", "not now", "busy", "next", "timing"},
		"acknowledge, urgency, cost of delay, timeline", "Create urgency around waiting"},
	{"trust", []string{"sure", "doubt", "trust", "confident", "proven"},
		"acknowledge, evidence, references, trial", "Provide proof and reduce risk"},
	{"competition", []string{"other", "competitor", "alternative", "comparing"},
		"acknowledge, differentiate, value, unique benefit", "Position unique advantages"},
	{"feature", []string{"doesn't", "can't", "missing", "need", "require"},
		"acknowledge, clarify, alternative, benefit", "Find alternative ways to meet their needs"},
	{"general", []string{"but", "however", "concern", "worry", "issue"},
		"acknowledge, understand, address, confirm", "Understand root concern before addressing"},
}

func objectionKindFor(name string) objectionKind {
	for _, k := range objectionKinds {
		if k.name == name {
			return k
		}
	}
	return objectionKinds[len(objectionKinds)-1]
}

var objectionEmotions = []struct {
	state      string
	indicators []string
}{
	{"frustrated", []string{"frustrated", "annoying", "difficult", "hard"}},
	{"skeptical", []string{"sure", "doubt", "believe", "really"}},
	{"concerned", []string{"worried", "concern", "nervous", "afraid"}},
}

// ObjectionAnalysis is the reading of the customer's last three messages.
type ObjectionAnalysis struct {
	PrimaryType    string   `json:"primary_type"`
	AllTypes       []string `json:"all_types"`
	Intensity      string   `json:"intensity"`
	IsGenuine      bool     `json:"is_genuine_objection"`
	EmotionalState string   `json:"emotional_state"`
	Framework      string   `json:"framework"`
	Approach       string   `json:"approach"`
}

// AnalyzeObjection scores every objection kind against the recent customer
// text. With no hits the primary type is general.
func AnalyzeObjection(recent []conversation.Message) ObjectionAnalysis {
	text := conversation.LowerText(lastCustomer(recent, 3))

	a := ObjectionAnalysis{PrimaryType: "general", AllTypes: []string{}, EmotionalState: "neutral"}
	best := 0
	for _, k := range objectionKinds {
		score := keywords.Count(text, k.indicators...)
		if score == 0 {
			continue
		}
		a.AllTypes = append(a.AllTypes, k.name)
		if score > best {
			best = score
			a.PrimaryType = k.name
		}
	}

	a.Intensity = "medium"
	if keywords.Any(text, "absolutely", "definitely", "never", "impossible", "can't", "won't") {
		a.Intensity = "high"
	}
	a.IsGenuine = !keywords.Any(text, "how", "what", "when", "where", "why", "?")
	for _, e := range objectionEmotions {
		if keywords.Any(text, e.indicators...) {
			a.EmotionalState = e.state
			break
		}
	}

	k := objectionKindFor(a.PrimaryType)
	a.Framework = k.framework
	a.Approach = k.approach
	return a
}

// ObjectionRisk rates how much the objection threatens the deal.
func ObjectionRisk(a ObjectionAnalysis) string {
	risk := 0
	if a.Intensity == "high" {
		risk += 2
	}
	if len(a.AllTypes) >= 3 {
		risk++
	}
	if a.EmotionalState == "frustrated" || a.EmotionalState == "skeptical" {
		risk++
	}
	switch a.PrimaryType {
	case "price":
		risk++
	case "authority":
		risk--
	}
	switch {
	case risk >= 3:
		return "high"
	case risk >= 1:
		return "medium"
	default:
		return "low"
	}
}

// FrameworkStep names the handling step a drafted response performs.
func FrameworkStep(suggestion string) string {
	lower := strings.ToLower(suggestion)
	switch {
	case keywords.Any(lower, "understand", "hear", "appreciate", "see"):
		return "acknowledge"
	case strings.Contains(suggestion, "?") || keywords.Any(lower, "help me", "clarify", "explain"):
		return "clarify"
	case keywords.Any(lower, "however", "actually", "fact", "example", "case"):
		return "evidence"
	case keywords.Any(lower, "think about", "consider", "perspective", "way"):
		return "reframe"
	case keywords.Any(lower, "make sense", "address", "resolve", "move forward"):
		return "close"
	default:
		return "acknowledge"
	}
}

var objectionNextActions = map[string][]string{
	"acknowledge": {"Listen for complete concern", "Show empathy", "Ask clarifying questions"},
	"clarify":     {"Dig deeper into root cause", "Understand their perspective", "Identify decision criteria"},
	"evidence":    {"Provide specific proof points", "Share relevant examples", "Offer trial or demo"},
	"reframe":     {"Help them see different perspective", "Focus on value and benefits", "Address misunderstandings"},
	"close":       {"Confirm resolution", "Check for other concerns", "Move to next step"},
}

var objectionAlternatives = map[string][]string{
	"price": {
		"I understand cost is important. Let's look at the value this creates.",
		"That's a fair concern. What if I could show you how this pays for itself?",
		"I hear you on the investment. Let me break down the ROI for you.",
	},
	"authority": {
		"I'd be happy to help you present this to your team.",
		"What information would help you discuss this internally?",
		"Would it be helpful if I joined a call with your decision makers?",
	},
	"timing": {
		"I understand timing is important. What's driving your timeline?",
		"What would need to change for the timing to work better?",
		"Let's talk about what you're missing out on by waiting.",
	},
	"trust": {
		"I understand you want to feel confident in this decision.",
		"Let me share how we've helped companies in similar situations.",
		"What would help you feel more comfortable moving forward?",
	},
}

// QuickObjection classifies an interrupting objection without scoring:
// the first kind with any indicator wins.
func QuickObjection(text string) string {
	lower := strings.ToLower(text)
	for _, k := range objectionKinds {
		if keywords.Any(lower, k.indicators...) {
			return k.name
		}
	}
	return "general"
}

var immediateObjectionResponses = map[string]string{
	"price":       "I understand cost is a concern. Let me address that for you.",
	"authority":   "I appreciate you mentioning the decision process. Let's talk about that.",
	"timing":      "I hear you on the timing. Let me understand your situation better.",
	"trust":       "I want you to feel completely confident in this decision.",
	"competition": "I understand you're exploring options. Let me show you what makes us different.",
	"feature":     "That's a great question about the features. Let me explain.",
	"general":     "I understand your concern. Let me address that directly.",
}

// FollowUp is the plan for working an objection after the first response.
type FollowUp struct {
	Approach string   `json:"approach"`
	Tactics  []string `json:"tactics"`
	Evidence []string `json:"evidence"`
}

var objectionFollowUps = map[string]FollowUp{
	"price": {"Value demonstration",
		[]string{"ROI calculation", "Cost of inaction", "Payment options"},
		[]string{"Case studies", "References", "Guarantees"}},
	"authority": {"Stakeholder involvement",
		[]string{"Champion development", "Executive presentation", "Decision criteria"},
		[]string{"Executive brief", "ROI summary", "Implementation plan"}},
	"timing": {"Urgency creation",
		[]string{"Opportunity cost", "Limited availability", "Quick wins"},
		[]string{"Timeline benefits", "Competitive advantage", "Market changes"}},
	"trust": {"Risk reduction",
		[]string{"Social proof", "Trial periods", "References"},
		[]string{"Customer testimonials", "Case studies", "Guarantees"}},
}

// ObjectionInterrupt is the immediate handling of an objection that broke
// into the conversation.
type ObjectionInterrupt struct {
	Type              string   `json:"objection_type"`
	ImmediateResponse string   `json:"immediate_response"`
	FollowUp          FollowUp `json:"follow_up_strategy"`
	Confidence        float64  `json:"confidence"`
	NextActions       []string `json:"next_actions"`
}

// HandleObjectionInterrupt answers an objection raised out of turn.
func HandleObjectionInterrupt(text string) ObjectionInterrupt {
	kind := QuickObjection(text)
	follow, ok := objectionFollowUps[kind]
	if !ok {
		follow = FollowUp{
			Approach: "Direct address",
			Tactics:  []string{"Clarification", "Evidence", "Confirmation"},
			Evidence: []string{"Relevant examples", "Proof points", "Expert opinions"},
		}
	}
	return ObjectionInterrupt{
		Type:              kind,
		ImmediateResponse: immediateObjectionResponses[kind],
		FollowUp:          follow,
		Confidence:        0.8,
		NextActions: []string{
			"Listen for complete objection",
			"Ask clarifying questions",
			"Provide evidence or proof",
		},
	}
}

// ObjectionResolved reports whether the customer's last two messages read
// as the objection being settled.
func ObjectionResolved(recent []conversation.Message) bool {
	customers := conversation.FromCustomer(recent)
	if len(customers) == 0 {
		return false
	}
	text := conversation.LowerText(conversation.Last(customers, 2))
	if keywords.Any(text, "makes sense", "understand", "see", "okay", "good point", "fair enough") {
		return true
	}
	if keywords.Any(text, "how", "when", "next steps", "move forward", "interested") {
		return true
	}
	return questionCount(conversation.Last(customers, 3)) >= 1 &&
		!keywords.Any(text, "but", "however", "concern", "worry")
}

type objectionDetail struct {
	analysis ObjectionAnalysis
	risk     string
}

func (*ObjectionHandler) sealed() {}

func (*ObjectionHandler) Stage() stage.Stage { return stage.Objection }

func (*ObjectionHandler) Analyze(c *Context) Plan {
	a := AnalyzeObjection(c.Recent)
	risk := ObjectionRisk(a)
	step := "acknowledge"
	if !a.IsGenuine {
		step = "clarify"
	}

	prompt := fmt.Sprintf(objectionPrompt,
		a.PrimaryType, a.Framework, step,
		a.Intensity, a.EmotionalState, risk,
		profileSummary(c.Profile), stackSummary(c.Stack), lastCustomerText(c.Recent))

	return Plan{
		Focus: a.PrimaryType,
		Analysis: map[string]any{
			"primary_type":         a.PrimaryType,
			"all_types":            a.AllTypes,
			"intensity":            a.Intensity,
			"is_genuine_objection": a.IsGenuine,
			"emotional_state":      a.EmotionalState,
			"framework":            a.Framework,
			"approach":             a.Approach,
			"risk_level":           risk,
			"resolved":             ObjectionResolved(c.Recent),
		},
		Prompt: prompt,
		detail: objectionDetail{analysis: a, risk: risk},
	}
}

func (*ObjectionHandler) Enhance(raw *generation.Result, c *Context, p Plan) Enhanced {
	d, _ := p.detail.(objectionDetail)
	out := fromResult(raw)
	step := FrameworkStep(out.Text)

	out.Type = step
	out.Context["objection_type"] = d.analysis.PrimaryType
	out.Context["framework_step"] = step
	out.Context["risk_level"] = d.risk

	actions, ok := objectionNextActions[step]
	if !ok {
		actions = []string{"Continue addressing the concern"}
	}
	out.NextActions = append(out.NextActions, actions...)

	if len(out.Alternatives) == 0 {
		if alts, ok := objectionAlternatives[d.analysis.PrimaryType]; ok {
			out.Alternatives = append([]string(nil), alts...)
		} else {
			out.Alternatives = []string{
				"I understand your concern. Let me address that directly.",
				"That's a valid point. Here's how we handle that.",
				"I appreciate you bringing that up. Let me explain.",
			}
		}
	}

	if d.analysis.Intensity == "high" {
		out.Confidence = max(0.5, out.Confidence-0.2)
	}
	return out
}

func (*ObjectionHandler) Fallback() Enhanced {
	return Enhanced{
		Text:       "I understand your concern, and I appreciate you bringing it up. Let me address that directly for you.",
		Type:       "acknowledge",
		Confidence: 0.6,
		Reasoning:  "Professional acknowledgment that validates concern while maintaining control",
		Alternatives: []string{
			"That's a valid point. Let me explain how we handle that.",
			"I hear what you're saying. Here's my perspective on that.",
		},
		NextActions: []string{
			"Ask clarifying questions",
			"Understand the root concern",
			"Provide specific evidence or solutions",
		},
		Context: map[string]any{
			"objection_type": "general",
			"framework_step": "acknowledge",
			"risk_level":     "medium",
		},
	}
}
