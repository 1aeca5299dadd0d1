// Package analyzer holds the six stage analyzers. Each one inspects the
// session snapshot, shapes the generation request for its stage, and
// annotates whatever the backend drafts with its own analysis.
package analyzer

import (
	"encoding/json"
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/generation"
	"github.com/MikeSquared-Agency/closer/internal/profile"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// Context is an immutable snapshot of one session taken for a single
// suggestion cycle. Analyzers must not modify it.
type Context struct {
	SessionID string
	UserID    string
	Stage     stage.Stage
	Profile   profile.Profile
	// Recent is the last five messages of History.
	Recent   []conversation.Message
	History  []conversation.Message
	Stack    []conversation.ContextEntry
	Metadata map[string]string
	// Interrupt is set only when the cycle handles an interruption.
	Interrupt *InterruptInput
}

// InterruptInput is the utterance that broke into the conversation.
type InterruptInput struct {
	Speaker conversation.Speaker
	Text    string
}

// Plan is an analyzer's reading of the session: what to focus on next,
// the analysis bundle surfaced to the seller, and the stage prompt.
type Plan struct {
	Focus    string
	Analysis map[string]any
	Prompt   string

	detail any
}

// Enhanced is a finished suggestion before it is stamped with ids.
type Enhanced struct {
	Text         string
	Type         string
	Confidence   float64
	Reasoning    string
	Alternatives []string
	NextActions  []string
	Context      map[string]any
}

// Analyzer is implemented by exactly six types in this package.
type Analyzer interface {
	Stage() stage.Stage
	Analyze(c *Context) Plan
	Enhance(raw *generation.Result, c *Context, p Plan) Enhanced
	Fallback() Enhanced

	sealed()
}

// Router maps a stage onto its analyzer.
type Router struct {
	opening   *Opening
	discovery *Discovery
	pitch     *Pitch
	objection *ObjectionHandler
	closing   *Closing
	interrupt *Interruption
}

func NewRouter() *Router {
	return &Router{
		opening:   &Opening{},
		discovery: &Discovery{},
		pitch:     &Pitch{},
		objection: &ObjectionHandler{},
		closing:   &Closing{},
		interrupt: &Interruption{},
	}
}

// For returns the analyzer for s, or false when s is not a routable stage.
func (r *Router) For(s stage.Stage) (Analyzer, bool) {
	switch s {
	case stage.Opening:
		return r.opening, true
	case stage.Discovery:
		return r.discovery, true
	case stage.Pitch:
		return r.pitch, true
	case stage.Objection:
		return r.objection, true
	case stage.Closing:
		return r.closing, true
	case stage.Interrupt:
		return r.interrupt, true
	default:
		return nil, false
	}
}

// Interrupt returns the interrupt analyzer with its concrete type, for the
// immediate-response path that does not go through generation.
func (r *Router) Interrupt() *Interruption {
	return r.interrupt
}

// fromResult starts an Enhanced from the backend's answer, applying the
// defaults for anything it left out.
func fromResult(raw *generation.Result) Enhanced {
	ctx := make(map[string]any, len(raw.Context)+4)
	for k, v := range raw.Context {
		ctx[k] = v
	}
	return Enhanced{
		Text:         raw.Suggestion,
		Type:         raw.TypeOrDefault(),
		Confidence:   raw.ConfidenceOrDefault(),
		Reasoning:    raw.Reasoning,
		Alternatives: append([]string(nil), raw.Alternatives...),
		NextActions:  append([]string(nil), raw.NextActions...),
		Context:      ctx,
	}
}

// customerText lowercases and joins the customer messages of msgs.
func customerText(msgs []conversation.Message) string {
	return conversation.LowerText(conversation.FromCustomer(msgs))
}

func lastCustomer(msgs []conversation.Message, n int) []conversation.Message {
	return conversation.Last(conversation.FromCustomer(msgs), n)
}

func questionCount(msgs []conversation.Message) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m.Text, "?") {
			n++
		}
	}
	return n
}

func avgLength(msgs []conversation.Message) float64 {
	if len(msgs) == 0 {
		return 0
	}
	total := 0
	for _, m := range msgs {
		total += len([]rune(m.Text))
	}
	return float64(total) / float64(len(msgs))
}

func lastCustomerText(msgs []conversation.Message) string {
	customers := conversation.FromCustomer(msgs)
	if len(customers) == 0 {
		return ""
	}
	return customers[len(customers)-1].Text
}

func first(list []string, n int) []string {
	if len(list) <= n {
		return append([]string(nil), list...)
	}
	return append([]string(nil), list[:n]...)
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
