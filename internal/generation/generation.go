// Package generation talks to the text-generation backends that draft the
// seller's next line. Backends receive a stage prompt and the conversation
// and answer with a single JSON object.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
)

var (
	// ErrMalformedOutput means the backend answered without a decodable JSON object.
	ErrMalformedOutput = errors.New("malformed generation output")
	// ErrEmptySuggestion means the JSON object had no suggestion text.
	ErrEmptySuggestion = errors.New("generation returned no suggestion")
)

// Generator drafts a suggestion. Implementations must honour ctx.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	Name() string
}

// Request is what an analyzer asks the backend for.
type Request struct {
	Analyzer    string
	StagePrompt string
	History     []conversation.Message
}

// Result is the backend's structured answer. Only Suggestion is required.
type Result struct {
	Suggestion   string         `json:"suggestion"`
	Type         string         `json:"type,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Alternatives []string       `json:"alternatives,omitempty"`
	NextActions  []string       `json:"next_actions,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	Reasoning    string         `json:"reasoning,omitempty"`
}

const (
	defaultType       = "statement"
	defaultConfidence = 0.8
)

// TypeOrDefault returns the backend's type tag, or "statement".
func (r *Result) TypeOrDefault() string {
	if r.Type == "" {
		return defaultType
	}
	return r.Type
}

// ConfidenceOrDefault returns the backend's confidence clamped to [0, 1], or 0.8.
func (r *Result) ConfidenceOrDefault() float64 {
	if r.Confidence == nil {
		return defaultConfidence
	}
	c := *r.Confidence
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

const responseInstructions = `Respond with exactly one JSON object and nothing else:
{
  "suggestion": "the exact words the seller should say next",
  "type": "question | statement | objection_response | closing | ...",
  "confidence": 0.0,
  "alternatives": ["another phrasing", "another phrasing"],
  "next_actions": ["what the seller should do after saying it"],
  "reasoning": "one sentence on why this line fits now"
}`

// UserPrompt renders the conversation transcript and the response contract.
func UserPrompt(history []conversation.Message) string {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	if len(history) == 0 {
		b.WriteString("(no messages yet)\n")
	}
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(string(m.Speaker)), m.Text)
	}
	b.WriteString("\n")
	b.WriteString(responseInstructions)
	return b.String()
}

// ParseResult decodes a backend completion. Code fences and any prose around
// the outermost JSON object are ignored.
func ParseResult(raw string) (*Result, error) {
	body, ok := extractJSON(raw)
	if !ok {
		return nil, ErrMalformedOutput
	}

	var res Result
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	res.Suggestion = strings.TrimSpace(res.Suggestion)
	if res.Suggestion == "" {
		return nil, ErrEmptySuggestion
	}
	return &res, nil
}

func extractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
