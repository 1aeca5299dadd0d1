// Package stage holds the static sales-stage catalogue: what each stage is
// for and which stages may follow it.
package stage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStage is returned by Lookup and Parse for names outside the catalogue.
var ErrUnknownStage = errors.New("unknown stage")

// Stage names one phase of a sales call.
type Stage string

const (
	Opening   Stage = "opening"
	Discovery Stage = "discovery"
	Pitch     Stage = "pitch"
	Objection Stage = "objection"
	Closing   Stage = "closing"

	// Interrupt routes a single suggestion cycle to the interrupt analyzer.
	// It is never a session's current stage.
	Interrupt Stage = "interrupt"
)

// Real lists the five stages a call can be in, in call order.
var Real = []Stage{Opening, Discovery, Pitch, Objection, Closing}

// Definition describes one stage.
type Definition struct {
	Name            Stage    `json:"name"`
	Description     string   `json:"description"`
	Objectives      []string `json:"objectives"`
	KeyQuestions    []string `json:"key_questions"`
	SuccessCriteria []string `json:"success_criteria"`
	NextStages      []Stage  `json:"next_stages"`
}

var catalogue = map[Stage]Definition{
	Opening: {
		Name:        Opening,
		Description: "Initial rapport building and introduction",
		Objectives: []string{
			"Establish trust and rapport",
			"Set meeting agenda",
			"Understand customer's time constraints",
			"Create comfortable atmosphere",
		},
		KeyQuestions: []string{
			"How are you doing today?",
			"What brings you to explore this solution?",
			"How much time do we have together?",
			"What would make this conversation valuable for you?",
		},
		SuccessCriteria: []string{
			"Customer is engaged and responsive",
			"Agenda is set and agreed upon",
			"Professional rapport established",
			"Customer shows openness to continue",
		},
		NextStages: []Stage{Discovery},
	},
	Discovery: {
		Name:        Discovery,
		Description: "Understanding customer needs and pain points",
		Objectives: []string{
			"Identify key pain points",
			"Understand current solutions",
			"Qualify budget and timeline",
			"Determine decision-making process",
		},
		KeyQuestions: []string{
			"What challenges are you facing currently?",
			"How are you handling this today?",
			"What would an ideal solution look like?",
			"Who else is involved in this decision?",
			"What's your timeline for making a change?",
		},
		SuccessCriteria: []string{
			"Clear understanding of pain points",
			"Budget range identified",
			"Decision process understood",
			"Timeline established",
		},
		NextStages: []Stage{Pitch, Objection},
	},
	Pitch: {
		Name:        Pitch,
		Description: "Presenting solution and value proposition",
		Objectives: []string{
			"Connect features to identified needs",
			"Demonstrate clear ROI",
			"Address specific pain points",
			"Build value and urgency",
		},
		KeyQuestions: []string{
			"How does this address your specific challenge?",
			"What impact would this have on your business?",
			"How does this compare to what you're doing now?",
			"What questions do you have about the solution?",
		},
		SuccessCriteria: []string{
			"Customer sees clear value",
			"Questions indicate interest",
			"Pain points are addressed",
			"ROI is understood",
		},
		NextStages: []Stage{Objection, Closing},
	},
	Objection: {
		Name:        Objection,
		Description: "Handling concerns and resistance",
		Objectives: []string{
			"Understand root concerns",
			"Provide evidence and proof",
			"Address budget concerns",
			"Handle timing objections",
		},
		KeyQuestions: []string{
			"What concerns you most about this?",
			"What would need to change for this to work?",
			"How can we address that concern?",
			"What evidence would help you feel confident?",
		},
		SuccessCriteria: []string{
			"Objections are fully addressed",
			"Customer confidence increases",
			"Path forward is clear",
			"Resistance is reduced",
		},
		NextStages: []Stage{Pitch, Closing, Discovery},
	},
	Closing: {
		Name:        Closing,
		Description: "Finalizing deal and next steps",
		Objectives: []string{
			"Summarize value and fit",
			"Ask for commitment",
			"Plan implementation",
			"Set clear next steps",
		},
		KeyQuestions: []string{
			"Are you ready to move forward?",
			"What questions do you still have?",
			"When would you like to get started?",
			"What does the approval process look like?",
		},
		SuccessCriteria: []string{
			"Commitment is made",
			"Next steps are clear",
			"Timeline is established",
			"Implementation planned",
		},
		NextStages: nil,
	},
}

// Lookup returns the definition of a real stage.
func Lookup(name Stage) (Definition, error) {
	def, ok := catalogue[name]
	if !ok {
		return Definition{}, fmt.Errorf("lookup %q: %w", name, ErrUnknownStage)
	}
	return def, nil
}

// ValidTransitions returns the stages that may legally follow from.
// The result is a fresh slice; closing and unknown stages yield none.
func ValidTransitions(from Stage) []Stage {
	def, ok := catalogue[from]
	if !ok {
		return nil
	}
	return append([]Stage(nil), def.NextStages...)
}

// IsLegal reports whether from → to is in the catalogue's transition table.
func IsLegal(from, to Stage) bool {
	for _, s := range ValidTransitions(from) {
		if s == to {
			return true
		}
	}
	return false
}

// IsReal reports whether s is one of the five call stages.
func IsReal(s Stage) bool {
	_, ok := catalogue[s]
	return ok
}

// Parse normalizes a caller-supplied stage name. The interrupt pseudo-stage
// parses successfully so it can be routed.
func Parse(name string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(name)))
	if s == Interrupt || IsReal(s) {
		return s, nil
	}
	return "", fmt.Errorf("parse %q: %w", name, ErrUnknownStage)
}

// Actions returns up to the first three key questions of a stage.
func Actions(s Stage) []string {
	def, ok := catalogue[s]
	if !ok {
		return nil
	}
	n := len(def.KeyQuestions)
	if n > 3 {
		n = 3
	}
	return append([]string(nil), def.KeyQuestions[:n]...)
}
