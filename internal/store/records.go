package store

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidRecord is returned for feedback or reaction records that fail
// validation.
var ErrInvalidRecord = errors.New("invalid record")

var (
	userActions       = []string{"accepted", "modified", "rejected", "improved"}
	customerReactions = []string{"positive", "negative", "neutral", "objection"}
)

const defaultEffectiveness = 3

// SuggestionFeedback is the seller's verdict on one suggestion.
type SuggestionFeedback struct {
	ID                 string    `json:"id"`
	SessionID          string    `json:"session_id"`
	SuggestionID       string    `json:"suggestion_id"`
	Stage              string    `json:"stage,omitempty"`
	UserAction         string    `json:"user_action"`
	UserFeedback       string    `json:"user_feedback,omitempty"`
	ActualWordsUsed    string    `json:"actual_words_used,omitempty"`
	CustomerReaction   string    `json:"customer_reaction,omitempty"`
	EffectivenessScore int       `json:"effectiveness_score"`
	ImprovementNotes   string    `json:"improvement_notes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Validate checks the enumerations and fills the effectiveness default.
func (f *SuggestionFeedback) Validate() error {
	if f.SessionID == "" || f.SuggestionID == "" {
		return fmt.Errorf("%w: session_id and suggestion_id are required", ErrInvalidRecord)
	}
	if !slices.Contains(userActions, f.UserAction) {
		return fmt.Errorf("%w: user_action %q", ErrInvalidRecord, f.UserAction)
	}
	if f.CustomerReaction != "" && !slices.Contains(customerReactions, f.CustomerReaction) {
		return fmt.Errorf("%w: customer_reaction %q", ErrInvalidRecord, f.CustomerReaction)
	}
	if f.EffectivenessScore == 0 {
		f.EffectivenessScore = defaultEffectiveness
	}
	if f.EffectivenessScore < 1 || f.EffectivenessScore > 5 {
		return fmt.Errorf("%w: effectiveness_score %d", ErrInvalidRecord, f.EffectivenessScore)
	}
	return nil
}

// CustomerReaction is how the customer responded at some point in the call.
type CustomerReaction struct {
	ID           string            `json:"id"`
	SessionID    string            `json:"session_id"`
	Reaction     string            `json:"reaction"`
	ReactionText string            `json:"reaction_text,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (r *CustomerReaction) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrInvalidRecord)
	}
	if !slices.Contains(customerReactions, r.Reaction) {
		return fmt.Errorf("%w: reaction %q", ErrInvalidRecord, r.Reaction)
	}
	return nil
}
