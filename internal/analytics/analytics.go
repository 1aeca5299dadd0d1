// Package analytics derives call metrics and the end-of-call summary from
// a session's message history. Everything here is a pure function of its
// inputs.
package analytics

import (
	"math"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/keywords"
	"github.com/MikeSquared-Agency/closer/internal/profile"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

const (
	// messagesPerStage is the message count at which a stage reads as complete.
	messagesPerStage = 5
	// maxResponseGap bounds which customer-to-seller gaps count as responses.
	maxResponseGap = 60 * time.Second
	// interruptionGap is how close two same-speaker messages must be to
	// count as the speaker cutting in.
	interruptionGap = 3 * time.Second
	optimalMinutes  = 30.0
)

// StageProgress maps every real stage to min(messages in stage / 5, 1).
func StageProgress(history []conversation.Message) map[stage.Stage]float64 {
	counts := make(map[stage.Stage]int)
	for _, m := range history {
		counts[m.Stage]++
	}
	progress := make(map[stage.Stage]float64, len(stage.Real))
	for _, s := range stage.Real {
		progress[s] = math.Min(float64(counts[s])/messagesPerStage, 1)
	}
	return progress
}

// Performance summarises how the call has gone so far.
type Performance struct {
	SessionID             string    `json:"session_id"`
	ResponseTimes         []float64 `json:"response_times"`
	AvgResponseTime       float64   `json:"avg_response_time"`
	CustomerEngagement    float64   `json:"customer_engagement"`
	StageProgressionRate  float64   `json:"stage_progression_rate"`
	InterruptionCount     int       `json:"interruption_count"`
	SuccessfulTransitions int       `json:"successful_transitions"`
	TotalTransitions      int       `json:"total_transitions"`
	FlowScore             float64   `json:"conversation_flow_score"`
}

// Measure computes the performance metrics of a call that started at start.
func Measure(sessionID string, history []conversation.Message, start, now time.Time) Performance {
	p := Performance{SessionID: sessionID, ResponseTimes: []float64{}}
	if len(history) == 0 {
		return p
	}

	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1], history[i]
		gap := cur.Timestamp.Sub(prev.Timestamp)
		if prev.Speaker == conversation.Customer && cur.Speaker == conversation.Seller && gap <= maxResponseGap {
			p.ResponseTimes = append(p.ResponseTimes, gap.Seconds())
		}
		if prev.Speaker == cur.Speaker && gap < interruptionGap {
			p.InterruptionCount++
		}
	}
	if n := len(p.ResponseTimes); n > 0 {
		total := 0.0
		for _, rt := range p.ResponseTimes {
			total += rt
		}
		p.AvgResponseTime = total / float64(n)
	}

	p.CustomerEngagement = float64(len(conversation.FromCustomer(history))) / float64(len(history))

	seen := len(StagesCovered(history))
	p.StageProgressionRate = float64(seen) / float64(len(stage.Real))
	p.SuccessfulTransitions = seen - 1
	p.TotalTransitions = seen

	minutes := now.Sub(start).Minutes()
	duration := 1 - math.Abs(minutes-optimalMinutes)/optimalMinutes
	duration = math.Max(0, math.Min(1, duration))
	p.FlowScore = (p.CustomerEngagement + p.StageProgressionRate + duration) / 3
	return p
}

// StagesCovered lists the stages present in history in order of first
// appearance.
func StagesCovered(history []conversation.Message) []stage.Stage {
	seen := make(map[stage.Stage]bool)
	out := []stage.Stage{}
	for _, m := range history {
		if m.Stage == "" || seen[m.Stage] {
			continue
		}
		seen[m.Stage] = true
		out = append(out, m.Stage)
	}
	return out
}

var businessTopics = []string{
	"sales", "revenue", "growth", "customers", "market", "competition",
	"efficiency", "productivity", "cost", "budget", "roi", "solution",
	"implementation", "integration", "features", "benefits", "value",
}

// KeyTopics returns up to ten business topics mentioned anywhere in the call.
func KeyTopics(history []conversation.Message) []string {
	text := conversation.LowerText(history)
	topics := []string{}
	for _, t := range businessTopics {
		if strings.Contains(text, t) {
			topics = append(topics, t)
			if len(topics) == 10 {
				break
			}
		}
	}
	return topics
}

var objectionWords = []string{"concern", "worry", "but", "however", "issue", "problem"}

// Objections collects the customer messages that raised a concern,
// shortened to 100 runes.
func Objections(history []conversation.Message) []string {
	out := []string{}
	for _, m := range conversation.FromCustomer(history) {
		if !keywords.Any(strings.ToLower(m.Text), objectionWords...) {
			continue
		}
		text := m.Text
		if len([]rune(text)) > 100 {
			text = keywords.Truncate(text, 100) + "..."
		}
		out = append(out, text)
	}
	return out
}

// Outcome values.
const (
	OutcomePositive       = "positive"
	OutcomeNegative       = "negative"
	OutcomeFollowUpNeeded = "follow_up_needed"
	OutcomeUnclear        = "unclear"
)

// Outcome reads the customer's words in the last three messages.
func Outcome(history []conversation.Message) string {
	text := customerTail(history)
	switch {
	case keywords.Any(text, "yes", "agree", "proceed", "forward", "interested", "sounds good"):
		return OutcomePositive
	case keywords.Any(text, "no", "not interested", "maybe later", "think about it"):
		return OutcomeNegative
	case keywords.Any(text, "follow up", "more information", "discuss internally"):
		return OutcomeFollowUpNeeded
	default:
		return OutcomeUnclear
	}
}

func customerTail(history []conversation.Message) string {
	return conversation.LowerText(conversation.FromCustomer(conversation.Last(history, 3)))
}

var nextSteps = map[string][]string{
	OutcomePositive: {
		"Send proposal or contract",
		"Schedule implementation call",
		"Introduce implementation team",
		"Set project timeline",
	},
	OutcomeFollowUpNeeded: {
		"Send summary of key points discussed",
		"Provide additional information requested",
		"Schedule follow-up call in 1 week",
		"Connect with decision makers",
	},
	OutcomeNegative: {
		"Understand specific concerns",
		"Provide case studies or references",
		"Schedule future check-in",
		"Add to nurture campaign",
	},
	OutcomeUnclear: {
		"Send meeting summary",
		"Clarify next steps",
		"Schedule follow-up call",
		"Provide additional resources",
	},
}

// NextSteps returns the recommended follow-ups for an outcome.
func NextSteps(outcome string) []string {
	steps, ok := nextSteps[outcome]
	if !ok {
		steps = nextSteps[OutcomeUnclear]
	}
	return append([]string(nil), steps...)
}

// Sentiment is the share of positive, negative and neutral words the
// customer used.
type Sentiment struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// AnalyzeSentiment counts distinct sentiment words in the customer's
// speech. With none present it returns 0.5/0.3/0.2.
func AnalyzeSentiment(history []conversation.Message) Sentiment {
	text := conversation.LowerText(conversation.FromCustomer(history))
	pos := keywords.Count(text, "great", "excellent", "perfect", "love", "amazing", "fantastic")
	neg := keywords.Count(text, "bad", "terrible", "awful", "hate", "horrible", "disappointing")
	neu := keywords.Count(text, "okay", "fine", "alright", "maybe", "possibly")
	total := pos + neg + neu
	if total == 0 {
		return Sentiment{Positive: 0.5, Negative: 0.3, Neutral: 0.2}
	}
	return Sentiment{
		Positive: float64(pos) / float64(total),
		Negative: float64(neg) / float64(total),
		Neutral:  float64(neu) / float64(total),
	}
}

// Summary is computed once when a session ends.
type Summary struct {
	SessionID        string          `json:"session_id"`
	UserID           string          `json:"user_id,omitempty"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	DurationMinutes  float64         `json:"duration_minutes"`
	MessageCount     int             `json:"message_count"`
	Profile          profile.Profile `json:"customer_profile"`
	StagesCovered    []stage.Stage   `json:"stages_covered"`
	FinalStage       stage.Stage     `json:"final_stage"`
	KeyTopics        []string        `json:"key_topics"`
	ObjectionsRaised []string        `json:"objections_raised"`
	Outcome          string          `json:"outcome"`
	NextSteps        []string        `json:"next_steps"`
	Sentiment        Sentiment       `json:"sentiment_analysis"`
	SuggestionsMade  int             `json:"suggestions_made"`
	Performance      Performance     `json:"performance"`
}

// SummaryInput is the final state of a session.
type SummaryInput struct {
	SessionID   string
	UserID      string
	Start       time.Time
	End         time.Time
	History     []conversation.Message
	Profile     profile.Profile
	FinalStage  stage.Stage
	Suggestions int
}

// Summarize builds the end-of-call summary.
func Summarize(in SummaryInput) Summary {
	outcome := Outcome(in.History)
	covered := StagesCovered(in.History)
	if len(covered) == 0 {
		covered = []stage.Stage{in.FinalStage}
	}
	return Summary{
		SessionID:        in.SessionID,
		UserID:           in.UserID,
		StartTime:        in.Start,
		EndTime:          in.End,
		DurationMinutes:  in.End.Sub(in.Start).Minutes(),
		MessageCount:     len(in.History),
		Profile:          in.Profile.Clone(),
		StagesCovered:    covered,
		FinalStage:       in.FinalStage,
		KeyTopics:        KeyTopics(in.History),
		ObjectionsRaised: Objections(in.History),
		Outcome:          outcome,
		NextSteps:        NextSteps(outcome),
		Sentiment:        AnalyzeSentiment(in.History),
		SuggestionsMade:  in.Suggestions,
		Performance:      Measure(in.SessionID, in.History, in.Start, in.End),
	}
}
