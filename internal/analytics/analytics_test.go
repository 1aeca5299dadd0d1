package analytics

import (
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/stage"
)

var t0 = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func msg(at time.Duration, speaker conversation.Speaker, s stage.Stage, text string) conversation.Message {
	return conversation.Message{Timestamp: t0.Add(at), Speaker: speaker, Stage: s, Text: text}
}

func sampleCall() []conversation.Message {
	c, s := conversation.Customer, conversation.Seller
	return []conversation.Message{
		msg(0, s, stage.Opening, "Hi, thanks for joining today."),
		msg(5*time.Second, c, stage.Opening, "Happy to. Our sales team is growing fast."),
		msg(15*time.Second, s, stage.Discovery, "What is slowing the team down?"),
		msg(30*time.Second, c, stage.Discovery, "Reporting is a problem, it eats our budget."),
		msg(31*time.Second, c, stage.Discovery, "And onboarding takes weeks."),
		msg(2*time.Minute, s, stage.Pitch, "Our solution automates reporting."),
		msg(3*time.Minute, c, stage.Pitch, "That sounds good, let's move forward."),
	}
}

func TestStageProgress(t *testing.T) {
	got := StageProgress(sampleCall())
	want := map[stage.Stage]float64{
		stage.Opening:   0.4,
		stage.Discovery: 0.6,
		stage.Pitch:     0.4,
		stage.Objection: 0,
		stage.Closing:   0,
	}
	for s, w := range want {
		if math.Abs(got[s]-w) > 0.001 {
			t.Errorf("progress[%s] = %f, want %f", s, got[s], w)
		}
	}
}

func TestMeasure(t *testing.T) {
	p := Measure("s-1", sampleCall(), t0, t0.Add(30*time.Minute))

	// customer->seller gaps: 10s, 89s (dropped), 0 more
	if len(p.ResponseTimes) != 1 || math.Abs(p.AvgResponseTime-10) > 0.001 {
		t.Errorf("response times = %v avg %f, want [10]", p.ResponseTimes, p.AvgResponseTime)
	}
	if p.InterruptionCount != 1 {
		t.Errorf("InterruptionCount = %d, want 1", p.InterruptionCount)
	}
	if math.Abs(p.CustomerEngagement-4.0/7.0) > 0.001 {
		t.Errorf("CustomerEngagement = %f", p.CustomerEngagement)
	}
	if math.Abs(p.StageProgressionRate-0.6) > 0.001 {
		t.Errorf("StageProgressionRate = %f, want 0.6", p.StageProgressionRate)
	}
	if p.SuccessfulTransitions != 2 || p.TotalTransitions != 3 {
		t.Errorf("transitions = %d/%d, want 2/3", p.SuccessfulTransitions, p.TotalTransitions)
	}
	wantFlow := (4.0/7.0 + 0.6 + 1.0) / 3
	if math.Abs(p.FlowScore-wantFlow) > 0.001 {
		t.Errorf("FlowScore = %f, want %f", p.FlowScore, wantFlow)
	}
}

func TestMeasureEmpty(t *testing.T) {
	p := Measure("s-1", nil, t0, t0)
	if p.FlowScore != 0 || p.CustomerEngagement != 0 || p.ResponseTimes == nil {
		t.Errorf("empty history = %+v", p)
	}
}

func TestStagesCovered(t *testing.T) {
	got := StagesCovered(sampleCall())
	want := []stage.Stage{stage.Opening, stage.Discovery, stage.Pitch}
	if !slices.Equal(got, want) {
		t.Errorf("StagesCovered = %v, want %v", got, want)
	}
}

func TestKeyTopics(t *testing.T) {
	got := KeyTopics(sampleCall())
	for _, want := range []string{"sales", "budget", "solution"} {
		if !slices.Contains(got, want) {
			t.Errorf("KeyTopics = %v, missing %s", got, want)
		}
	}
	if len(got) > 10 {
		t.Errorf("KeyTopics returned %d topics", len(got))
	}
}

func TestObjections(t *testing.T) {
	long := strings.Repeat("x", 120) + " but that is a concern"
	history := []conversation.Message{
		{Speaker: conversation.Customer, Text: "The price is a concern."},
		{Speaker: conversation.Seller, Text: "I understand the concern."},
		{Speaker: conversation.Customer, Text: long},
	}
	got := Objections(history)
	if len(got) != 2 {
		t.Fatalf("Objections = %v, want 2 entries", got)
	}
	if !strings.HasSuffix(got[1], "...") || len([]rune(got[1])) != 103 {
		t.Errorf("long objection = %q", got[1])
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Sounds good to me", OutcomePositive},
		{"Not for us, maybe later", OutcomeNegative},
		{"Send me more information", OutcomeFollowUpNeeded},
		{"Hmm", OutcomeUnclear},
	}
	for _, tt := range tests {
		history := []conversation.Message{{Speaker: conversation.Customer, Text: tt.text}}
		if got := Outcome(history); got != tt.want {
			t.Errorf("Outcome(%q) = %s, want %s", tt.text, got, tt.want)
		}
		if len(NextSteps(tt.want)) != 4 {
			t.Errorf("NextSteps(%s) should have four entries", tt.want)
		}
	}
}

func TestAnalyzeSentiment(t *testing.T) {
	neutral := AnalyzeSentiment(nil)
	if neutral != (Sentiment{Positive: 0.5, Negative: 0.3, Neutral: 0.2}) {
		t.Errorf("default sentiment = %+v", neutral)
	}
	got := AnalyzeSentiment([]conversation.Message{
		{Speaker: conversation.Customer, Text: "This is great, I love it, but the docs are terrible."},
	})
	if math.Abs(got.Positive-2.0/3.0) > 0.001 || math.Abs(got.Negative-1.0/3.0) > 0.001 {
		t.Errorf("sentiment = %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(SummaryInput{
		SessionID:   "s-1",
		Start:       t0,
		End:         t0.Add(12 * time.Minute),
		History:     sampleCall(),
		FinalStage:  stage.Pitch,
		Suggestions: 4,
	})
	if math.Abs(s.DurationMinutes-12) > 0.001 {
		t.Errorf("DurationMinutes = %f, want 12", s.DurationMinutes)
	}
	if s.MessageCount != 7 || s.SuggestionsMade != 4 {
		t.Errorf("counts = %d messages, %d suggestions", s.MessageCount, s.SuggestionsMade)
	}
	if s.Outcome != OutcomePositive {
		t.Errorf("Outcome = %s, want positive", s.Outcome)
	}
	if s.FinalStage != stage.Pitch {
		t.Errorf("FinalStage = %s", s.FinalStage)
	}

	empty := Summarize(SummaryInput{SessionID: "s-2", Start: t0, End: t0, FinalStage: stage.Opening})
	if !slices.Equal(empty.StagesCovered, []stage.Stage{stage.Opening}) {
		t.Errorf("empty StagesCovered = %v", empty.StagesCovered)
	}
}
