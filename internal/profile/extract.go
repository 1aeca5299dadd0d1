package profile

import (
	"strings"

	"github.com/MikeSquared-Agency/closer/internal/keywords"
)

var (
	painIndicators     = []string{"problem", "issue", "challenge", "difficult", "struggle", "frustrating"}
	interestIndicators = []string{"interested", "like", "want", "need", "looking for"}
	budgetIndicators   = []string{"budget", "cost", "price", "expensive", "cheap", "affordable"}
	timelineIndicators = []string{"soon", "immediately", "urgent", "asap", "next month", "next quarter"}
	urgentIndicators   = []string{"soon", "immediately", "urgent", "asap"}
)

const excerptLen = 100

// ExtractInsights pulls keyword-level facts out of one customer utterance.
// Pain points and interests are recorded as the first 100 characters of the
// utterance itself.
func ExtractInsights(text string) Insights {
	lower := strings.ToLower(text)
	excerpt := keywords.Truncate(text, excerptLen)

	var in Insights
	if keywords.Any(lower, painIndicators...) {
		in.PainPoints = []string{excerpt}
	}
	if keywords.Any(lower, interestIndicators...) {
		in.Interests = []string{excerpt}
	}
	if keywords.Any(lower, budgetIndicators...) {
		in.BudgetRange = "mentioned"
	}
	if keywords.Any(lower, timelineIndicators...) {
		if keywords.Any(lower, urgentIndicators...) {
			in.Timeline = "urgent"
		} else {
			in.Timeline = "flexible"
		}
	}
	return in
}
