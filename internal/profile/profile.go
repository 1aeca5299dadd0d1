// Package profile accumulates what the seller has learned about the customer.
package profile

// Profile is the customer knowledge gathered during a call. Empty strings
// mean unknown. Lists keep insertion order and hold no duplicates.
type Profile struct {
	Name              string   `json:"name,omitempty"`
	Company           string   `json:"company,omitempty"`
	Role              string   `json:"role,omitempty"`
	PainPoints        []string `json:"pain_points"`
	Interests         []string `json:"interests"`
	BudgetRange       string   `json:"budget_range,omitempty"`
	DecisionAuthority string   `json:"decision_authority,omitempty"`
	Timeline          string   `json:"timeline,omitempty"`
	Sentiment         string   `json:"sentiment,omitempty"`
}

// Insights is a batch of newly discovered facts. Zero values carry no information.
type Insights struct {
	Name              string   `json:"name,omitempty"`
	Company           string   `json:"company,omitempty"`
	Role              string   `json:"role,omitempty"`
	PainPoints        []string `json:"pain_points,omitempty"`
	Interests         []string `json:"interests,omitempty"`
	BudgetRange       string   `json:"budget_range,omitempty"`
	DecisionAuthority string   `json:"decision_authority,omitempty"`
	Timeline          string   `json:"timeline,omitempty"`
	Sentiment         string   `json:"sentiment,omitempty"`
}

// Empty reports whether the batch carries no facts at all.
func (in Insights) Empty() bool {
	return in.Name == "" && in.Company == "" && in.Role == "" &&
		len(in.PainPoints) == 0 && len(in.Interests) == 0 &&
		in.BudgetRange == "" && in.DecisionAuthority == "" &&
		in.Timeline == "" && in.Sentiment == ""
}

// Merge folds in into p and returns the result; p is not modified.
// List items are appended only when unseen and scalars are overwritten only
// by non-empty values, so no known fact is ever lost and merging the same
// batch twice is the same as merging it once.
func Merge(p Profile, in Insights) Profile {
	out := p.Clone()

	out.Name = overwrite(out.Name, in.Name)
	out.Company = overwrite(out.Company, in.Company)
	out.Role = overwrite(out.Role, in.Role)
	out.BudgetRange = overwrite(out.BudgetRange, in.BudgetRange)
	out.DecisionAuthority = overwrite(out.DecisionAuthority, in.DecisionAuthority)
	out.Timeline = overwrite(out.Timeline, in.Timeline)
	out.Sentiment = overwrite(out.Sentiment, in.Sentiment)

	out.PainPoints = appendUnseen(out.PainPoints, in.PainPoints)
	out.Interests = appendUnseen(out.Interests, in.Interests)

	return out
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	out := p
	out.PainPoints = append([]string{}, p.PainPoints...)
	out.Interests = append([]string{}, p.Interests...)
	return out
}

func overwrite(current, next string) string {
	if next != "" {
		return next
	}
	return current
}

func appendUnseen(list, items []string) []string {
	for _, item := range items {
		if item == "" || contains(list, item) {
			continue
		}
		list = append(list, item)
	}
	return list
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
