package domain

// AlertPattern combines several alert rules into one named intervention
// pattern, e.g. "chronic absenteeism" or "academic collapse". A pattern
// triggers when the weighted sum of its rule scores crosses the
// threshold.
type AlertPattern struct {
	ID          string `json:"id"`
	ClassID     string `json:"classId"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Rules          []PatternRuleWeight `json:"rules"`
	AlertThreshold float64             `json:"alertThreshold"`
	Enabled        bool                `json:"enabled"`
}

// PatternRuleWeight ties a rule into a pattern with its weight.
type PatternRuleWeight struct {
	RuleID string  `json:"ruleId"`
	Weight float64 `json:"weight"`
}

// PatternResult is the outcome of evaluating one pattern.
type PatternResult struct {
	PatternID   string  `json:"patternId"`
	PatternName string  `json:"patternName"`
	Score       float64 `json:"score"`
	Threshold   float64 `json:"threshold"`
	Triggered   bool    `json:"triggered"`

	Contributions []RuleContribution `json:"contributions,omitempty"`
	Rules         []AlertResult      `json:"rules,omitempty"`
	ProcessMs     int64              `json:"processMs"`
}

// RuleContribution records how much one rule added to a pattern score.
type RuleContribution struct {
	RuleID       string  `json:"ruleId"`
	RuleScore    float64 `json:"ruleScore"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}
