package domain

// AlertRule defines an intervention alert rule configuration.
// Rules run against the derived student profile, not raw records.
type AlertRule struct {
	ID          string `json:"id"`
	ClassID     string `json:"classId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over the derived profile variables
	Expression string `json:"expression"`

	// Outcome bands for score-to-outcome mapping
	Bands []AlertBand `json:"bands"`

	// Rule weight when aggregating into the flag decision
	Weight float64 `json:"weight"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// AlertBand maps a score range to an outcome.
type AlertBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"` // e.g., ".pass", ".watch", ".flag"
	Reason     string   `json:"reason"`
}

// AlertResult is the output of an alert rule evaluation.
type AlertResult struct {
	RuleID    string  `json:"ruleId"`
	ClassID   string  `json:"classId"`
	StudentID string  `json:"studentId"`
	Outcome   string  `json:"outcome"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
	Weight    float64 `json:"weight"`
	ProcessMs int64   `json:"processMs"`
}

// Predefined rule outcomes
const (
	RuleOutcomePass  = ".pass"
	RuleOutcomeWatch = ".watch"
	RuleOutcomeFlag  = ".flag"
	RuleOutcomeError = ".err"
)
