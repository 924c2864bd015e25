package domain

import (
	"time"
)

// Flag represents the complete flag decision for one student profile.
type Flag struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"classId"`
	StudentID string    `json:"studentId"`
	Status    string    `json:"status"` // "FLAG" or "NONE"
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`

	// Rule and pattern results
	RuleResults    []AlertResult   `json:"ruleResults"`
	PatternResults []PatternResult `json:"patternResults,omitempty"`

	// Processing metadata
	Metadata FlagMetadata `json:"metadata"`
}

// FlagMetadata contains processing information.
type FlagMetadata struct {
	TraceID           string `json:"traceId"`
	StatsMs           int64  `json:"statsMs"`
	RulesMs           int64  `json:"rulesMs"`
	DecisionMs        int64  `json:"decisionMs"`
	TotalMs           int64  `json:"totalMs"`
	RulesEvaluated    int    `json:"rulesEvaluated"`
	PatternsEvaluated int    `json:"patternsEvaluated"`
	EngineVersion     string `json:"engineVersion"`
}

// Decision status constants
const (
	StatusFlag   = "FLAG" // Flagged - student needs intervention review
	StatusNoFlag = "NONE" // No flag - profile within configured bounds
)

// Reasons extracts human-readable reasons from the triggered rules.
func (f *Flag) Reasons() []string {
	var reasons []string
	for _, r := range f.RuleResults {
		if r.Outcome == RuleOutcomeFlag || r.Outcome == RuleOutcomeWatch {
			if r.Reason != "" {
				reasons = append(reasons, r.Reason)
			}
		}
	}
	return reasons
}
