package rules

import "github.com/opensource-edu/kestrel/internal/domain"

func limit(v float64) *float64 { return &v }

// BuiltinRules returns the default alert rule set loaded when a class
// has no rules configured in the database.
func BuiltinRules() []*domain.AlertRule {
	return []*domain.AlertRule{
		{
			ID:          "low-average",
			Name:        "Low grade average",
			Description: "Flags students whose weighted average sits below the passing line",
			Version:     "1.0",
			Expression:  `avg_score < 60.0 ? 1.0 : 0.0`,
			Bands: []domain.AlertBand{
				{UpperLimit: limit(1.0), Outcome: domain.RuleOutcomePass, Reason: "average above passing line"},
				{LowerLimit: limit(1.0), Outcome: domain.RuleOutcomeFlag, Reason: "weighted average below passing line"},
			},
			Weight:  1.0,
			Enabled: true,
		},
		{
			ID:          "high-risk-score",
			Name:        "High composite risk",
			Description: "Flags students whose composite risk score indicates intervention",
			Version:     "1.0",
			Expression:  `risk_score <= 4.0 ? 1.0 : (risk_score <= 7.0 ? 0.5 : 0.0)`,
			Bands: []domain.AlertBand{
				{UpperLimit: limit(0.5), Outcome: domain.RuleOutcomePass, Reason: "risk score in the low band"},
				{LowerLimit: limit(0.5), UpperLimit: limit(1.0), Outcome: domain.RuleOutcomeWatch, Reason: "risk score in the medium band"},
				{LowerLimit: limit(1.0), Outcome: domain.RuleOutcomeFlag, Reason: "risk score in the high band"},
			},
			Weight:  1.5,
			Enabled: true,
		},
		{
			ID:          "declining-grades",
			Name:        "Declining grade trend",
			Description: "Watches students whose recent grades trail their earlier ones",
			Version:     "1.0",
			Expression:  `grade_trend == "declining"`,
			Bands: []domain.AlertBand{
				{UpperLimit: limit(1.0), Outcome: domain.RuleOutcomePass, Reason: "grades steady or improving"},
				{LowerLimit: limit(1.0), Outcome: domain.RuleOutcomeWatch, Reason: "grade trend is declining"},
			},
			Weight:  0.75,
			Enabled: true,
		},
		{
			ID:          "repeat-absences",
			Name:        "Repeat absences",
			Description: "Flags students with repeated absence events in the recent window",
			Version:     "1.0",
			Expression:  `absence_count >= 3 ? 1.0 : (absence_count >= 1 ? 0.5 : 0.0)`,
			Bands: []domain.AlertBand{
				{UpperLimit: limit(0.5), Outcome: domain.RuleOutcomePass, Reason: "no recent absences"},
				{LowerLimit: limit(0.5), UpperLimit: limit(1.0), Outcome: domain.RuleOutcomeWatch, Reason: "isolated recent absences"},
				{LowerLimit: limit(1.0), Outcome: domain.RuleOutcomeFlag, Reason: "repeated absences in the recent window"},
			},
			Weight:  1.25,
			Enabled: true,
		},
	}
}

// BuiltinPatterns returns the default intervention patterns layered on
// top of the builtin rules.
func BuiltinPatterns() []*domain.AlertPattern {
	return []*domain.AlertPattern{
		{
			ID:          "academic-collapse",
			Name:        "Academic collapse",
			Description: "Low average combined with a declining trend",
			Rules: []domain.PatternRuleWeight{
				{RuleID: "low-average", Weight: 0.6},
				{RuleID: "declining-grades", Weight: 0.4},
				{RuleID: "high-risk-score", Weight: 0.3},
			},
			AlertThreshold: 0.7,
			Enabled:        true,
		},
		{
			ID:          "chronic-absenteeism",
			Name:        "Chronic absenteeism",
			Description: "Repeated absences driving overall risk",
			Rules: []domain.PatternRuleWeight{
				{RuleID: "repeat-absences", Weight: 0.7},
				{RuleID: "high-risk-score", Weight: 0.3},
			},
			AlertThreshold: 0.7,
			Enabled:        true,
		},
	}
}
