package domain

// RiskSettings holds the tunable constants of the scoring pipeline.
// The zero value of any field means "use the default"; the merge happens
// once at the boundary via WithDefaults, never inside the computation.
type RiskSettings struct {
	// MinGradeThreshold is the floor below which a grade produces a
	// correlation entry.
	MinGradeThreshold float64 `json:"minGradeThreshold"`

	// Risk level thresholds. Lower score = higher risk:
	// score <= high => "high"; score <= medium => "medium"; else "low".
	// Callers must keep RiskScoreHighThreshold < RiskScoreMediumThreshold.
	RiskScoreHighThreshold   float64 `json:"riskScoreHighThreshold"`
	RiskScoreMediumThreshold float64 `json:"riskScoreMediumThreshold"`

	// CorrelationWindowDays is the half-width of the event proximity
	// window around a low grade, inclusive on both sides.
	CorrelationWindowDays int `json:"correlationWindowDays"`

	// BehaviorEventWeight scales (positive - negative) event counts into a
	// score adjustment; BehaviorAdjustmentCap bounds that adjustment.
	BehaviorEventWeight   float64 `json:"behaviorEventWeight"`
	BehaviorAdjustmentCap float64 `json:"behaviorAdjustmentCap"`

	// TrendAdjustment is added per improving trend axis and subtracted per
	// declining one.
	TrendAdjustment float64 `json:"trendAdjustment"`

	// TrendDeltaThreshold is the half-average delta beyond which a
	// sequence counts as improving or declining.
	TrendDeltaThreshold float64 `json:"trendDeltaThreshold"`
}

// Default values for RiskSettings.
const (
	DefaultMinGradeThreshold        = 60.0
	DefaultRiskScoreHighThreshold   = 4.0
	DefaultRiskScoreMediumThreshold = 7.0
	DefaultCorrelationWindowDays    = 3
	DefaultBehaviorEventWeight      = 0.4
	DefaultBehaviorAdjustmentCap    = 2.5
	DefaultTrendAdjustment          = 0.75
	DefaultTrendDeltaThreshold      = 3.0
)

// DefaultRiskSettings returns the fully populated default configuration.
func DefaultRiskSettings() RiskSettings {
	return RiskSettings{
		MinGradeThreshold:        DefaultMinGradeThreshold,
		RiskScoreHighThreshold:   DefaultRiskScoreHighThreshold,
		RiskScoreMediumThreshold: DefaultRiskScoreMediumThreshold,
		CorrelationWindowDays:    DefaultCorrelationWindowDays,
		BehaviorEventWeight:      DefaultBehaviorEventWeight,
		BehaviorAdjustmentCap:    DefaultBehaviorAdjustmentCap,
		TrendAdjustment:          DefaultTrendAdjustment,
		TrendDeltaThreshold:      DefaultTrendDeltaThreshold,
	}
}

// WithDefaults fills zero-valued fields from the default table.
func (s RiskSettings) WithDefaults() RiskSettings {
	def := DefaultRiskSettings()
	if s.MinGradeThreshold <= 0 {
		s.MinGradeThreshold = def.MinGradeThreshold
	}
	if s.RiskScoreHighThreshold <= 0 {
		s.RiskScoreHighThreshold = def.RiskScoreHighThreshold
	}
	if s.RiskScoreMediumThreshold <= 0 {
		s.RiskScoreMediumThreshold = def.RiskScoreMediumThreshold
	}
	if s.CorrelationWindowDays <= 0 {
		s.CorrelationWindowDays = def.CorrelationWindowDays
	}
	if s.BehaviorEventWeight <= 0 {
		s.BehaviorEventWeight = def.BehaviorEventWeight
	}
	if s.BehaviorAdjustmentCap <= 0 {
		s.BehaviorAdjustmentCap = def.BehaviorAdjustmentCap
	}
	if s.TrendAdjustment <= 0 {
		s.TrendAdjustment = def.TrendAdjustment
	}
	if s.TrendDeltaThreshold <= 0 {
		s.TrendDeltaThreshold = def.TrendDeltaThreshold
	}
	return s
}
