// Package risk computes the composite intervention risk score.
package risk

import (
	"math"

	"github.com/opensource-edu/kestrel/internal/domain"
)

// Scorer combines grade performance, behavior counts, and trends into a
// single bounded score. Lower scores mean higher risk.
type Scorer struct {
	settings domain.RiskSettings
}

// NewScorer creates a scorer. Zero-valued settings fields get defaults.
func NewScorer(settings domain.RiskSettings) *Scorer {
	return &Scorer{settings: settings.WithDefaults()}
}

// Input holds the derived signals the scorer consumes.
type Input struct {
	AverageScore  float64
	NegativeCount int
	PositiveCount int
	GradeTrend    domain.Trend
	BehaviorTrend domain.Trend
}

// Score computes the composite risk score in [1, 10], rounded to one
// decimal, and the matching risk level.
func (s *Scorer) Score(in Input) (float64, domain.RiskLevel) {
	base := clamp(in.AverageScore/10, 1, 10)

	// Capped linear behavior term: positives raise, negatives lower.
	delta := float64(in.PositiveCount-in.NegativeCount) * s.settings.BehaviorEventWeight
	behavior := clamp(delta, -s.settings.BehaviorAdjustmentCap, s.settings.BehaviorAdjustmentCap)

	score := base + behavior + s.trendAdjustment(in.GradeTrend) + s.trendAdjustment(in.BehaviorTrend)
	score = round1(clamp(score, 1, 10))

	return score, s.Level(score)
}

// Level maps a risk score to its discrete level under the configured
// thresholds: score <= high => high risk, score <= medium => medium risk.
func (s *Scorer) Level(score float64) domain.RiskLevel {
	switch {
	case score <= s.settings.RiskScoreHighThreshold:
		return domain.RiskHigh
	case score <= s.settings.RiskScoreMediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func (s *Scorer) trendAdjustment(t domain.Trend) float64 {
	switch t {
	case domain.TrendImproving:
		return s.settings.TrendAdjustment
	case domain.TrendDeclining:
		return -s.settings.TrendAdjustment
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
