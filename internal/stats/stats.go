// Package stats derives the full per-student profile from raw grade and
// behavior records. It is the orchestration layer over the trend, risk
// and correlation components and is the only place the pieces meet.
package stats

import (
	"math"
	"sort"

	"github.com/opensource-edu/kestrel/internal/correlation"
	"github.com/opensource-edu/kestrel/internal/domain"
	"github.com/opensource-edu/kestrel/internal/risk"
	"github.com/opensource-edu/kestrel/internal/trend"
)

// Engine computes derived student profiles. It is stateless apart from
// its configuration and safe for concurrent use.
type Engine struct {
	settings   domain.RiskSettings
	trends     *trend.Classifier
	scorer     *risk.Scorer
	correlator *correlation.Detector
}

// NewEngine builds an engine; zero-valued settings fields fall back to
// the documented defaults.
func NewEngine(settings domain.RiskSettings) *Engine {
	settings = settings.WithDefaults()
	return &Engine{
		settings:   settings,
		trends:     trend.NewClassifier(settings.TrendDeltaThreshold),
		scorer:     risk.NewScorer(settings),
		correlator: correlation.NewDetector(settings.MinGradeThreshold, settings.CorrelationWindowDays),
	}
}

// CalculateStudentStats derives the full profile for one student. The
// input slices are never mutated; the returned student carries sorted
// copies.
func (e *Engine) CalculateStudentStats(raw domain.RawStudent) domain.Student {
	grades := sortedGrades(raw.Grades)
	events := sortedEvents(raw.BehaviorEvents)

	return domain.Student{
		ID:             raw.ID,
		Name:           raw.Name,
		Grades:         grades,
		BehaviorEvents: events,
		StudentStats:   e.derive(grades, events),
		Correlations:   e.correlator.Detect(grades, events),
	}
}

// ComputeStudentStatsFromData is the bare-arrays convenience form. It
// is equivalent to CalculateStudentStats over a student with empty id
// and name, minus the correlations and sorted copies.
func (e *Engine) ComputeStudentStatsFromData(grades []domain.Grade, events []domain.BehaviorEvent) domain.StudentStats {
	return e.derive(sortedGrades(grades), sortedEvents(events))
}

// derive expects its inputs already sorted ascending by date.
func (e *Engine) derive(grades []domain.Grade, events []domain.BehaviorEvent) domain.StudentStats {
	stats := domain.StudentStats{
		AverageScore: WeightedAverage(grades),
	}
	for _, ev := range events {
		switch ev.Category {
		case domain.CategoryNegative:
			stats.NegativeCount++
		case domain.CategoryPositive:
			stats.PositiveCount++
		}
	}
	stats.GradeTrend = e.trends.ClassifyGrades(grades)
	stats.BehaviorTrend = e.trends.ClassifyBehavior(events)
	stats.RiskScore, stats.RiskLevel = e.scorer.Score(risk.Input{
		AverageScore:  stats.AverageScore,
		NegativeCount: stats.NegativeCount,
		PositiveCount: stats.PositiveCount,
		GradeTrend:    stats.GradeTrend,
		BehaviorTrend: stats.BehaviorTrend,
	})
	return stats
}

// WeightedAverage returns sum(score*weight)/sum(weight), rounded to one
// decimal. When the total weight is zero it degrades to the unweighted
// mean; an empty slice yields 0 rather than NaN.
func WeightedAverage(grades []domain.Grade) float64 {
	if len(grades) == 0 {
		return 0
	}
	var weighted, total float64
	for _, g := range grades {
		weighted += g.Score * g.Weight
		total += g.Weight
	}
	if total == 0 {
		var sum float64
		for _, g := range grades {
			sum += g.Score
		}
		return round1(sum / float64(len(grades)))
	}
	return round1(weighted / total)
}

func sortedGrades(grades []domain.Grade) []domain.Grade {
	out := make([]domain.Grade, len(grades))
	copy(out, grades)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func sortedEvents(events []domain.BehaviorEvent) []domain.BehaviorEvent {
	out := make([]domain.BehaviorEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
