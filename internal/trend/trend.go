// Package trend classifies the direction of date-ordered numeric signals.
package trend

import (
	"github.com/opensource-edu/kestrel/internal/domain"
)

// Classifier splits an ordered sequence in half and compares half-averages.
type Classifier struct {
	// deltaThreshold is the half-average delta beyond which the sequence
	// counts as improving or declining.
	deltaThreshold float64
}

// NewClassifier creates a classifier with the given delta threshold.
// A non-positive threshold falls back to the configured default.
func NewClassifier(deltaThreshold float64) *Classifier {
	if deltaThreshold <= 0 {
		deltaThreshold = domain.DefaultTrendDeltaThreshold
	}
	return &Classifier{deltaThreshold: deltaThreshold}
}

// Classify returns the trend of a date-ordered sequence of values.
// Fewer than 2 data points yield a stable trend. Otherwise the sequence is
// split into [0, n/2) and [n/2, n) and the half-averages compared.
func (c *Classifier) Classify(values []float64) domain.Trend {
	if len(values) < 2 {
		return domain.TrendStable
	}

	mid := len(values) / 2
	delta := mean(values[mid:]) - mean(values[:mid])

	switch {
	case delta > c.deltaThreshold:
		return domain.TrendImproving
	case delta < -c.deltaThreshold:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}

// ClassifyGrades extracts scores from sorted grades and classifies them.
func (c *Classifier) ClassifyGrades(grades []domain.Grade) domain.Trend {
	values := make([]float64, len(grades))
	for i, g := range grades {
		values[i] = g.Score
	}
	return c.Classify(values)
}

// ClassifyBehavior classifies sorted behavior events by their polarity
// signal, since events carry no numeric score of their own.
func (c *Classifier) ClassifyBehavior(events []domain.BehaviorEvent) domain.Trend {
	values := make([]float64, len(events))
	for i, e := range events {
		values[i] = e.Polarity()
	}
	return c.Classify(values)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
