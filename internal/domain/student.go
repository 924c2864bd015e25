// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// Category classifies a behavior event.
type Category string

const (
	CategoryPositive Category = "positive"
	CategoryNegative Category = "negative"
	CategoryNeutral  Category = "neutral"
)

// IsValid reports whether the category is one of the known variants.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPositive, CategoryNegative, CategoryNeutral:
		return true
	default:
		return false
	}
}

// Trend classifies the direction of a date-ordered signal.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// IsValid reports whether the trend is one of the known variants.
func (t Trend) IsValid() bool {
	switch t {
	case TrendImproving, TrendDeclining, TrendStable:
		return true
	default:
		return false
	}
}

// RiskLevel is the discrete intervention bucket derived from a risk score.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// IsValid reports whether the risk level is one of the known variants.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskHigh, RiskMedium, RiskLow:
		return true
	default:
		return false
	}
}

// Grade is an immutable graded-assignment record.
type Grade struct {
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	Subject     string    `json:"subject"`
	Teacher     string    `json:"teacher"`
	Assignment  string    `json:"assignment"`
	Date        time.Time `json:"date"`

	// Score is on a 0-100 scale; Weight is non-negative.
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// BehaviorEvent is an immutable classroom behavior record.
type BehaviorEvent struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	Date        time.Time `json:"date"`

	// Type is a free-text label; Category is the closed classification.
	Type     string   `json:"type"`
	Category Category `json:"category"`

	Teacher       string `json:"teacher"`
	Subject       string `json:"subject"`
	LessonNumber  int    `json:"lessonNumber"`
	Justification string `json:"justification"`
	Comment       string `json:"comment"`
}

// Polarity maps the event category to a numeric trend signal.
func (e BehaviorEvent) Polarity() float64 {
	switch e.Category {
	case CategoryPositive:
		return 1
	case CategoryNegative:
		return -1
	default:
		return 0
	}
}

// Correlation pairs a low grade with temporally nearby behavior events.
type Correlation struct {
	Date         time.Time       `json:"date"`
	Grade        float64         `json:"grade"`
	NearbyEvents []BehaviorEvent `json:"nearbyEvents"`
	Description  string          `json:"description"`
}

// RawStudent is the input shape supplied by record loaders.
// Extra fields on the wire are tolerated; only these are read.
type RawStudent struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Grades         []Grade         `json:"grades"`
	BehaviorEvents []BehaviorEvent `json:"behaviorEvents"`
}

// StudentStats holds the derived metrics for one student.
type StudentStats struct {
	AverageScore  float64   `json:"averageScore"`
	NegativeCount int       `json:"negativeCount"`
	PositiveCount int       `json:"positiveCount"`
	GradeTrend    Trend     `json:"gradeTrend"`
	BehaviorTrend Trend     `json:"behaviorTrend"`
	RiskScore     float64   `json:"riskScore"`
	RiskLevel     RiskLevel `json:"riskLevel"`
}

// Student is the fully derived per-student profile.
// Grades and BehaviorEvents are copies of the input, sorted ascending by
// date with a stable tie-break; the caller's slices are never mutated.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Grades         []Grade         `json:"grades"`
	BehaviorEvents []BehaviorEvent `json:"behaviorEvents"`

	StudentStats

	Correlations []Correlation `json:"correlations"`
}

// PeriodDefinition names a reporting window for period insights.
type PeriodDefinition struct {
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// ClassGroup is a named collection of derived students, consumed by the
// aggregation layer.
type ClassGroup struct {
	Name        string    `json:"name"`
	Students    []Student `json:"students"`
	LastUpdated time.Time `json:"lastUpdated"`
}
