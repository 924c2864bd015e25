// Package correlation pairs low grades with temporally nearby behavior
// events so reports can explain why a grade dipped.
package correlation

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-edu/kestrel/internal/domain"
)

// Detector scans a student's behavior events around each failing grade.
type Detector struct {
	minGrade   float64
	windowDays int
}

// NewDetector builds a detector with the given grade floor and day
// window. Non-positive values fall back to the defaults.
func NewDetector(minGrade float64, windowDays int) *Detector {
	if minGrade <= 0 {
		minGrade = domain.DefaultMinGradeThreshold
	}
	if windowDays <= 0 {
		windowDays = domain.DefaultCorrelationWindowDays
	}
	return &Detector{minGrade: minGrade, windowDays: windowDays}
}

// Detect returns one Correlation per grade under the floor, in the
// order the grades appear in the input slice. Grades with no nearby
// events still produce an entry so reports can show the gap.
func (d *Detector) Detect(grades []domain.Grade, events []domain.BehaviorEvent) []domain.Correlation {
	var out []domain.Correlation
	for _, g := range grades {
		if g.Score >= d.minGrade {
			continue
		}
		nearby := d.eventsNear(g.Date, events)
		out = append(out, domain.Correlation{
			Date:         g.Date,
			Grade:        g.Score,
			NearbyEvents: nearby,
			Description:  describe(g, nearby, d.windowDays),
		})
	}
	return out
}

// eventsNear collects events whose date falls within the window on
// either side of the grade date, inclusive. Dates are compared at day
// granularity so a grade and an event on the same calendar day always
// match regardless of time of day.
func (d *Detector) eventsNear(date time.Time, events []domain.BehaviorEvent) []domain.BehaviorEvent {
	var nearby []domain.BehaviorEvent
	for _, e := range events {
		if abs(daysBetween(date, e.Date)) <= d.windowDays {
			nearby = append(nearby, e)
		}
	}
	return nearby
}

func describe(g domain.Grade, nearby []domain.BehaviorEvent, windowDays int) string {
	if len(nearby) == 0 {
		return fmt.Sprintf("score %.0f in %s with no behavior events within %d days", g.Score, g.Subject, windowDays)
	}

	var negative, positive, neutral int
	for _, e := range nearby {
		switch e.Category {
		case domain.CategoryNegative:
			negative++
		case domain.CategoryPositive:
			positive++
		default:
			neutral++
		}
	}

	parts := make([]string, 0, 3)
	if negative > 0 {
		parts = append(parts, fmt.Sprintf("%d negative", negative))
	}
	if positive > 0 {
		parts = append(parts, fmt.Sprintf("%d positive", positive))
	}
	if neutral > 0 {
		parts = append(parts, fmt.Sprintf("%d neutral", neutral))
	}
	return fmt.Sprintf("score %.0f in %s with %s event(s) within %d days",
		g.Score, g.Subject, strings.Join(parts, ", "), windowDays)
}

func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
