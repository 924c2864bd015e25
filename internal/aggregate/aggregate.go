// Package aggregate builds the class-level reporting views: per-teacher
// grade and behavior summaries, teacher-by-subject pairings, and
// period-over-period insight narration.
//
// Everything here is pure and recomputed from scratch on each call; the
// inputs are already-derived students from the stats engine.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/opensource-edu/kestrel/internal/classify"
	"github.com/opensource-edu/kestrel/internal/domain"
	"github.com/opensource-edu/kestrel/internal/stats"
)

// Sentinel labels for records that omit a teacher or subject.
const (
	UnknownTeacher = "unassigned"
	GeneralSubject = "general"
)

// TeacherGradeSummary is one per-teacher grade row.
type TeacherGradeSummary struct {
	Teacher      string  `json:"teacher"`
	AverageScore float64 `json:"averageScore"`
	GradeCount   int     `json:"gradeCount"`
	StudentCount int     `json:"studentCount"`
}

// TeacherBehaviorSummary is one per-teacher behavior row. Rows with no
// events are dropped from the result.
type TeacherBehaviorSummary struct {
	Teacher            string `json:"teacher"`
	NegativeCount      int    `json:"negativeCount"`
	PositiveCount      int    `json:"positiveCount"`
	AbsenceCount       int    `json:"absenceCount"`
	OtherNegativeCount int    `json:"otherNegativeCount"`
	TotalEvents        int    `json:"totalEvents"`
	StudentCount       int    `json:"studentCount"`
}

// TeacherSubjectPair is one (teacher, subject) row. AverageScore is nil
// when the pair has behavior events but no grades.
type TeacherSubjectPair struct {
	Teacher      string   `json:"teacher"`
	Subject      string   `json:"subject"`
	AverageScore *float64 `json:"averageScore"`
	GradeCount   int      `json:"gradeCount"`
	EventCount   int      `json:"eventCount"`
}

// PeriodSummary is the per-window rollup behind the insight narration.
type PeriodSummary struct {
	Name         string  `json:"name"`
	AverageScore float64 `json:"averageScore"`
	AbsenceCount int     `json:"absenceCount"`
	GradeCount   int     `json:"gradeCount"`
}

// Aggregator groups derived students into the reporting views.
type Aggregator struct {
	classifier classify.EventClassifier
	collator   *collate.Collator
}

// NewAggregator builds an aggregator for the given locale. A nil
// classifier falls back to the default keyword rules.
func NewAggregator(classifier classify.EventClassifier, locale language.Tag) *Aggregator {
	if classifier == nil {
		classifier = classify.NewKeywordClassifier()
	}
	return &Aggregator{
		classifier: classifier,
		collator:   collate.New(locale),
	}
}

// NormalizeTeacher collapses teacher-name variants to a canonical short
// form: whitespace is trimmed and collapsed, and names with three or
// more tokens keep only the last two, so "Mrs. Elena V. Petrova" and
// "V. Petrova" land in the same bucket. Empty names map to a sentinel.
func NormalizeTeacher(name string) string {
	tokens := strings.Fields(name)
	if len(tokens) == 0 {
		return UnknownTeacher
	}
	if len(tokens) >= 3 {
		tokens = tokens[len(tokens)-2:]
	}
	return strings.Join(tokens, " ")
}

func normalizeSubject(subject string) string {
	s := strings.Join(strings.Fields(subject), " ")
	if s == "" {
		return GeneralSubject
	}
	return s
}

// TeacherGradeSummaries groups all grades by normalized teacher name
// and returns rows sorted descending by average score.
func (a *Aggregator) TeacherGradeSummaries(students []domain.Student) []TeacherGradeSummary {
	grades := make(map[string][]domain.Grade)
	studentsPer := make(map[string]map[string]struct{})

	for _, st := range students {
		for _, g := range st.Grades {
			teacher := NormalizeTeacher(g.Teacher)
			grades[teacher] = append(grades[teacher], g)
			if studentsPer[teacher] == nil {
				studentsPer[teacher] = make(map[string]struct{})
			}
			studentsPer[teacher][st.ID] = struct{}{}
		}
	}

	out := make([]TeacherGradeSummary, 0, len(grades))
	for teacher, gs := range grades {
		out = append(out, TeacherGradeSummary{
			Teacher:      teacher,
			AverageScore: stats.WeightedAverage(gs),
			GradeCount:   len(gs),
			StudentCount: len(studentsPer[teacher]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AverageScore > out[j].AverageScore
	})
	return out
}

// TeacherBehaviorSummaries groups behavior events by normalized teacher
// name, splitting negatives into absences and everything else. Rows
// with zero events are dropped; results are sorted descending by total.
func (a *Aggregator) TeacherBehaviorSummaries(students []domain.Student) []TeacherBehaviorSummary {
	rows := make(map[string]*TeacherBehaviorSummary)
	studentsPer := make(map[string]map[string]struct{})

	for _, st := range students {
		for _, e := range st.BehaviorEvents {
			teacher := NormalizeTeacher(e.Teacher)
			row := rows[teacher]
			if row == nil {
				row = &TeacherBehaviorSummary{Teacher: teacher}
				rows[teacher] = row
				studentsPer[teacher] = make(map[string]struct{})
			}
			row.TotalEvents++
			studentsPer[teacher][st.ID] = struct{}{}

			switch e.Category {
			case domain.CategoryNegative:
				row.NegativeCount++
				if a.classifier.IsAbsence(e) {
					row.AbsenceCount++
				} else {
					row.OtherNegativeCount++
				}
			case domain.CategoryPositive:
				row.PositiveCount++
			}
		}
	}

	out := make([]TeacherBehaviorSummary, 0, len(rows))
	for teacher, row := range rows {
		if row.TotalEvents == 0 {
			continue
		}
		row.StudentCount = len(studentsPer[teacher])
		out = append(out, *row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalEvents > out[j].TotalEvents
	})
	return out
}

// TeacherSubjectPairs groups grades and events by (teacher, subject).
// Behavior events filed only under the "general" subject are folded
// into a teacher's single graded subject when that inference is
// unambiguous. Pairs are sorted by teacher then subject under the
// aggregator's locale.
func (a *Aggregator) TeacherSubjectPairs(students []domain.Student) []TeacherSubjectPair {
	type key struct{ teacher, subject string }

	grades := make(map[key][]domain.Grade)
	events := make(map[key]int)
	subjectsPer := make(map[string]map[string]struct{})

	for _, st := range students {
		for _, g := range st.Grades {
			k := key{NormalizeTeacher(g.Teacher), normalizeSubject(g.Subject)}
			grades[k] = append(grades[k], g)
			if subjectsPer[k.teacher] == nil {
				subjectsPer[k.teacher] = make(map[string]struct{})
			}
			subjectsPer[k.teacher][k.subject] = struct{}{}
		}
		for _, e := range st.BehaviorEvents {
			k := key{NormalizeTeacher(e.Teacher), normalizeSubject(e.Subject)}
			events[k]++
		}
	}

	// Fold a bare "general" event bucket into the one subject the
	// teacher actually grades, when there is exactly one.
	for k, count := range events {
		if k.subject != GeneralSubject {
			continue
		}
		if len(grades[k]) > 0 {
			continue
		}
		graded := subjectsPer[k.teacher]
		if len(graded) != 1 {
			continue
		}
		for subject := range graded {
			events[key{k.teacher, subject}] += count
		}
		delete(events, k)
	}

	seen := make(map[key]struct{})
	var out []TeacherSubjectPair
	add := func(k key) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		pair := TeacherSubjectPair{
			Teacher:    k.teacher,
			Subject:    k.subject,
			GradeCount: len(grades[k]),
			EventCount: events[k],
		}
		if gs := grades[k]; len(gs) > 0 {
			avg := stats.WeightedAverage(gs)
			pair.AverageScore = &avg
		}
		out = append(out, pair)
	}
	for k := range grades {
		add(k)
	}
	for k := range events {
		add(k)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := a.collator.CompareString(out[i].Teacher, out[j].Teacher); c != 0 {
			return c < 0
		}
		return a.collator.CompareString(out[i].Subject, out[j].Subject) < 0
	})
	return out
}

// PeriodSummaries rolls the class up into the given reporting windows.
// A grade or event belongs to a window when its date falls within
// [startOfDay(start), endOfDay(end)].
func (a *Aggregator) PeriodSummaries(students []domain.Student, periods []domain.PeriodDefinition) []PeriodSummary {
	out := make([]PeriodSummary, 0, len(periods))
	for _, p := range periods {
		from := startOfDay(p.StartDate)
		to := endOfDay(p.EndDate)

		var windowGrades []domain.Grade
		absences := 0
		for _, st := range students {
			for _, g := range st.Grades {
				if inWindow(g.Date, from, to) {
					windowGrades = append(windowGrades, g)
				}
			}
			for _, e := range st.BehaviorEvents {
				if e.Category == domain.CategoryNegative && a.classifier.IsAbsence(e) && inWindow(e.Date, from, to) {
					absences++
				}
			}
		}

		out = append(out, PeriodSummary{
			Name:         p.Name,
			AverageScore: stats.WeightedAverage(windowGrades),
			AbsenceCount: absences,
			GradeCount:   len(windowGrades),
		})
	}
	return out
}

// PeriodInsights compares the last two reporting windows and narrates
// the shifts. At most two lines come out, one for grades and one for
// absences; fewer than two windows yields none.
func (a *Aggregator) PeriodInsights(students []domain.Student, periods []domain.PeriodDefinition) []string {
	summaries := a.PeriodSummaries(students, periods)
	if len(summaries) < 2 {
		return nil
	}
	prev := summaries[len(summaries)-2]
	curr := summaries[len(summaries)-1]

	var lines []string

	switch {
	case curr.AverageScore-prev.AverageScore > 1:
		lines = append(lines, fmt.Sprintf("Class average improved from %.1f to %.1f between %s and %s.",
			prev.AverageScore, curr.AverageScore, prev.Name, curr.Name))
	case prev.AverageScore-curr.AverageScore > 1 && prev.AverageScore != 0:
		lines = append(lines, fmt.Sprintf("Class average declined from %.1f to %.1f between %s and %s.",
			prev.AverageScore, curr.AverageScore, prev.Name, curr.Name))
	}

	switch {
	case curr.AbsenceCount < prev.AbsenceCount && prev.AbsenceCount > 0:
		lines = append(lines, fmt.Sprintf("Absences fell from %d to %d between %s and %s.",
			prev.AbsenceCount, curr.AbsenceCount, prev.Name, curr.Name))
	case curr.AbsenceCount > prev.AbsenceCount:
		lines = append(lines, fmt.Sprintf("Absences rose from %d to %d between %s and %s.",
			prev.AbsenceCount, curr.AbsenceCount, prev.Name, curr.Name))
	}

	return lines
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
