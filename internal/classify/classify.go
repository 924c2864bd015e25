// Package classify decides whether a behavior event records an absence.
//
// Aggregation reports split negative events into absences and everything
// else, but event types are free text entered by teachers. The default
// classifier matches a small keyword list; callers with structured event
// taxonomies can plug in their own implementation.
package classify

import (
	"strings"

	"github.com/opensource-edu/kestrel/internal/domain"
)

// EventClassifier reports whether a behavior event is an absence.
type EventClassifier interface {
	IsAbsence(event domain.BehaviorEvent) bool
}

// KeywordClassifier matches absence keywords against the event type,
// case-insensitively, as substrings. "truan" deliberately catches both
// "truant" and "truancy".
type KeywordClassifier struct {
	keywords []string
}

var defaultKeywords = []string{
	"absence",
	"absent",
	"skip",
	"skipped",
	"truan",
	"no show",
	"missed",
}

// NewKeywordClassifier builds a classifier over the given keywords.
// With no keywords it falls back to the default list.
func NewKeywordClassifier(keywords ...string) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &KeywordClassifier{keywords: lowered}
}

func (c *KeywordClassifier) IsAbsence(event domain.BehaviorEvent) bool {
	eventType := strings.ToLower(event.Type)
	for _, kw := range c.keywords {
		if strings.Contains(eventType, kw) {
			return true
		}
	}
	return false
}
