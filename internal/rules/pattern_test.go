package rules

import (
	"testing"

	"github.com/opensource-edu/kestrel/internal/domain"
)

func testPattern() *domain.AlertPattern {
	return &domain.AlertPattern{
		ID:   "academic-collapse",
		Name: "Academic collapse",
		Rules: []domain.PatternRuleWeight{
			{RuleID: "low-average", Weight: 0.6},
			{RuleID: "declining-grades", Weight: 0.4},
		},
		AlertThreshold: 0.7,
		Enabled:        true,
	}
}

func TestPatternEngineLoad(t *testing.T) {
	engine := NewPatternEngine()
	defer engine.Close()

	engine.LoadPatterns([]*domain.AlertPattern{
		testPattern(),
		{ID: "disabled", Enabled: false},
	})

	if engine.PatternCount() != 1 {
		t.Errorf("expected 1 pattern, got %d", engine.PatternCount())
	}
}

func TestEvaluatePatternsTriggered(t *testing.T) {
	engine := NewPatternEngine()
	defer engine.Close()
	engine.LoadPatterns([]*domain.AlertPattern{testPattern()})

	results := engine.EvaluatePatterns([]domain.AlertResult{
		{RuleID: "low-average", Score: 1.0},
		{RuleID: "declining-grades", Score: 1.0},
	})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Score != 1.0 {
		t.Errorf("expected score 1.0, got %.2f", r.Score)
	}
	if !r.Triggered {
		t.Error("pattern should trigger above its threshold")
	}
	if len(r.Contributions) != 2 {
		t.Errorf("expected 2 contributions, got %d", len(r.Contributions))
	}
}

func TestEvaluatePatternsBelowThreshold(t *testing.T) {
	engine := NewPatternEngine()
	defer engine.Close()
	engine.LoadPatterns([]*domain.AlertPattern{testPattern()})

	results := engine.EvaluatePatterns([]domain.AlertResult{
		{RuleID: "low-average", Score: 1.0}, // 0.6 < 0.7
	})

	if results[0].Triggered {
		t.Errorf("pattern should not trigger at %.2f", results[0].Score)
	}
}

func TestEvaluatePatternsSkipsMissingRules(t *testing.T) {
	engine := NewPatternEngine()
	defer engine.Close()
	engine.LoadPatterns([]*domain.AlertPattern{testPattern()})

	results := engine.EvaluatePatterns([]domain.AlertResult{
		{RuleID: "unrelated", Score: 1.0},
	})

	if results[0].Score != 0 {
		t.Errorf("unmatched rules must not contribute, score=%.2f", results[0].Score)
	}
	if len(results[0].Contributions) != 0 {
		t.Errorf("expected no contributions, got %d", len(results[0].Contributions))
	}
}

func TestGetTriggeredPatterns(t *testing.T) {
	engine := NewPatternEngine()
	defer engine.Close()
	engine.LoadPatterns(BuiltinPatterns())

	triggered := engine.GetTriggeredPatterns([]domain.AlertResult{
		{RuleID: "repeat-absences", Score: 1.0},
		{RuleID: "high-risk-score", Score: 1.0},
	})

	found := false
	for _, p := range triggered {
		if p.PatternID == "chronic-absenteeism" {
			found = true
		}
		if !p.Triggered {
			t.Errorf("pattern %s returned but not triggered", p.PatternID)
		}
	}
	if !found {
		t.Error("chronic-absenteeism should trigger on max rule scores")
	}
}

func TestEvaluateSinglePattern(t *testing.T) {
	engine := NewPatternEngine()
	defer engine.Close()
	engine.LoadPatterns([]*domain.AlertPattern{testPattern()})

	result, ok := engine.EvaluatePattern("academic-collapse", []domain.AlertResult{
		{RuleID: "low-average", Score: 0.5},
	})
	if !ok {
		t.Fatal("pattern should exist")
	}
	if result.Score != 0.3 {
		t.Errorf("expected 0.3, got %.2f", result.Score)
	}

	if _, ok := engine.EvaluatePattern("missing", nil); ok {
		t.Error("missing pattern should report ok=false")
	}
}
