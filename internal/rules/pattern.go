package rules

import (
	"sync"
	"time"

	"github.com/opensource-edu/kestrel/internal/domain"
)

// PatternEngine evaluates intervention patterns over rule results.
// It calculates weighted scores from individual rule results.
type PatternEngine struct {
	mu       sync.RWMutex
	patterns map[string]*domain.AlertPattern // key: patternID
}

// NewPatternEngine creates a new pattern evaluation engine.
func NewPatternEngine() *PatternEngine {
	return &PatternEngine{
		patterns: make(map[string]*domain.AlertPattern),
	}
}

// LoadPatterns loads pattern configurations into the engine.
func (e *PatternEngine) LoadPatterns(patterns []*domain.AlertPattern) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.patterns = make(map[string]*domain.AlertPattern)
	for _, p := range patterns {
		if p.Enabled {
			e.patterns[p.ID] = p
		}
	}
}

// ReloadPatterns clears and reloads patterns (hot reload).
func (e *PatternEngine) ReloadPatterns(patterns []*domain.AlertPattern) {
	e.LoadPatterns(patterns)
}

// GetLoadedPatterns returns currently loaded patterns.
func (e *PatternEngine) GetLoadedPatterns() []*domain.AlertPattern {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]*domain.AlertPattern, 0, len(e.patterns))
	for _, p := range e.patterns {
		result = append(result, p)
	}
	return result
}

// PatternCount returns the number of loaded patterns.
func (e *PatternEngine) PatternCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.patterns)
}

// EvaluatePatterns calculates pattern scores from rule results.
// For each pattern, it sums (rule_score * weight) for matching rules
// and compares the total against the pattern's alert threshold.
func (e *PatternEngine) EvaluatePatterns(ruleResults []domain.AlertResult) []domain.PatternResult {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.patterns) == 0 {
		return nil
	}

	// Build rule score map for O(1) lookups
	ruleScores := make(map[string]float64, len(ruleResults))
	for _, r := range ruleResults {
		ruleScores[r.RuleID] = r.Score
	}

	results := make([]domain.PatternResult, 0, len(e.patterns))

	for _, pattern := range e.patterns {
		result := e.evaluatePattern(pattern, ruleScores)
		result.ProcessMs = time.Since(start).Milliseconds()
		results = append(results, result)
	}

	return results
}

// evaluatePattern calculates the score for a single pattern.
func (e *PatternEngine) evaluatePattern(pattern *domain.AlertPattern, ruleScores map[string]float64) domain.PatternResult {
	result := domain.PatternResult{
		PatternID:     pattern.ID,
		PatternName:   pattern.Name,
		Threshold:     pattern.AlertThreshold,
		Contributions: make([]domain.RuleContribution, 0, len(pattern.Rules)),
	}

	var totalScore float64

	for _, ruleWeight := range pattern.Rules {
		ruleScore, exists := ruleScores[ruleWeight.RuleID]
		if !exists {
			// Rule not evaluated - skip
			continue
		}

		contribution := ruleScore * ruleWeight.Weight
		totalScore += contribution

		result.Contributions = append(result.Contributions, domain.RuleContribution{
			RuleID:       ruleWeight.RuleID,
			RuleScore:    ruleScore,
			Weight:       ruleWeight.Weight,
			Contribution: contribution,
		})
	}

	result.Score = totalScore
	result.Triggered = totalScore >= pattern.AlertThreshold

	return result
}

// EvaluatePattern evaluates a single pattern by ID.
func (e *PatternEngine) EvaluatePattern(patternID string, ruleResults []domain.AlertResult) (*domain.PatternResult, bool) {
	e.mu.RLock()
	pattern, exists := e.patterns[patternID]
	if !exists {
		e.mu.RUnlock()
		return nil, false
	}

	ruleScores := make(map[string]float64, len(ruleResults))
	for _, r := range ruleResults {
		ruleScores[r.RuleID] = r.Score
	}

	// Evaluate while holding lock to prevent data race on pattern pointer
	result := e.evaluatePattern(pattern, ruleScores)
	e.mu.RUnlock()

	return &result, true
}

// GetTriggeredPatterns returns only patterns that exceeded their threshold.
func (e *PatternEngine) GetTriggeredPatterns(ruleResults []domain.AlertResult) []domain.PatternResult {
	all := e.EvaluatePatterns(ruleResults)
	triggered := make([]domain.PatternResult, 0)
	for _, p := range all {
		if p.Triggered {
			triggered = append(triggered, p)
		}
	}
	return triggered
}

// Close cleans up the engine.
func (e *PatternEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.patterns = make(map[string]*domain.AlertPattern)
	return nil
}
