// Package rules provides the CEL-Go based alert rule engine. Rules run
// against the derived student profile, not raw grade records.
package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-edu/kestrel/internal/domain"
)

// Engine compiles and evaluates alert rules.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	absenceGetter AbsenceGetter
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.AlertRule
	Program cel.Program
}

// AbsenceGetter returns the number of absence events recorded for a
// student within the trailing day window.
type AbsenceGetter func(ctx context.Context, classID, studentID string, windowDays int) (int64, error)

// NewEngine creates a new alert rule engine.
func NewEngine(absenceGetter AbsenceGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment over the derived profile variables
	env, err := cel.NewEnv(
		cel.Variable("profile", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("avg_score", cel.DoubleType),
		cel.Variable("risk_score", cel.DoubleType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("negative_count", cel.IntType),
		cel.Variable("positive_count", cel.IntType),
		cel.Variable("grade_trend", cel.StringType),
		cel.Variable("behavior_trend", cel.StringType),
		cel.Variable("correlation_count", cel.IntType),
		cel.Variable("absence_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		absenceGetter: absenceGetter,
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.AlertRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.AlertRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds the derived profile data for rule evaluation.
type EvaluateInput struct {
	ClassID          string
	StudentID        string
	Stats            domain.StudentStats
	CorrelationCount int

	// AbsenceWindowDays enables the absence_count variable; zero skips
	// the lookup.
	AbsenceWindowDays int

	AdditionalData map[string]any
}

// EvaluateAll evaluates all loaded rules in parallel.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.AlertResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	// Fetch the absence count if a getter is available
	var absenceCount int64
	if e.absenceGetter != nil && input.AbsenceWindowDays > 0 {
		count, err := e.absenceGetter(ctx, input.ClassID, input.StudentID, input.AbsenceWindowDays)
		if err == nil {
			absenceCount = count
		}
	}

	// Prepare CEL activation variables
	activation := map[string]any{
		"profile": map[string]any{
			"student_id":     input.StudentID,
			"avg_score":      input.Stats.AverageScore,
			"risk_score":     input.Stats.RiskScore,
			"risk_level":     string(input.Stats.RiskLevel),
			"grade_trend":    string(input.Stats.GradeTrend),
			"behavior_trend": string(input.Stats.BehaviorTrend),
		},
		"avg_score":         input.Stats.AverageScore,
		"risk_score":        input.Stats.RiskScore,
		"risk_level":        string(input.Stats.RiskLevel),
		"negative_count":    int64(input.Stats.NegativeCount),
		"positive_count":    int64(input.Stats.PositiveCount),
		"grade_trend":       string(input.Stats.GradeTrend),
		"behavior_trend":    string(input.Stats.BehaviorTrend),
		"correlation_count": int64(input.CorrelationCount),
		"absence_count":     absenceCount,
	}

	// Merge additional data
	for k, v := range input.AdditionalData {
		activation[k] = v
	}

	// Parallel evaluation using worker pool pattern
	results := make([]domain.AlertResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation, input)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, input *EvaluateInput) domain.AlertResult {
	start := time.Now()

	result := domain.AlertResult{
		RuleID:    rule.Config.ID,
		ClassID:   input.ClassID,
		StudentID: input.StudentID,
		Weight:    rule.Config.Weight,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Outcome = domain.RuleOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	score := toScore(out)
	result.Score = score

	result.Outcome, result.Reason = matchBand(score, rule.Config.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score.
// Bands are evaluated in order: lower inclusive, upper exclusive,
// except when upper is nil (meaning infinity).
func matchBand(score float64, bands []domain.AlertBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		hasUpper := band.UpperLimit != nil
		upper := float64(1e9) // effectively infinity

		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if hasUpper {
			upper = *band.UpperLimit
		}

		if score >= lower {
			if !hasUpper || score < upper {
				return band.Outcome, band.Reason
			}
			if score == upper && band.UpperLimit != nil {
				// Boundary value belongs to the next band.
				continue
			}
		}
	}

	// Default to pass if no band matches
	return domain.RuleOutcomePass, "no matching band"
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.AlertRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.AlertRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
