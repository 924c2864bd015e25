// Package alerts aggregates rule and pattern results into the final
// per-student flag decision.
package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-edu/kestrel/internal/domain"
)

// EngineVersion is stamped into every flag's metadata.
const EngineVersion = "kestrel-1.0"

// Processor aggregates rule results and produces a final flag decision.
type Processor struct {
	// Threshold above which a student profile is flagged
	FlagThreshold float64

	// Weight configuration for rule aggregation
	UseWeightedScoring bool
}

// NewProcessor creates a new processor with default settings.
func NewProcessor() *Processor {
	return &Processor{
		FlagThreshold:      0.7,  // Default threshold
		UseWeightedScoring: true, // Use rule weights in scoring
	}
}

// DecisionInput contains all data needed for a flag decision.
type DecisionInput struct {
	ClassID        string
	StudentID      string
	TraceID        string
	RuleResults    []domain.AlertResult
	PatternResults []domain.PatternResult // From PatternEngine evaluation
	StatsMs        int64
	RulesMs        int64
	StartTime      time.Time
}

// Process evaluates rule results and produces a final flag decision.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.Flag {
	start := time.Now()

	flag := &domain.Flag{
		ID:          uuid.New().String(),
		ClassID:     input.ClassID,
		StudentID:   input.StudentID,
		Timestamp:   time.Now().UTC(),
		RuleResults: input.RuleResults,
	}

	// Aggregate rule results
	aggResult := p.aggregate(input.RuleResults)

	// Use pattern results if provided by PatternEngine
	if len(input.PatternResults) > 0 {
		flag.PatternResults = input.PatternResults

		anyPatternTriggered := false
		maxPatternScore := 0.0
		for _, pr := range input.PatternResults {
			if pr.Triggered {
				anyPatternTriggered = true
			}
			if pr.Score > maxPatternScore {
				maxPatternScore = pr.Score
			}
		}

		// Decision based on pattern results
		if anyPatternTriggered || aggResult.HasCriticalFailure {
			flag.Status = domain.StatusFlag
		} else {
			flag.Status = domain.StatusNoFlag
		}

		// Use highest pattern score as the flag score
		flag.Score = maxPatternScore
	} else {
		// Fallback: single aggregated score
		if aggResult.HasCriticalFailure || aggResult.AggregateScore >= p.FlagThreshold {
			flag.Status = domain.StatusFlag
		} else {
			flag.Status = domain.StatusNoFlag
		}

		flag.Score = aggResult.AggregateScore

		flag.PatternResults = p.buildPatternResults(input.RuleResults, aggResult)
	}

	decisionMs := time.Since(start).Milliseconds()
	totalMs := time.Since(input.StartTime).Milliseconds()

	flag.Metadata = domain.FlagMetadata{
		TraceID:           input.TraceID,
		StatsMs:           input.StatsMs,
		RulesMs:           input.RulesMs,
		DecisionMs:        decisionMs,
		TotalMs:           totalMs,
		RulesEvaluated:    len(input.RuleResults),
		PatternsEvaluated: len(input.PatternResults),
		EngineVersion:     EngineVersion,
	}

	return flag
}

// AggregateResult holds the aggregated scoring results.
type AggregateResult struct {
	AggregateScore     float64
	TotalWeight        float64
	RulesTriggered     int
	HasCriticalFailure bool
}

// aggregate computes the weighted aggregate score from rule results.
func (p *Processor) aggregate(results []domain.AlertResult) *AggregateResult {
	if len(results) == 0 {
		return &AggregateResult{}
	}

	agg := &AggregateResult{}

	for _, r := range results {
		weight := r.Weight
		if weight <= 0 {
			weight = 1.0
		}

		// Flag outcomes always force a decision review
		if r.Outcome == domain.RuleOutcomeFlag {
			agg.HasCriticalFailure = true
			agg.RulesTriggered++
		} else if r.Outcome == domain.RuleOutcomeWatch {
			agg.RulesTriggered++
		}

		if p.UseWeightedScoring {
			agg.AggregateScore += r.Score * weight
			agg.TotalWeight += weight
		} else {
			agg.AggregateScore += r.Score
			agg.TotalWeight += 1.0
		}
	}

	// Normalize score
	if agg.TotalWeight > 0 {
		agg.AggregateScore = agg.AggregateScore / agg.TotalWeight
	}

	return agg
}

// buildPatternResults groups rules into a single synthetic pattern when
// no pattern engine ran.
func (p *Processor) buildPatternResults(rules []domain.AlertResult, agg *AggregateResult) []domain.PatternResult {
	if len(rules) == 0 {
		return nil
	}

	return []domain.PatternResult{
		{
			PatternID: "intervention-screening-001",
			Score:     agg.AggregateScore,
			Threshold: p.FlagThreshold,
			Triggered: agg.AggregateScore >= p.FlagThreshold || agg.HasCriticalFailure,
			Rules:     rules,
		},
	}
}

// ShouldRaise returns true if the flag should be published to reviewers.
func ShouldRaise(flag *domain.Flag) bool {
	return flag.Status == domain.StatusFlag
}
