package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-edu/kestrel/internal/domain"
)

func TestProcessor(t *testing.T) {
	proc := NewProcessor()
	ctx := context.Background()

	t.Run("AllPass", func(t *testing.T) {
		input := &DecisionInput{
			ClassID:   "class-001",
			StudentID: "st-001",
			TraceID:   "trace-001",
			StartTime: time.Now(),
			RuleResults: []domain.AlertResult{
				{RuleID: "rule-1", Score: 0.1, Outcome: domain.RuleOutcomePass, Weight: 1.0},
				{RuleID: "rule-2", Score: 0.2, Outcome: domain.RuleOutcomePass, Weight: 1.0},
				{RuleID: "rule-3", Score: 0.1, Outcome: domain.RuleOutcomePass, Weight: 1.0},
			},
		}

		flag := proc.Process(ctx, input)

		if flag.Status != domain.StatusNoFlag {
			t.Errorf("expected NONE, got %s", flag.Status)
		}
		if flag.Score > proc.FlagThreshold {
			t.Errorf("score %.2f should be below threshold %.2f", flag.Score, proc.FlagThreshold)
		}
		if flag.ClassID != "class-001" {
			t.Errorf("expected classID 'class-001', got '%s'", flag.ClassID)
		}
		if flag.Metadata.TraceID != "trace-001" {
			t.Errorf("expected traceID 'trace-001', got '%s'", flag.Metadata.TraceID)
		}
	})

	t.Run("CriticalFailure", func(t *testing.T) {
		input := &DecisionInput{
			ClassID:   "class-001",
			StudentID: "st-002",
			TraceID:   "trace-002",
			StartTime: time.Now(),
			RuleResults: []domain.AlertResult{
				{RuleID: "rule-1", Score: 0.1, Outcome: domain.RuleOutcomePass, Weight: 1.0},
				{RuleID: "rule-2", Score: 1.0, Outcome: domain.RuleOutcomeFlag, Weight: 1.0},
				{RuleID: "rule-3", Score: 0.1, Outcome: domain.RuleOutcomePass, Weight: 1.0},
			},
		}

		flag := proc.Process(ctx, input)

		if flag.Status != domain.StatusFlag {
			t.Errorf("expected FLAG for critical failure, got %s", flag.Status)
		}
	})

	t.Run("HighAggregateScore", func(t *testing.T) {
		input := &DecisionInput{
			ClassID:   "class-001",
			StudentID: "st-003",
			TraceID:   "trace-003",
			StartTime: time.Now(),
			RuleResults: []domain.AlertResult{
				{RuleID: "rule-1", Score: 0.8, Outcome: domain.RuleOutcomeWatch, Weight: 1.0},
				{RuleID: "rule-2", Score: 0.9, Outcome: domain.RuleOutcomeWatch, Weight: 1.0},
				{RuleID: "rule-3", Score: 0.7, Outcome: domain.RuleOutcomeWatch, Weight: 1.0},
			},
		}

		flag := proc.Process(ctx, input)

		// Average is 0.8, which is above 0.7 threshold
		if flag.Status != domain.StatusFlag {
			t.Errorf("expected FLAG for high score, got %s", flag.Status)
		}
	})

	t.Run("WeightedScoring", func(t *testing.T) {
		input := &DecisionInput{
			ClassID:   "class-001",
			StudentID: "st-004",
			TraceID:   "trace-004",
			StartTime: time.Now(),
			RuleResults: []domain.AlertResult{
				{RuleID: "rule-1", Score: 1.0, Outcome: domain.RuleOutcomeWatch, Weight: 1.0}, // High score, low weight
				{RuleID: "rule-2", Score: 0.1, Outcome: domain.RuleOutcomePass, Weight: 5.0}, // Low score, high weight
			},
		}

		flag := proc.Process(ctx, input)

		// Weighted: (1.0*1.0 + 0.1*5.0) / (1.0 + 5.0) = 1.5/6 = 0.25
		if flag.Score > 0.3 {
			t.Errorf("expected weighted score ~0.25, got %.2f", flag.Score)
		}
		if flag.Status != domain.StatusNoFlag {
			t.Errorf("expected NONE with weighted scoring, got %s", flag.Status)
		}
	})

	t.Run("EmptyResults", func(t *testing.T) {
		input := &DecisionInput{
			ClassID:     "class-001",
			StudentID:   "st-005",
			TraceID:     "trace-005",
			StartTime:   time.Now(),
			RuleResults: []domain.AlertResult{},
		}

		flag := proc.Process(ctx, input)

		if flag.Status != domain.StatusNoFlag {
			t.Errorf("expected NONE for empty results, got %s", flag.Status)
		}
		if flag.Score != 0 {
			t.Errorf("expected score 0, got %.2f", flag.Score)
		}
	})

	t.Run("MetadataPopulated", func(t *testing.T) {
		input := &DecisionInput{
			ClassID:   "class-001",
			StudentID: "st-006",
			TraceID:   "trace-006",
			StatsMs:   3,
			RulesMs:   2,
			StartTime: time.Now(),
			RuleResults: []domain.AlertResult{
				{RuleID: "rule-1", Score: 0.1, Outcome: domain.RuleOutcomePass, Weight: 1.0},
				{RuleID: "rule-2", Score: 0.2, Outcome: domain.RuleOutcomePass, Weight: 1.0},
			},
		}

		flag := proc.Process(ctx, input)

		if flag.Metadata.TraceID != "trace-006" {
			t.Error("missing traceID in metadata")
		}
		if flag.Metadata.RulesEvaluated != 2 {
			t.Errorf("expected 2 rules evaluated, got %d", flag.Metadata.RulesEvaluated)
		}
		if flag.Metadata.StatsMs != 3 || flag.Metadata.RulesMs != 2 {
			t.Error("stage timings not carried into metadata")
		}
		if flag.Metadata.EngineVersion == "" {
			t.Error("missing engine version")
		}
		if flag.Metadata.TotalMs < 0 {
			t.Error("TotalMs should be non-negative")
		}
	})

	t.Run("SyntheticPattern", func(t *testing.T) {
		input := &DecisionInput{
			ClassID:   "class-001",
			StudentID: "st-007",
			TraceID:   "trace-007",
			StartTime: time.Now(),
			RuleResults: []domain.AlertResult{
				{RuleID: "rule-1", Score: 0.5, Outcome: domain.RuleOutcomeWatch, Weight: 1.0},
			},
		}

		flag := proc.Process(ctx, input)

		if len(flag.PatternResults) != 1 {
			t.Fatalf("expected 1 pattern result, got %d", len(flag.PatternResults))
		}

		pr := flag.PatternResults[0]
		if pr.PatternID == "" {
			t.Error("missing pattern ID")
		}
		if len(pr.Rules) != 1 {
			t.Errorf("expected 1 rule in pattern, got %d", len(pr.Rules))
		}
	})
}

func TestPatternDecision(t *testing.T) {
	proc := NewProcessor()
	ctx := context.Background()

	t.Run("Triggered", func(t *testing.T) {
		input := &DecisionInput{
			ClassID:   "class-001",
			StudentID: "st-001",
			StartTime: time.Now(),
			RuleResults: []domain.AlertResult{
				{RuleID: "rule-1", Score: 0.8, Outcome: domain.RuleOutcomeWatch, Weight: 1.0},
			},
			PatternResults: []domain.PatternResult{
				{
					PatternID:   "chronic-absenteeism",
					PatternName: "Chronic absenteeism",
					Score:       0.85,
					Threshold:   0.6,
					Triggered:   true,
				},
			},
		}

		flag := proc.Process(ctx, input)

		if flag.Status != domain.StatusFlag {
			t.Errorf("expected FLAG when pattern triggered, got %s", flag.Status)
		}
		if flag.Score != 0.85 {
			t.Errorf("expected score to be max pattern score 0.85, got %.2f", flag.Score)
		}
	})

	t.Run("NotTriggered", func(t *testing.T) {
		input := &DecisionInput{
			ClassID:   "class-001",
			StudentID: "st-002",
			StartTime: time.Now(),
			RuleResults: []domain.AlertResult{
				{RuleID: "rule-1", Score: 0.3, Outcome: domain.RuleOutcomePass, Weight: 1.0},
			},
			PatternResults: []domain.PatternResult{
				{PatternID: "p-1", Score: 0.4, Threshold: 0.6, Triggered: false},
			},
		}

		flag := proc.Process(ctx, input)

		if flag.Status != domain.StatusNoFlag {
			t.Errorf("expected NONE when no pattern triggered, got %s", flag.Status)
		}
	})

	t.Run("CriticalFailureOverridesPatterns", func(t *testing.T) {
		input := &DecisionInput{
			ClassID:   "class-001",
			StudentID: "st-003",
			StartTime: time.Now(),
			RuleResults: []domain.AlertResult{
				{RuleID: "rule-1", Score: 1.0, Outcome: domain.RuleOutcomeFlag, Weight: 1.0},
			},
			PatternResults: []domain.PatternResult{
				{PatternID: "p-1", Score: 0.3, Threshold: 0.6, Triggered: false},
			},
		}

		flag := proc.Process(ctx, input)

		if flag.Status != domain.StatusFlag {
			t.Errorf("expected FLAG on critical failure despite quiet patterns, got %s", flag.Status)
		}
	})
}

func TestShouldRaise(t *testing.T) {
	raised := &domain.Flag{Status: domain.StatusFlag}
	quiet := &domain.Flag{Status: domain.StatusNoFlag}

	if !ShouldRaise(raised) {
		t.Error("expected true for FLAG")
	}
	if ShouldRaise(quiet) {
		t.Error("expected false for NONE")
	}
}

func TestFlagReasons(t *testing.T) {
	flag := &domain.Flag{
		RuleResults: []domain.AlertResult{
			{Outcome: domain.RuleOutcomePass, Reason: "All good"},
			{Outcome: domain.RuleOutcomeFlag, Reason: "Average below the line"},
			{Outcome: domain.RuleOutcomeWatch, Reason: "Declining trend"},
			{Outcome: domain.RuleOutcomePass, Reason: "Normal"},
		},
	}

	reasons := flag.Reasons()

	if len(reasons) != 2 {
		t.Fatalf("expected 2 reasons, got %d", len(reasons))
	}

	if reasons[0] != "Average below the line" {
		t.Errorf("expected 'Average below the line', got '%s'", reasons[0])
	}
	if reasons[1] != "Declining trend" {
		t.Errorf("expected 'Declining trend', got '%s'", reasons[1])
	}
}

func TestCustomThreshold(t *testing.T) {
	proc := &Processor{
		FlagThreshold:      0.5, // Lower threshold
		UseWeightedScoring: true,
	}

	ctx := context.Background()
	input := &DecisionInput{
		ClassID:   "class-001",
		StudentID: "st-001",
		TraceID:   "trace-001",
		StartTime: time.Now(),
		RuleResults: []domain.AlertResult{
			{RuleID: "rule-1", Score: 0.6, Outcome: domain.RuleOutcomeWatch, Weight: 1.0},
		},
	}

	flag := proc.Process(ctx, input)

	// 0.6 > 0.5 threshold, should flag
	if flag.Status != domain.StatusFlag {
		t.Errorf("expected FLAG with 0.5 threshold, got %s", flag.Status)
	}
}

func TestUnweightedScoring(t *testing.T) {
	proc := &Processor{
		FlagThreshold:      0.7,
		UseWeightedScoring: false, // Disable weighted scoring
	}

	ctx := context.Background()
	input := &DecisionInput{
		ClassID:   "class-001",
		StudentID: "st-001",
		TraceID:   "trace-001",
		StartTime: time.Now(),
		RuleResults: []domain.AlertResult{
			{RuleID: "rule-1", Score: 0.4, Outcome: domain.RuleOutcomeWatch, Weight: 10.0}, // Weight ignored
			{RuleID: "rule-2", Score: 0.4, Outcome: domain.RuleOutcomeWatch, Weight: 1.0},
		},
	}

	flag := proc.Process(ctx, input)

	// Unweighted: (0.4 + 0.4) / 2 = 0.4
	if flag.Score > 0.5 {
		t.Errorf("expected unweighted score ~0.4, got %.2f", flag.Score)
	}
}
