package risk

import (
	"testing"

	"github.com/opensource-edu/kestrel/internal/domain"
)

func TestHighPerformerScoresLow(t *testing.T) {
	s := NewScorer(domain.RiskSettings{})

	score, level := s.Score(Input{
		AverageScore:  91, // averages of 90 and 92
		GradeTrend:    domain.TrendStable,
		BehaviorTrend: domain.TrendStable,
	})

	if score <= 7 {
		t.Errorf("expected score > 7 for high performer, got %.1f", score)
	}
	if level != domain.RiskLow {
		t.Errorf("expected low risk, got %s", level)
	}
}

func TestStrugglingStudentScoresHigh(t *testing.T) {
	s := NewScorer(domain.RiskSettings{
		RiskScoreHighThreshold:   4,
		RiskScoreMediumThreshold: 7,
	})

	score, level := s.Score(Input{
		AverageScore:  32.5, // averages of 30 and 35
		NegativeCount: 10,
		GradeTrend:    domain.TrendImproving,
		BehaviorTrend: domain.TrendStable,
	})

	if score > 4 {
		t.Errorf("expected score <= 4 for struggling student, got %.1f", score)
	}
	if level != domain.RiskHigh {
		t.Errorf("expected high risk, got %s", level)
	}
}

func TestScoreBounded(t *testing.T) {
	s := NewScorer(domain.RiskSettings{})

	// 20 concentrated negative events and near-zero grades
	score, _ := s.Score(Input{
		AverageScore:  2,
		NegativeCount: 20,
		GradeTrend:    domain.TrendDeclining,
		BehaviorTrend: domain.TrendDeclining,
	})
	if score < 1 || score > 10 {
		t.Errorf("score %.1f out of [1,10]", score)
	}

	score, _ = s.Score(Input{
		AverageScore:  100,
		PositiveCount: 20,
		GradeTrend:    domain.TrendImproving,
		BehaviorTrend: domain.TrendImproving,
	})
	if score < 1 || score > 10 {
		t.Errorf("score %.1f out of [1,10]", score)
	}
}

func TestPositiveEventsRaiseScore(t *testing.T) {
	s := NewScorer(domain.RiskSettings{})

	base, _ := s.Score(Input{AverageScore: 60})
	withPositives, _ := s.Score(Input{AverageScore: 60, PositiveCount: 3})
	withNegatives, _ := s.Score(Input{AverageScore: 60, NegativeCount: 3})

	if withPositives <= base {
		t.Errorf("positive events should raise the score: base %.1f, got %.1f", base, withPositives)
	}
	if withNegatives >= base {
		t.Errorf("negative events should lower the score: base %.1f, got %.1f", base, withNegatives)
	}
}

func TestBehaviorAdjustmentCapped(t *testing.T) {
	s := NewScorer(domain.RiskSettings{})

	five, _ := s.Score(Input{AverageScore: 70, NegativeCount: 10})
	fifty, _ := s.Score(Input{AverageScore: 70, NegativeCount: 50})

	if five != fifty {
		t.Errorf("adjustment should saturate at the cap: 10 events %.1f, 50 events %.1f", five, fifty)
	}
}

func TestTrendAdjustments(t *testing.T) {
	s := NewScorer(domain.RiskSettings{})

	stable, _ := s.Score(Input{AverageScore: 60})
	improving, _ := s.Score(Input{AverageScore: 60, GradeTrend: domain.TrendImproving})
	declining, _ := s.Score(Input{AverageScore: 60, GradeTrend: domain.TrendDeclining})

	if improving != stable+domain.DefaultTrendAdjustment {
		t.Errorf("expected %.2f for improving trend, got %.2f", stable+domain.DefaultTrendAdjustment, improving)
	}
	if declining != stable-domain.DefaultTrendAdjustment {
		t.Errorf("expected %.2f for declining trend, got %.2f", stable-domain.DefaultTrendAdjustment, declining)
	}
}

func TestLevelThresholds(t *testing.T) {
	s := NewScorer(domain.RiskSettings{
		RiskScoreHighThreshold:   4,
		RiskScoreMediumThreshold: 7,
	})

	cases := []struct {
		score float64
		want  domain.RiskLevel
	}{
		{1, domain.RiskHigh},
		{4, domain.RiskHigh},
		{4.1, domain.RiskMedium},
		{7, domain.RiskMedium},
		{7.1, domain.RiskLow},
		{10, domain.RiskLow},
	}

	for _, tc := range cases {
		if got := s.Level(tc.score); got != tc.want {
			t.Errorf("Level(%.1f) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestScoreRoundedToOneDecimal(t *testing.T) {
	s := NewScorer(domain.RiskSettings{})

	score, _ := s.Score(Input{AverageScore: 85.5})
	if score != 8.6 {
		t.Errorf("expected 8.6, got %v", score)
	}
}
