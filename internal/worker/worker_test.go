package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-edu/kestrel/internal/alerts"
	"github.com/opensource-edu/kestrel/internal/bus"
	"github.com/opensource-edu/kestrel/internal/domain"
	"github.com/opensource-edu/kestrel/internal/repository"
	"github.com/opensource-edu/kestrel/internal/rules"
	"github.com/opensource-edu/kestrel/internal/stats"
)

func testRepository(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func seedGrade(t *testing.T, repo domain.Repository, classID, studentID string, score float64) {
	t.Helper()
	err := repo.SaveGrade(context.Background(), classID, &domain.Grade{
		StudentID: studentID,
		Subject:   "math",
		Date:      time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Score:     score,
		Weight:    1,
	})
	if err != nil {
		t.Fatalf("failed to seed grade: %v", err)
	}
}

func TestWorker(t *testing.T) {
	// Create channel bus
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	repo := testRepository(t)

	// Create rule engine with test rules (no hardcoded builtin rules)
	engine, _ := rules.NewEngine(nil, 5)

	testRules := []*domain.AlertRule{
		{
			ID:         "low-average-check",
			Name:       "Low Average Check",
			Expression: "avg_score < 10.0 ? 1.0 : 0.0",
			Weight:     1.0,
			Enabled:    true,
		},
		{
			ID:         "declining-check",
			Name:       "Declining Trend Check",
			Expression: `grade_trend == "declining"`,
			Weight:     1.0,
			Enabled:    true,
		},
	}
	engine.LoadRules(testRules)

	patternEngine := rules.NewPatternEngine()
	processor := alerts.NewProcessor()
	statsEngine := stats.NewEngine(domain.RiskSettings{})

	worker := NewWorker(eventBus, repo, statsEngine, engine, patternEngine, processor)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			ClassIDs:    []string{"class-001"},
			WorkerCount: 1,
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessStudent", func(t *testing.T) {
		seedGrade(t, repo, "class-test", "st-001", 85)

		// Create fresh worker for this test
		w := NewWorker(eventBus, repo, statsEngine, engine, patternEngine, processor)

		cfg := Config{
			ClassIDs: []string{"class-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track decision results
		var decisionReceived atomic.Bool
		var decisionPayload []byte

		eventBus.Subscribe(context.Background(), "class-test", domain.TopicFlagDecision, func(ctx context.Context, msg *domain.Message) error {
			decisionPayload = msg.Payload
			decisionReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		update := RecordsUpdatedMessage{
			StudentID: "st-001",
			ClassID:   "class-test",
			TraceID:   "trace-001",
		}

		payload, _ := json.Marshal(update)
		err := eventBus.Publish(context.Background(), "class-test", domain.TopicRecordsUpdated, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !decisionReceived.Load() {
			t.Error("expected flag decision to be published")
		}

		if decisionPayload != nil {
			var flag domain.Flag
			if err := json.Unmarshal(decisionPayload, &flag); err != nil {
				t.Fatalf("failed to parse flag decision: %v", err)
			}

			if flag.StudentID != "st-001" {
				t.Errorf("expected studentID 'st-001', got '%s'", flag.StudentID)
			}
			if flag.ClassID != "class-test" {
				t.Errorf("expected classID 'class-test', got '%s'", flag.ClassID)
			}
			if flag.Status != domain.StatusNoFlag {
				t.Errorf("expected status NONE for a solid average, got '%s'", flag.Status)
			}
			if flag.Metadata.TraceID != "trace-001" {
				t.Errorf("expected traceID 'trace-001', got '%s'", flag.Metadata.TraceID)
			}
		}
	})

	t.Run("FlagRaised", func(t *testing.T) {
		seedGrade(t, repo, "class-flag", "st-low", 4)

		// Worker with a low threshold processor
		lowThresholdProcessor := &alerts.Processor{
			FlagThreshold:      0.1, // Very low threshold
			UseWeightedScoring: true,
		}

		w := NewWorker(eventBus, repo, statsEngine, engine, patternEngine, lowThresholdProcessor)

		cfg := Config{
			ClassIDs: []string{"class-flag"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track raised flags
		var flagReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "class-flag", domain.TopicFlagRaised, func(ctx context.Context, msg *domain.Message) error {
			flagReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		update := RecordsUpdatedMessage{
			StudentID: "st-low",
			ClassID:   "class-flag",
		}

		payload, _ := json.Marshal(update)
		eventBus.Publish(context.Background(), "class-flag", domain.TopicRecordsUpdated, payload)

		time.Sleep(100 * time.Millisecond)

		if !flagReceived.Load() {
			t.Error("expected flag to be raised for a failing average")
		}
	})

	t.Run("ProfileSnapshotSaved", func(t *testing.T) {
		seedGrade(t, repo, "class-snap", "st-snap", 72)

		w := NewWorker(eventBus, repo, statsEngine, engine, patternEngine, processor)

		cfg := Config{
			ClassIDs: []string{"class-snap"},
		}
		w.Start(cfg)
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(RecordsUpdatedMessage{StudentID: "st-snap", ClassID: "class-snap"})
		eventBus.Publish(context.Background(), "class-snap", domain.TopicRecordsUpdated, payload)

		time.Sleep(100 * time.Millisecond)

		profile, err := repo.GetProfile(context.Background(), "class-snap", "st-snap")
		if err != nil {
			t.Fatalf("expected profile snapshot after processing: %v", err)
		}
		if profile.AverageScore != 72.0 {
			t.Errorf("expected average 72.0 in snapshot, got %.2f", profile.AverageScore)
		}
	})

	t.Run("MultiClass", func(t *testing.T) {
		w := NewWorker(eventBus, repo, statsEngine, engine, patternEngine, processor)

		cfg := Config{
			ClassIDs: []string{"class-a", "class-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 classes, got %d", stats.SubscriptionCount)
		}
	})
}

func TestRecordsUpdatedMessageParsing(t *testing.T) {
	msg := RecordsUpdatedMessage{
		StudentID:         "st-123",
		ClassID:           "class-001",
		TraceID:           "trace-456",
		AbsenceWindowDays: 14,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed RecordsUpdatedMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.StudentID != msg.StudentID {
		t.Errorf("expected StudentID '%s', got '%s'", msg.StudentID, parsed.StudentID)
	}
	if parsed.AbsenceWindowDays != msg.AbsenceWindowDays {
		t.Errorf("expected AbsenceWindowDays %d, got %d", msg.AbsenceWindowDays, parsed.AbsenceWindowDays)
	}
}
