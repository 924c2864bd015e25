// Package worker provides async profile recomputation for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-edu/kestrel/internal/alerts"
	"github.com/opensource-edu/kestrel/internal/domain"
	"github.com/opensource-edu/kestrel/internal/rules"
	"github.com/opensource-edu/kestrel/internal/stats"
)

// DefaultAbsenceWindowDays is the lookback window for the absence_count
// rule variable when a message does not specify one.
const DefaultAbsenceWindowDays = 30

// Worker recomputes student profiles asynchronously from the EventBus.
type Worker struct {
	bus           domain.EventBus
	repo          domain.Repository
	stats         *stats.Engine
	engine        *rules.Engine
	patternEngine *rules.PatternEngine
	processor     *alerts.Processor

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// ClassIDs is the list of classes to process (empty = all via wildcard if supported)
	ClassIDs []string

	// WorkerCount is the number of concurrent workers per class
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, statsEngine *stats.Engine, engine *rules.Engine, patternEngine *rules.PatternEngine, processor *alerts.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:           bus,
		repo:          repo,
		stats:         statsEngine,
		engine:        engine,
		patternEngine: patternEngine,
		processor:     processor,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins processing messages for the given classes.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.ClassIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, classID := range cfg.ClassIDs {
		if err := w.startClassWorker(classID); err != nil {
			slog.Error("failed to start worker for class",
				"class_id", classID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"class_count", len(cfg.ClassIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all classes (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" class ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicRecordsUpdated, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startClassWorker starts workers for a specific class.
func (w *Worker) startClassWorker(classID string) error {
	sub, err := w.bus.Subscribe(w.ctx, classID, domain.TopicRecordsUpdated, func(ctx context.Context, msg *domain.Message) error {
		return w.processStudent(ctx, classID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("class worker started",
		"class_id", classID,
		"topic", domain.TopicRecordsUpdated,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processStudent(ctx, msg.ClassID, msg)
}

// RecordsUpdatedMessage is the message payload for profile recomputation.
type RecordsUpdatedMessage struct {
	StudentID         string `json:"studentId"`
	ClassID           string `json:"classId,omitempty"`
	TraceID           string `json:"traceId,omitempty"`
	AbsenceWindowDays int    `json:"absenceWindowDays,omitempty"`
}

// processStudent recomputes one student profile through the pipeline.
func (w *Worker) processStudent(ctx context.Context, classID string, msg *domain.Message) error {
	start := time.Now()

	var update RecordsUpdatedMessage
	if err := json.Unmarshal(msg.Payload, &update); err != nil {
		slog.Error("failed to parse records update message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message class if provided
	if update.ClassID != "" {
		classID = update.ClassID
	}

	traceID := update.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("recomputing profile",
		"student_id", update.StudentID,
		"class_id", classID,
		"trace_id", traceID,
	)

	// 1. Load raw records and derive the profile
	raw, err := w.repo.GetStudentRecords(ctx, classID, update.StudentID)
	if err != nil {
		slog.Error("failed to load student records",
			"student_id", update.StudentID,
			"error", err,
		)
		return err
	}

	student := w.stats.CalculateStudentStats(*raw)
	statsMs := time.Since(start).Milliseconds()

	// 2. Snapshot the profile
	if err := w.repo.SaveProfile(ctx, classID, &student); err != nil {
		slog.Error("failed to save profile",
			"student_id", student.ID,
			"error", err,
		)
	}

	profilePayload, _ := json.Marshal(student.StudentStats)
	if err := w.bus.Publish(ctx, classID, domain.TopicProfileDerived, profilePayload); err != nil {
		slog.Error("failed to publish derived profile",
			"student_id", student.ID,
			"error", err,
		)
	}

	// 3. Evaluate rules over the derived variables
	windowDays := update.AbsenceWindowDays
	if windowDays <= 0 {
		windowDays = DefaultAbsenceWindowDays
	}

	rulesStart := time.Now()
	ruleResults, err := w.engine.EvaluateAll(ctx, &rules.EvaluateInput{
		ClassID:           classID,
		StudentID:         student.ID,
		Stats:             student.StudentStats,
		CorrelationCount:  len(student.Correlations),
		AbsenceWindowDays: windowDays,
	})
	if err != nil {
		slog.Error("rule evaluation failed",
			"student_id", student.ID,
			"error", err,
		)
		return err
	}

	// 4. Evaluate intervention patterns on the rule results
	var patternResults []domain.PatternResult
	if w.patternEngine != nil && w.patternEngine.PatternCount() > 0 {
		patternResults = w.patternEngine.EvaluatePatterns(ruleResults)
	}
	rulesMs := time.Since(rulesStart).Milliseconds()

	// 5. Process the flag decision
	flag := w.processor.Process(ctx, &alerts.DecisionInput{
		ClassID:        classID,
		StudentID:      student.ID,
		TraceID:        traceID,
		RuleResults:    ruleResults,
		PatternResults: patternResults,
		StatsMs:        statsMs,
		RulesMs:        rulesMs,
		StartTime:      start,
	})

	// 6. Persist the decision
	if err := w.repo.SaveFlag(ctx, classID, flag); err != nil {
		slog.Error("failed to save flag",
			"student_id", student.ID,
			"error", err,
		)
	}

	// 7. Publish result to decision topic
	resultPayload, _ := json.Marshal(flag)
	if err := w.bus.Publish(ctx, classID, domain.TopicFlagDecision, resultPayload); err != nil {
		slog.Error("failed to publish flag decision",
			"student_id", student.ID,
			"error", err,
		)
	}

	// 8. If flagged, publish to the raised topic
	if alerts.ShouldRaise(flag) {
		if err := w.bus.Publish(ctx, classID, domain.TopicFlagRaised, resultPayload); err != nil {
			slog.Error("failed to publish raised flag",
				"student_id", student.ID,
				"error", err,
			)
		}
	}

	slog.Info("profile processed",
		"student_id", student.ID,
		"class_id", classID,
		"status", flag.Status,
		"score", flag.Score,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
