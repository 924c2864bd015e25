package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-edu/kestrel/internal/aggregate"
	"github.com/opensource-edu/kestrel/internal/alerts"
	"github.com/opensource-edu/kestrel/internal/domain"
	"github.com/opensource-edu/kestrel/internal/repository"
	"github.com/opensource-edu/kestrel/internal/rules"
	"github.com/opensource-edu/kestrel/internal/stats"
)

// GlobalClassID is used for rules and patterns that apply to all classes.
const GlobalClassID = "*"

// DefaultAbsenceWindowDays is the lookback window for the absence_count
// rule variable when the request does not specify one.
const DefaultAbsenceWindowDays = 30

// profileCacheTTL bounds how long a derived profile summary stays cached.
const profileCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo          domain.Repository
	cache         domain.Cache
	bus           domain.EventBus
	engine        *rules.Engine
	patternEngine *rules.PatternEngine
	processor     *alerts.Processor
	stats         *stats.Engine
	aggregator    *aggregate.Aggregator
	version       string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, patternEngine *rules.PatternEngine, processor *alerts.Processor, statsEngine *stats.Engine, aggregator *aggregate.Aggregator, version string) *Handler {
	return &Handler{
		repo:          repo,
		cache:         cache,
		bus:           bus,
		engine:        engine,
		patternEngine: patternEngine,
		processor:     processor,
		stats:         statsEngine,
		aggregator:    aggregator,
		version:       version,
	}
}

// statsEngineFor returns the shared stats engine, or an ephemeral one when
// the request carries setting overrides.
func (h *Handler) statsEngineFor(settings *domain.RiskSettings) *stats.Engine {
	if settings == nil {
		return h.stats
	}
	return stats.NewEngine(*settings)
}

// EvaluateRequest is the request body for POST /evaluate.
type EvaluateRequest struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Grades         []domain.Grade         `json:"grades"`
	BehaviorEvents []domain.BehaviorEvent `json:"behaviorEvents"`

	// Settings overrides the server scoring defaults for this request.
	Settings *domain.RiskSettings `json:"settings,omitempty"`

	// AbsenceWindowDays bounds the absence_count lookback for rules.
	AbsenceWindowDays int `json:"absenceWindowDays,omitempty"`
}

// EvaluateResponse is the response for POST /evaluate.
type EvaluateResponse struct {
	FlagID       string               `json:"flagId"`
	StudentID    string               `json:"studentId"`
	Status       string               `json:"status"`
	Score        float64              `json:"score"`
	Reasons      []string             `json:"reasons,omitempty"`
	Stats        domain.StudentStats  `json:"stats"`
	Correlations []domain.Correlation `json:"correlations,omitempty"`
	Metadata     struct {
		TraceID string `json:"traceId"`
		StatsMs int64  `json:"statsMs"`
		RulesMs int64  `json:"rulesMs"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Evaluate handles POST /evaluate requests: derive the full profile for one
// student and run it through the alert pipeline.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	classID := GetClassID(ctx)
	traceID := GetTraceID(ctx)

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id is required",
		})
		return
	}
	if len(req.Grades) == 0 && len(req.BehaviorEvents) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one grade or behavior event is required",
		})
		return
	}

	// 1. Derive the profile
	eng := h.statsEngineFor(req.Settings)
	student := eng.CalculateStudentStats(domain.RawStudent{
		ID:             req.ID,
		Name:           req.Name,
		Grades:         req.Grades,
		BehaviorEvents: req.BehaviorEvents,
	})
	statsMs := time.Since(start).Milliseconds()

	// 2. Snapshot the profile
	if h.repo != nil {
		if err := h.repo.SaveProfile(ctx, classID, &student); err != nil {
			slog.Error("failed to save profile", "student_id", student.ID, "error", err)
		}
	}
	if h.cache != nil {
		h.cacheProfile(ctx, classID, &student)
	}

	// 3. Evaluate rules over the derived variables
	windowDays := req.AbsenceWindowDays
	if windowDays <= 0 {
		windowDays = DefaultAbsenceWindowDays
	}
	rulesStart := time.Now()
	ruleResults, err := h.engine.EvaluateAll(ctx, &rules.EvaluateInput{
		ClassID:           classID,
		StudentID:         student.ID,
		Stats:             student.StudentStats,
		CorrelationCount:  len(student.Correlations),
		AbsenceWindowDays: windowDays,
	})
	if err != nil {
		slog.Error("rule evaluation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "rule evaluation failed",
		})
		return
	}

	// 4. Evaluate intervention patterns on the rule results
	var patternResults []domain.PatternResult
	if h.patternEngine != nil && h.patternEngine.PatternCount() > 0 {
		patternResults = h.patternEngine.EvaluatePatterns(ruleResults)
	}
	rulesMs := time.Since(rulesStart).Milliseconds()

	// 5. Process the flag decision
	flag := h.processor.Process(ctx, &alerts.DecisionInput{
		ClassID:        classID,
		StudentID:      student.ID,
		TraceID:        traceID,
		RuleResults:    ruleResults,
		PatternResults: patternResults,
		StatsMs:        statsMs,
		RulesMs:        rulesMs,
		StartTime:      start,
	})

	// 6. Persist and publish
	if h.repo != nil {
		if err := h.repo.SaveFlag(ctx, classID, flag); err != nil {
			slog.Error("failed to save flag", "flag_id", flag.ID, "error", err)
		}
	}
	if h.bus != nil && alerts.ShouldRaise(flag) {
		if payload, err := json.Marshal(flag); err == nil {
			if err := h.bus.Publish(ctx, classID, domain.TopicFlagRaised, payload); err != nil {
				slog.Error("failed to publish flag", "flag_id", flag.ID, "error", err)
			}
		}
	}

	// 7. Respond
	resp := EvaluateResponse{
		FlagID:       flag.ID,
		StudentID:    student.ID,
		Status:       flag.Status,
		Score:        flag.Score,
		Reasons:      flag.Reasons(),
		Stats:        student.StudentStats,
		Correlations: student.Correlations,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.StatsMs = statsMs
	resp.Metadata.RulesMs = rulesMs
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) cacheProfile(ctx context.Context, classID string, student *domain.Student) {
	entry := &domain.ProfileCache{
		StudentID:     student.ID,
		AverageScore:  student.AverageScore,
		RiskScore:     student.RiskScore,
		RiskLevel:     string(student.RiskLevel),
		GradeTrend:    string(student.GradeTrend),
		BehaviorTrend: string(student.BehaviorTrend),
		NegativeCount: student.NegativeCount,
		PositiveCount: student.PositiveCount,
		ComputedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.cache.SetProfile(ctx, classID, student.ID, entry, profileCacheTTL); err != nil {
		slog.Warn("failed to cache profile", "student_id", student.ID, "error", err)
	}
}

// StatsRequest is the request body for POST /stats.
type StatsRequest struct {
	Grades         []domain.Grade         `json:"grades"`
	BehaviorEvents []domain.BehaviorEvent `json:"behaviorEvents"`
	Settings       *domain.RiskSettings   `json:"settings,omitempty"`
}

// Stats handles POST /stats: derive metrics from bare record arrays,
// without persistence or flagging.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var req StatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	eng := h.statsEngineFor(req.Settings)
	result := eng.ComputeStudentStatsFromData(req.Grades, req.BehaviorEvents)

	writeJSON(w, http.StatusOK, result)
}

// IngestGrade handles POST /records/grades.
func (h *Handler) IngestGrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	classID := GetClassID(ctx)

	var grade domain.Grade
	if err := json.NewDecoder(r.Body).Decode(&grade); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if grade.StudentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "studentId is required",
		})
		return
	}
	if grade.Score < 0 || grade.Score > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "score must be between 0 and 100",
		})
		return
	}
	if grade.Weight < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "weight must be non-negative",
		})
		return
	}
	if grade.Date.IsZero() {
		grade.Date = time.Now().UTC()
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if err := h.repo.SaveGrade(ctx, classID, &grade); err != nil {
		slog.Error("failed to save grade", "student_id", grade.StudentID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save grade",
		})
		return
	}

	h.publishRecordsUpdated(ctx, classID, grade.StudentID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"studentId": grade.StudentID,
		"status":    "stored",
	})
}

// IngestBehaviorEvent handles POST /records/behavior.
func (h *Handler) IngestBehaviorEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	classID := GetClassID(ctx)

	var event domain.BehaviorEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if event.StudentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "studentId is required",
		})
		return
	}
	switch event.Category {
	case domain.CategoryPositive, domain.CategoryNegative, domain.CategoryNeutral:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "category must be positive, negative, or neutral",
		})
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Date.IsZero() {
		event.Date = time.Now().UTC()
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if err := h.repo.SaveBehaviorEvent(ctx, classID, &event); err != nil {
		slog.Error("failed to save behavior event", "student_id", event.StudentID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save behavior event",
		})
		return
	}

	h.publishRecordsUpdated(ctx, classID, event.StudentID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":        event.ID,
		"studentId": event.StudentID,
		"status":    "stored",
	})
}

func (h *Handler) publishRecordsUpdated(ctx context.Context, classID, studentID string) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"studentId": studentID})
	if err := h.bus.Publish(ctx, classID, domain.TopicRecordsUpdated, payload); err != nil {
		slog.Warn("failed to publish records update", "student_id", studentID, "error", err)
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetStudentRecords retrieves the raw records of one student.
func (h *Handler) GetStudentRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	classID := GetClassID(ctx)
	studentID := chi.URLParam(r, "id")

	if studentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "student id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	raw, err := h.repo.GetStudentRecords(ctx, classID, studentID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get student records", "student_id", studentID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "student not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, raw)
}

// GetStudentProfile retrieves the last derived profile snapshot of a student.
func (h *Handler) GetStudentProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	classID := GetClassID(ctx)
	studentID := chi.URLParam(r, "id")

	if studentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "student id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	profile, err := h.repo.GetProfile(ctx, classID, studentID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get profile", "student_id", studentID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "profile not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// GetFlag retrieves a flag decision by ID.
func (h *Handler) GetFlag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	classID := GetClassID(ctx)
	flagID := chi.URLParam(r, "id")

	if flagID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "flag id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	flag, err := h.repo.GetFlag(ctx, classID, flagID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get flag", "flag_id", flagID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "flag not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, flag)
}

// loadDerivedStudents derives the full class roster from stored records.
func (h *Handler) loadDerivedStudents(ctx context.Context, classID string) ([]domain.Student, error) {
	raws, err := h.repo.ListStudentRecords(ctx, classID)
	if err != nil {
		return nil, err
	}
	students := make([]domain.Student, 0, len(raws))
	for _, raw := range raws {
		students = append(students, h.stats.CalculateStudentStats(*raw))
	}
	return students, nil
}

// TeacherAggregates handles GET /aggregates/teachers.
func (h *Handler) TeacherAggregates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	classID := GetClassID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	students, err := h.loadDerivedStudents(ctx, classID)
	if err != nil {
		slog.Error("failed to load class records", "class_id", classID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load class records",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"grades":   h.aggregator.TeacherGradeSummaries(students),
		"behavior": h.aggregator.TeacherBehaviorSummaries(students),
	})
}

// TeacherSubjectPairs handles GET /aggregates/pairs.
func (h *Handler) TeacherSubjectPairs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	classID := GetClassID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	students, err := h.loadDerivedStudents(ctx, classID)
	if err != nil {
		slog.Error("failed to load class records", "class_id", classID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load class records",
		})
		return
	}

	pairs := h.aggregator.TeacherSubjectPairs(students)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pairs": pairs,
		"count": len(pairs),
	})
}

// InsightsRequest is the request body for POST /aggregates/insights.
type InsightsRequest struct {
	Periods []domain.PeriodDefinition `json:"periods"`
}

// PeriodInsights handles POST /aggregates/insights.
func (h *Handler) PeriodInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	classID := GetClassID(ctx)

	var req InsightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Periods) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one period is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	students, err := h.loadDerivedStudents(ctx, classID)
	if err != nil {
		slog.Error("failed to load class records", "class_id", classID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load class records",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summaries": h.aggregator.PeriodSummaries(students, req.Periods),
		"insights":  h.aggregator.PeriodInsights(students, req.Periods),
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Expression  string             `json:"expression"`
	Bands       []domain.AlertBand `json:"bands"`
	Weight      float64            `json:"weight"`
	Enabled     bool               `json:"enabled"`
}

// CreateRule creates a new rule and saves it to the database.
// Rules are saved globally (class_id = "*") so they apply to all classes.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.AlertRule{
		ID:          req.ID,
		ClassID:     GlobalClassID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveAlertRule(ctx, GlobalClassID, rule); err != nil {
			slog.Error("failed to save rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListAlertRules(ctx, GlobalClassID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ============================================================================
// PATTERN HANDLERS
// ============================================================================

// CreatePatternRequest is the request body for creating an intervention pattern.
type CreatePatternRequest struct {
	ID             string                     `json:"id"`
	Name           string                     `json:"name"`
	Description    string                     `json:"description,omitempty"`
	Rules          []domain.PatternRuleWeight `json:"rules"`
	AlertThreshold float64                    `json:"alertThreshold"`
	Enabled        bool                       `json:"enabled"`
}

// ListPatterns returns all loaded intervention patterns.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	if h.patternEngine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "pattern engine not available",
		})
		return
	}

	patterns := h.patternEngine.GetLoadedPatterns()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
		"source":   "database",
	})
}

// GetPattern retrieves an intervention pattern by ID.
func (h *Handler) GetPattern(w http.ResponseWriter, r *http.Request) {
	patternID := chi.URLParam(r, "id")

	if patternID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "pattern id is required",
		})
		return
	}

	if h.patternEngine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "pattern engine not available",
		})
		return
	}

	for _, p := range h.patternEngine.GetLoadedPatterns() {
		if p.ID == patternID {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "pattern not found",
	})
}

// CreatePattern creates a new intervention pattern and saves it to the database.
func (h *Handler) CreatePattern(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and name are required",
		})
		return
	}

	if len(req.Rules) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one rule is required",
		})
		return
	}

	// Validate rules exist in engine and weights are valid
	loadedRules := h.engine.GetLoadedRules()
	ruleIDSet := make(map[string]bool, len(loadedRules))
	for _, r := range loadedRules {
		ruleIDSet[r.ID] = true
	}

	var totalWeight float64
	for _, rule := range req.Rules {
		if rule.RuleID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "rule_id cannot be empty",
			})
			return
		}
		if !ruleIDSet[rule.RuleID] {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("rule_id '%s' does not exist in rule engine", rule.RuleID),
			})
			return
		}
		if rule.Weight < 0 || rule.Weight > 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "rule weight must be between 0 and 1",
			})
			return
		}
		totalWeight += rule.Weight
	}

	// Warn if weights don't sum to approximately 1.0 (allow 0.01 tolerance)
	if totalWeight < 0.99 || totalWeight > 1.01 {
		slog.Warn("pattern weights do not sum to 1.0",
			"pattern_id", req.ID,
			"total_weight", totalWeight,
		)
	}

	// Threshold must be > 0 to avoid triggering on every profile
	if req.AlertThreshold <= 0 || req.AlertThreshold > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alertThreshold must be between 0 (exclusive) and 1",
		})
		return
	}

	pattern := &domain.AlertPattern{
		ID:             req.ID,
		ClassID:        GlobalClassID,
		Name:           req.Name,
		Description:    req.Description,
		Rules:          req.Rules,
		AlertThreshold: req.AlertThreshold,
		Enabled:        req.Enabled,
	}

	if h.repo != nil {
		if err := h.repo.SaveAlertPattern(ctx, GlobalClassID, pattern); err != nil {
			slog.Error("failed to save pattern", "id", pattern.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save pattern",
			})
			return
		}
	}

	slog.Info("pattern created", "id", pattern.ID, "name", pattern.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"pattern": pattern,
		"message": "Pattern created. Call POST /patterns/reload to apply changes.",
	})
}

// UpdatePattern updates an existing intervention pattern.
func (h *Handler) UpdatePattern(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patternID := chi.URLParam(r, "id")

	if patternID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "pattern id is required",
		})
		return
	}

	var req CreatePatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	for _, rule := range req.Rules {
		if rule.RuleID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "rule_id cannot be empty",
			})
			return
		}
		if rule.Weight < 0 || rule.Weight > 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "rule weight must be between 0 and 1",
			})
			return
		}
	}

	pattern := &domain.AlertPattern{
		ID:             patternID,
		ClassID:        GlobalClassID,
		Name:           req.Name,
		Description:    req.Description,
		Rules:          req.Rules,
		AlertThreshold: req.AlertThreshold,
		Enabled:        req.Enabled,
	}

	if h.repo != nil {
		if err := h.repo.SaveAlertPattern(ctx, GlobalClassID, pattern); err != nil {
			slog.Error("failed to update pattern", "id", patternID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to update pattern",
			})
			return
		}
	}

	slog.Info("pattern updated", "id", patternID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pattern": pattern,
		"message": "Pattern updated. Call POST /patterns/reload to apply changes.",
	})
}

// DeletePattern deletes an intervention pattern and auto-reloads the engine.
func (h *Handler) DeletePattern(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patternID := chi.URLParam(r, "id")

	if patternID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "pattern id is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeleteAlertPattern(ctx, GlobalClassID, patternID); err != nil {
			slog.Error("failed to delete pattern", "id", patternID, "error", err)
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "pattern not found",
			})
			return
		}

		// Auto-reload pattern engine after delete
		if h.patternEngine != nil {
			dbPatterns, err := h.repo.ListAlertPatterns(ctx, GlobalClassID)
			if err != nil {
				slog.Error("failed to reload patterns after delete", "error", err)
			} else {
				h.patternEngine.ReloadPatterns(dbPatterns)
				slog.Info("patterns auto-reloaded after delete", "count", len(dbPatterns))
			}
		}
	}

	slog.Info("pattern deleted", "id", patternID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Pattern deleted and engine reloaded.",
	})
}

// ReloadPatterns reloads all intervention patterns from the database into the engine.
func (h *Handler) ReloadPatterns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if h.patternEngine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "pattern engine not available",
		})
		return
	}

	dbPatterns, err := h.repo.ListAlertPatterns(ctx, GlobalClassID)
	if err != nil {
		slog.Error("failed to list patterns from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load patterns from database",
		})
		return
	}

	h.patternEngine.ReloadPatterns(dbPatterns)

	slog.Info("patterns reloaded from database", "count", len(dbPatterns))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "patterns reloaded successfully",
		"count":   len(dbPatterns),
	})
}
