//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel student risk engine.
//
// These tests verify the COMPLETE evaluation pipeline:
//
//	Records → Derived Profile → Rules → Bands → Patterns → Final Decision
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. RECORDS: A student's grades (0-100, weighted) and behavior events
//    (positive / negative / neutral)
//
// 2. PROFILE: Derived metrics computed from the records:
//   - avg_score: weighted grade average
//   - risk_score: 1-10 composite (LOW score = HIGH risk)
//   - grade_trend / behavior_trend: improving, declining, or stable
//
// 3. RULE: An alerting pattern over the derived profile. Each rule has:
//   - Expression: A CEL formula that computes a score (0.0 to 1.0+)
//   - Bands: Thresholds that map scores to outcomes (.pass, .watch, .flag)
//   - Weight: Importance when aggregating with other rules
//
// 4. PATTERN: A group of related rules. Computes weighted aggregate score.
//    If ANY pattern's score ≥ its threshold → FLAG
//
// 5. FLAG: Final verdict - "FLAG" (needs intervention review) or "NONE"
//
// BUILTIN RULES (loaded automatically when the database has none):
//
// | Rule ID          | What It Checks                  | Triggers When      |
// |------------------|---------------------------------|--------------------|
// | low-average      | Weighted average below passing  | avg_score < 60     |
// | high-risk-score  | Composite risk score            | risk_score <= 7    |
// | declining-grades | Grade trajectory                | trend == declining |
// | repeat-absences  | Absence events in window        | absence_count >= 1 |
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
	ClassID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL: baseURL,
		ClassID: "test-class",
	}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

// EvaluateRequest is the student payload sent to POST /evaluate
type EvaluateRequest struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Grades         []Grade         `json:"grades"`
	BehaviorEvents []BehaviorEvent `json:"behaviorEvents"`
}

type Grade struct {
	StudentID string    `json:"studentId"`
	Subject   string    `json:"subject"`
	Teacher   string    `json:"teacher"`
	Date      time.Time `json:"date"`
	Score     float64   `json:"score"`
	Weight    float64   `json:"weight"`
}

type BehaviorEvent struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	Date      time.Time `json:"date"`
	Type      string    `json:"type"`
	Category  string    `json:"category"`
}

// EvaluateResponse is what POST /evaluate returns
type EvaluateResponse struct {
	FlagID   string           `json:"flagId"`
	Status   string           `json:"status"` // "FLAG" or "NONE"
	Score    float64          `json:"score"`
	Reasons  []string         `json:"reasons"`
	Stats    ProfileStats     `json:"stats"`
	Metadata ResponseMetadata `json:"metadata"`
}

type ProfileStats struct {
	AverageScore  float64 `json:"averageScore"`
	NegativeCount int     `json:"negativeCount"`
	PositiveCount int     `json:"positiveCount"`
	GradeTrend    string  `json:"gradeTrend"`
	BehaviorTrend string  `json:"behaviorTrend"`
	RiskScore     float64 `json:"riskScore"`
	RiskLevel     string  `json:"riskLevel"`
}

type ResponseMetadata struct {
	TraceID string `json:"traceId"`
	StatsMs int64  `json:"statsMs"`
	TotalMs int64  `json:"totalMs"`
	Version string `json:"version"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
}

func evaluate(t *testing.T, config TestConfig, req EvaluateRequest) EvaluateResponse {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Class-ID", config.ClassID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result EvaluateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}

	return result
}

// ============================================================================
// SCENARIO 1: Solid Student (No Flag)
// ============================================================================

func TestSolidStudent_NoFlag(t *testing.T) {
	/*
	   SCENARIO: A student with consistently high grades and good behavior

	   EXPECTED BEHAVIOR:
	   - low-average: avg (90) >= 60 → score 0.0 → .pass
	   - high-risk-score: risk score ≈ 9 > 7 → score 0.0 → .pass
	   - declining-grades: improving trend → score 0.0 → .pass

	   FINAL DECISION: No patterns triggered → "NONE" (no flag)
	*/
	config := getTestConfig()

	req := EvaluateRequest{
		ID:   "student-solid-001",
		Name: "Solid Performer",
		Grades: []Grade{
			{StudentID: "student-solid-001", Subject: "math", Date: day(1), Score: 88, Weight: 1},
			{StudentID: "student-solid-001", Subject: "math", Date: day(8), Score: 90, Weight: 1},
			{StudentID: "student-solid-001", Subject: "math", Date: day(15), Score: 92, Weight: 1},
		},
		BehaviorEvents: []BehaviorEvent{
			{ID: "ev-solid-1", StudentID: "student-solid-001", Date: day(5), Type: "Helped peer", Category: "positive"},
		},
	}

	result := evaluate(t, config, req)

	// ASSERTIONS
	if result.Status != "NONE" {
		t.Errorf("Expected status NONE (no flag), got %s", result.Status)
	}

	if result.Stats.RiskLevel != "low" {
		t.Errorf("Expected low risk level, got %s", result.Stats.RiskLevel)
	}

	if len(result.Reasons) > 0 {
		t.Errorf("Expected no flag reasons, got %v", result.Reasons)
	}

	t.Logf("✓ Solid student passed: status=%s, risk=%.1f (%s)",
		result.Status, result.Stats.RiskScore, result.Stats.RiskLevel)
}

// ============================================================================
// SCENARIO 2: Failing Declining Student (Multiple Rules Fire)
// ============================================================================

func TestFailingDecliningStudent_Flagged(t *testing.T) {
	/*
	   SCENARIO: A student whose grades collapsed from passing to failing

	   EXPECTED BEHAVIOR:
	   - low-average: avg (37) < 60 → score 1.0
	   - high-risk-score: risk score ≈ 3 <= 4 → score 1.0
	   - declining-grades: declining trend → score 1.0
	   - academic-collapse pattern: 0.6 + 0.4 + 0.3 = 1.3 ≥ 0.7 → triggered

	   FINAL DECISION: "FLAG"

	   WHY THIS MATTERS:
	   This is the core intervention signal: a trajectory heading toward
	   failure, not just one bad test.
	*/
	config := getTestConfig()

	req := EvaluateRequest{
		ID:   "student-collapse-001",
		Name: "Collapsing Trajectory",
		Grades: []Grade{
			{StudentID: "student-collapse-001", Subject: "math", Date: day(1), Score: 55, Weight: 1},
			{StudentID: "student-collapse-001", Subject: "math", Date: day(8), Score: 45, Weight: 1},
			{StudentID: "student-collapse-001", Subject: "math", Date: day(15), Score: 28, Weight: 1},
			{StudentID: "student-collapse-001", Subject: "math", Date: day(22), Score: 20, Weight: 1},
		},
	}

	result := evaluate(t, config, req)

	if result.Status != "FLAG" {
		t.Errorf("Expected FLAG for failing declining student, got %s", result.Status)
	}

	if result.Stats.GradeTrend != "declining" {
		t.Errorf("Expected declining grade trend, got %s", result.Stats.GradeTrend)
	}

	if result.Stats.RiskLevel != "high" {
		t.Errorf("Expected high risk level, got %s", result.Stats.RiskLevel)
	}

	t.Logf("✓ Failing student flagged: status=%s, score=%.2f, reasons=%v",
		result.Status, result.Score, result.Reasons)
}

// ============================================================================
// SCENARIO 3: Threshold Boundary Testing (Exactly 60 Average)
// ============================================================================

func TestExactPassingAverage_NoLowAverageRule(t *testing.T) {
	/*
	   SCENARIO: A student averaging exactly 60

	   EXPECTED BEHAVIOR:
	   - low-average: Expression is "avg_score < 60.0" (strict less than)
	   - 60 is NOT < 60, so score = 0.0 → .pass
	   - high-risk-score still contributes (risk ≈ 6 <= 7 → 0.5) but the
	     weighted pattern score stays below every pattern threshold

	   FINAL DECISION: "NONE"

	   WHY THIS TEST:
	   Boundary conditions catch off-by-one errors in threshold logic.
	*/
	config := getTestConfig()

	req := EvaluateRequest{
		ID:   "student-boundary-001",
		Name: "On The Line",
		Grades: []Grade{
			{StudentID: "student-boundary-001", Subject: "math", Date: day(1), Score: 60, Weight: 1},
			{StudentID: "student-boundary-001", Subject: "math", Date: day(8), Score: 60, Weight: 1},
		},
	}

	result := evaluate(t, config, req)

	if result.Status != "NONE" {
		t.Errorf("Expected NONE for exactly 60 average (threshold is <60), got %s", result.Status)
	}

	if result.Stats.AverageScore != 60.0 {
		t.Errorf("Expected average 60.0, got %.2f", result.Stats.AverageScore)
	}

	t.Logf("✓ Boundary test passed: average 60 exactly → status=%s", result.Status)
}

func TestJustBelowPassing_RuleFires(t *testing.T) {
	/*
	   SCENARIO: A student averaging 59 (just below the passing line)

	   EXPECTED BEHAVIOR:
	   - low-average: 59 < 60 → score 1.0
	   - Whether this alone flags depends on the pattern weights; the
	     positive flag score is what we verify

	   WHAT WE'RE TESTING:
	   - The rule correctly identifies 59 as below passing
	   - The flag score is higher than for 60 exactly
	*/
	config := getTestConfig()

	req := EvaluateRequest{
		ID:   "student-justbelow-001",
		Name: "Just Below",
		Grades: []Grade{
			{StudentID: "student-justbelow-001", Subject: "math", Date: day(1), Score: 59, Weight: 1},
			{StudentID: "student-justbelow-001", Subject: "math", Date: day(8), Score: 59, Weight: 1},
		},
	}

	result := evaluate(t, config, req)

	if result.Score <= 0 {
		t.Errorf("Expected positive flag score for average just below passing, got %.2f", result.Score)
	}

	t.Logf("✓ Just-below-passing: average 59 → status=%s, score=%.2f", result.Status, result.Score)
}

// ============================================================================
// SCENARIO 4: Behavior Collapse (Negative Events Compound Risk)
// ============================================================================

func TestNegativeBehaviorCompoundsRisk(t *testing.T) {
	/*
	   SCENARIO: Two students with identical mediocre grades; one also has a
	   string of negative behavior events

	   EXPECTED BEHAVIOR:
	   - The behavior adjustment lowers the composite risk score
	     (negative events pull it down, capped at 2.5)
	   - The troubled student's risk score < clean student's risk score

	   WHY THIS MATTERS:
	   Grades alone lag; behavior signals often move first.
	*/
	config := getTestConfig()

	grades := func(id string) []Grade {
		return []Grade{
			{StudentID: id, Subject: "math", Date: day(1), Score: 65, Weight: 1},
			{StudentID: id, Subject: "math", Date: day(8), Score: 65, Weight: 1},
		}
	}

	clean := evaluate(t, config, EvaluateRequest{
		ID:     "student-clean-001",
		Grades: grades("student-clean-001"),
	})

	var events []BehaviorEvent
	for i := 0; i < 5; i++ {
		events = append(events, BehaviorEvent{
			ID:        fmt.Sprintf("ev-neg-%d", i),
			StudentID: "student-troubled-001",
			Date:      day(3 + i),
			Type:      "Disrupted class",
			Category:  "negative",
		})
	}
	troubled := evaluate(t, config, EvaluateRequest{
		ID:             "student-troubled-001",
		Grades:         grades("student-troubled-001"),
		BehaviorEvents: events,
	})

	if troubled.Stats.RiskScore >= clean.Stats.RiskScore {
		t.Errorf("Expected negative events to lower risk score: troubled=%.1f clean=%.1f",
			troubled.Stats.RiskScore, clean.Stats.RiskScore)
	}

	if troubled.Stats.NegativeCount != 5 {
		t.Errorf("Expected 5 negative events, got %d", troubled.Stats.NegativeCount)
	}

	t.Logf("✓ Behavior compounds risk: clean=%.1f troubled=%.1f",
		clean.Stats.RiskScore, troubled.Stats.RiskScore)
}

// ============================================================================
// SCENARIO 5: Input Validation
// ============================================================================

func TestMissingStudentID_Error(t *testing.T) {
	/*
	   SCENARIO: Request missing the required id field

	   EXPECTED: HTTP 400 Bad Request
	*/
	config := getTestConfig()

	req := EvaluateRequest{
		// ID missing!
		Grades: []Grade{
			{StudentID: "student-001", Subject: "math", Date: day(1), Score: 80, Weight: 1},
		},
	}

	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/evaluate", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Class-ID", config.ClassID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing id, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing id → HTTP %d", resp.StatusCode)
}

func TestNoRecords_Error(t *testing.T) {
	/*
	   SCENARIO: Request with an id but no grades and no behavior events

	   EXPECTED: HTTP 400 Bad Request (nothing to derive from)
	*/
	config := getTestConfig()

	req := EvaluateRequest{ID: "student-empty-001", Name: "No Records"}

	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/evaluate", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Class-ID", config.ClassID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty records, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: no records → HTTP %d", resp.StatusCode)
}

func TestMissingClassHeader_Error(t *testing.T) {
	/*
	   SCENARIO: Request without X-Class-ID header

	   ACTUAL BEHAVIOR: Returns HTTP 400 Bad Request (not 401)
	   This is because class ID is validated as a required field, not as auth.
	*/
	config := getTestConfig()

	req := EvaluateRequest{
		ID: "student-001",
		Grades: []Grade{
			{StudentID: "student-001", Subject: "math", Date: day(1), Score: 80, Weight: 1},
		},
	}

	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/evaluate", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	// NO X-Class-ID header!

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	// Kestrel returns 400 for missing class (treated as validation error, not auth)
	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 400 or 401 for missing class, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing class → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 6: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify response includes all required metadata

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()

	req := EvaluateRequest{
		ID:   "student-metadata-001",
		Name: "Metadata Check",
		Grades: []Grade{
			{StudentID: "student-metadata-001", Subject: "math", Date: day(1), Score: 82, Weight: 1},
		},
	}

	result := evaluate(t, config, req)

	// Verify all required fields are present
	if result.FlagID == "" {
		t.Error("Missing flagId")
	}

	if result.Status != "FLAG" && result.Status != "NONE" {
		t.Errorf("Invalid status: %s (expected FLAG or NONE)", result.Status)
	}

	if result.Score < 0 {
		t.Errorf("Invalid score: %.2f (negative)", result.Score)
	}

	if result.Stats.RiskScore < 1 || result.Stats.RiskScore > 10 {
		t.Errorf("Risk score out of range: %.2f (expected 1-10)", result.Stats.RiskScore)
	}

	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}

	// Note: TotalMs can be 0 for very fast operations (sub-millisecond)
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	t.Logf("✓ Metadata complete: flagId=%s, traceId=%s, totalMs=%d",
		result.FlagID[:8], result.Metadata.TraceID[:8], result.Metadata.TotalMs)
}
