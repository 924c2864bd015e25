// Benchmark tool for testing Kestrel against labeled at-risk student data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/students.csv -url http://localhost:8080
//
// The CSV holds one row per record (grade or behavior event) with an
// at_risk label per student:
//
//   student_id,name,record_type,date,subject,teacher,score,weight,category,event_type,at_risk
//
// This tool:
//  1. Reads the labeled records and groups them per student
//  2. Sends each student to Kestrel for evaluation
//  3. Compares Kestrel's verdict (FLAG/NONE) with the at-risk labels
//  4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledStudent is one student assembled from the CSV rows.
type LabeledStudent struct {
	ID             string
	Name           string
	Grades         []GradeRecord
	BehaviorEvents []BehaviorRecord
	AtRisk         bool
}

// GradeRecord mirrors the API grade shape.
type GradeRecord struct {
	StudentID string  `json:"studentId"`
	Subject   string  `json:"subject"`
	Teacher   string  `json:"teacher"`
	Date      string  `json:"date"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
}

// BehaviorRecord mirrors the API behavior event shape.
type BehaviorRecord struct {
	StudentID string `json:"studentId"`
	Date      string `json:"date"`
	Type      string `json:"type"`
	Category  string `json:"category"`
	Teacher   string `json:"teacher"`
	Subject   string `json:"subject"`
}

// EvaluateRequest is the Kestrel API request format
type EvaluateRequest struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Grades         []GradeRecord    `json:"grades"`
	BehaviorEvents []BehaviorRecord `json:"behaviorEvents"`
}

// EvaluateResponse is the Kestrel API response format
type EvaluateResponse struct {
	FlagID  string   `json:"flagId"`
	Status  string   `json:"status"` // "FLAG" or "NONE"
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // At-risk detected as FLAG
	FalsePositives int64 // Not at-risk detected as FLAG
	TrueNegatives  int64 // Not at-risk detected as NONE
	FalseNegatives int64 // At-risk detected as NONE (missed student!)

	TotalProcessed int64
	TotalAtRisk    int64
	TotalNotAtRisk int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled student records CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	classID := flag.String("class", "benchmark-test", "Class ID for requests")
	limit := flag.Int("limit", 10000, "Maximum students to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	atRiskOnly := flag.Bool("at-risk-only", false, "Only test at-risk students")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for not-at-risk students (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each student result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/students.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - At-Risk Student Detection          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Kestrel URL:  %s\n", *baseURL)
	fmt.Printf("Class ID:     %s\n", *classID)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Printf("At-Risk Only: %v\n", *atRiskOnly)
	fmt.Printf("Sample Rate:  %.2f\n", *sampleRate)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read labeled student data
	fmt.Printf("\nReading labeled records from %s...\n", *csvPath)
	students, err := readStudentCSV(*csvPath, *limit, *atRiskOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d students\n", len(students))

	// Count at-risk vs not
	atRiskCount := 0
	for _, st := range students {
		if st.AtRisk {
			atRiskCount++
		}
	}
	fmt.Printf("  - At-risk:     %d (%.2f%%)\n", atRiskCount, 100*float64(atRiskCount)/float64(len(students)))
	fmt.Printf("  - Not at-risk: %d (%.2f%%)\n", len(students)-atRiskCount, 100*float64(len(students)-atRiskCount)/float64(len(students)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(students, *baseURL, *classID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readStudentCSV(path string, limit int, atRiskOnly bool, sampleRate float64) ([]LabeledStudent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(col)] = i
	}

	byID := make(map[string]*LabeledStudent)
	var order []string

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		id := record[colIndex["student_id"]]
		st, ok := byID[id]
		if !ok {
			st = &LabeledStudent{
				ID:     id,
				Name:   record[colIndex["name"]],
				AtRisk: record[colIndex["at_risk"]] == "1",
			}
			byID[id] = st
			order = append(order, id)
		}

		switch record[colIndex["record_type"]] {
		case "grade":
			score, _ := strconv.ParseFloat(record[colIndex["score"]], 64)
			weight, _ := strconv.ParseFloat(record[colIndex["weight"]], 64)
			st.Grades = append(st.Grades, GradeRecord{
				StudentID: id,
				Subject:   record[colIndex["subject"]],
				Teacher:   record[colIndex["teacher"]],
				Date:      record[colIndex["date"]],
				Score:     score,
				Weight:    weight,
			})
		case "behavior":
			st.BehaviorEvents = append(st.BehaviorEvents, BehaviorRecord{
				StudentID: id,
				Date:      record[colIndex["date"]],
				Type:      record[colIndex["event_type"]],
				Category:  record[colIndex["category"]],
				Teacher:   record[colIndex["teacher"]],
				Subject:   record[colIndex["subject"]],
			})
		}
	}

	var students []LabeledStudent
	sampleCounter := 0

	for _, id := range order {
		st := byID[id]

		// Apply filters
		if atRiskOnly && !st.AtRisk {
			continue
		}

		// Sample not-at-risk students
		if !st.AtRisk && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		students = append(students, *st)

		if limit > 0 && len(students) >= limit {
			break
		}
	}

	return students, nil
}

func runBenchmark(students []LabeledStudent, baseURL, classID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledStudent, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for st := range work {
				start := time.Now()
				result, err := evaluateStudent(client, baseURL, classID, st)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", st.ID, err)
					}
					continue
				}

				// Track actual labels
				if st.AtRisk {
					atomic.AddInt64(&metrics.TotalAtRisk, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNotAtRisk, 1)
				}

				// Calculate confusion matrix
				predicted := result.Status == "FLAG"
				actual := st.AtRisk

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					name := st.Name
					if len(name) > 12 {
						name = name[:12]
					}
					fmt.Printf("%s %-12s | Grades: %3d | Events: %3d | AtRisk: %-5v | Kestrel: %-4s (%.2f)\n",
						status,
						name,
						len(st.Grades),
						len(st.BehaviorEvents),
						st.AtRisk,
						result.Status,
						result.Score,
					)
				}
			}
		}()
	}

	// Send work
	for _, st := range students {
		work <- st
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func evaluateStudent(client *http.Client, baseURL, classID string, st LabeledStudent) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		ID:             st.ID,
		Name:           st.Name,
		Grades:         st.Grades,
		BehaviorEvents: st.BehaviorEvents,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Class-ID", classID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:   %d\n", m.TotalProcessed)
	fmt.Printf("   Total At-Risk:     %d\n", m.TotalAtRisk)
	fmt.Printf("   Total Not At-Risk: %d\n", m.TotalNotAtRisk)
	fmt.Printf("   Errors:            %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    FLAG        NONE")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  R  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NR  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flags, how many were actually at risk)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of at-risk students, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalAtRisk > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalAtRisk) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalAtRisk) * 100
		fmt.Printf("   At-Risk Flagged:   %d / %d (%.2f%%)\n", m.TruePositives, m.TotalAtRisk, detectionRate)
		fmt.Printf("   At-Risk Missed:    %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalAtRisk, missRate)
	}
	if m.TotalNotAtRisk > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNotAtRisk) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNotAtRisk, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		sps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f students/sec\n", sps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most at-risk students")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some at-risk students")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - many at-risk students being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most at-risk students are being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
