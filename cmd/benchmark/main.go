// Benchmark tool for testing Kite against labeled document data.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/documents.csv -url http://localhost:8080
//
// This tool:
//  1. Reads labeled document records (one document per row, with a
//     fraud label)
//  2. Sends each document to Kite for assessment
//  3. Treats REJECT as a fraud prediction and compares with the label
//     (ESCALATE rows are reported separately as review volume)
//  4. Calculates precision, recall, F1-score, and the confusion matrix
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

// LabeledDocument is one row of the benchmark dataset. Field columns
// vary by document type; everything that parses as a number becomes a
// numeric field, the rest stay strings.
type LabeledDocument struct {
	DocType    string
	EntityName string
	Fields     map[string]any
	IsFraud    bool
}

// AssessRequest matches the Kite API request format.
type AssessRequest struct {
	DocType    string        `json:"docType"`
	EntityName string        `json:"entityName"`
	Record     RecordPayload `json:"record"`
}

// RecordPayload is the record portion of an assess request.
type RecordPayload struct {
	Fields map[string]any `json:"fields"`
}

// AssessResponse is the subset of the decision the benchmark needs.
type AssessResponse struct {
	ID          string  `json:"id"`
	Disposition string  `json:"disposition"`
	Score       float64 `json:"score"`
	RiskLevel   string  `json:"riskLevel"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Fraud rejected
	FalsePositives int64 // Non-fraud rejected
	TrueNegatives  int64 // Non-fraud approved
	FalseNegatives int64 // Fraud approved (missed!)

	Escalated      int64 // Sent to human review, either label
	EscalatedFraud int64

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled document CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kite base URL")
	limit := flag.Int("limit", 10000, "Maximum documents to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each document result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/documents.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("=================================================")
	fmt.Println("   KITE BENCHMARK - Document Fraud Detection")
	fmt.Println("=================================================")
	fmt.Printf("\nCSV File:  %s\n", *csvPath)
	fmt.Printf("Kite URL:  %s\n", *baseURL)
	fmt.Printf("Workers:   %d\n", *workers)
	fmt.Printf("Limit:     %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kite not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kite is running:")
		fmt.Println("  go run cmd/kite/main.go")
		os.Exit(1)
	}
	fmt.Println("Kite is healthy")

	fmt.Printf("\nReading documents from %s...\n", *csvPath)
	docs, err := readDocumentCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d documents\n", len(docs))

	fraudCount := 0
	for _, d := range docs {
		if d.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(docs)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(docs)-fraudCount, 100*float64(len(docs)-fraudCount)/float64(len(docs)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(docs, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

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

// readDocumentCSV reads labeled documents. Expected columns:
// doc_type, entity_name, is_fraud, plus any number of field columns
// named after normalized record fields.
func readDocumentCSV(path string, limit int) ([]LabeledDocument, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"doc_type", "entity_name", "is_fraud"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var docs []LabeledDocument
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		doc := LabeledDocument{
			DocType:    record[colIndex["doc_type"]],
			EntityName: record[colIndex["entity_name"]],
			IsFraud:    record[colIndex["is_fraud"]] == "1",
			Fields:     make(map[string]any),
		}

		for name, i := range colIndex {
			if name == "doc_type" || name == "entity_name" || name == "is_fraud" {
				continue
			}
			val := strings.TrimSpace(record[i])
			if val == "" {
				continue
			}
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				doc.Fields[name] = f
			} else {
				doc.Fields[name] = val
			}
		}

		docs = append(docs, doc)
		if limit > 0 && len(docs) >= limit {
			break
		}
	}

	return docs, nil
}

func runBenchmark(docs []LabeledDocument, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledDocument, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 15 * time.Second}

			for doc := range work {
				start := time.Now()
				result, err := assessDocument(client, baseURL, doc)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", doc.EntityName, err)
					}
					continue
				}

				if doc.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				switch result.Disposition {
				case "ESCALATE":
					atomic.AddInt64(&metrics.Escalated, 1)
					if doc.IsFraud {
						atomic.AddInt64(&metrics.EscalatedFraud, 1)
					}
				case "REJECT":
					if doc.IsFraud {
						atomic.AddInt64(&metrics.TruePositives, 1)
					} else {
						atomic.AddInt64(&metrics.FalsePositives, 1)
					}
				default: // APPROVE
					if doc.IsFraud {
						atomic.AddInt64(&metrics.FalseNegatives, 1)
					} else {
						atomic.AddInt64(&metrics.TrueNegatives, 1)
					}
				}

				if verbose {
					fmt.Printf("%-12s | %-14s | Fraud: %-5v | Kite: %-8s (%.2f %s)\n",
						truncate(doc.EntityName, 12),
						doc.DocType,
						doc.IsFraud,
						result.Disposition,
						result.Score,
						result.RiskLevel,
					)
				}
			}
		}()
	}

	for _, doc := range docs {
		work <- doc
	}
	close(work)

	wg.Wait()
	return metrics
}

func assessDocument(client *http.Client, baseURL string, doc LabeledDocument) (*AssessResponse, error) {
	req := AssessRequest{
		DocType:    doc.DocType,
		EntityName: doc.EntityName,
		Record:     RecordPayload{Fields: doc.Fields},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AssessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n=================================================")
	fmt.Println("               BENCHMARK RESULTS")
	fmt.Println("=================================================")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX (REJECT = fraud prediction)\n")
	fmt.Printf("   Fraud:     rejected %d, approved %d\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("   Non-fraud: rejected %d, approved %d\n", m.FalsePositives, m.TrueNegatives)
	fmt.Printf("   Escalated to review: %d (%d fraud)\n", m.Escalated, m.EscalatedFraud)

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

	fmt.Printf("\nDETECTION METRICS (escalations excluded)\n")
	fmt.Printf("   Precision:  %.4f  (of rejections, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of auto-decided fraud, how many were rejected)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)

	if m.TotalProcessed > 0 {
		reviewRate := float64(m.Escalated) / float64(m.TotalProcessed) * 100
		fmt.Printf("   Review Rate: %.2f%% of documents sent to a human\n", reviewRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		dps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f docs/sec\n", dps)
	}
	fmt.Println()
}
