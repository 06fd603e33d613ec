// Benchmark tool for exercising the Kestrel scoring pipeline.
//
// Usage:
//   go run cmd/kestrel-bench/main.go -url http://localhost:8080 -count 5000
//
// This tool:
//  1. Generates synthetic survey submissions, a configurable share of them
//     carrying fraud patterns (speed runs, straight-lining, night work)
//  2. Sends each submission to Kestrel for synchronous scoring
//  3. Compares flagged severities against the injected labels
//  4. Reports detection rates, severity distribution, and latency
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// submission mirrors the scoring API request body.
type submission struct {
	SubmissionID          string         `json:"submissionId"`
	EnumeratorID          string         `json:"enumeratorId"`
	FormID                string         `json:"formId"`
	SubmittedAt           time.Time      `json:"submittedAt"`
	GPSLatitude           *float64       `json:"gpsLatitude,omitempty"`
	GPSLongitude          *float64       `json:"gpsLongitude,omitempty"`
	GPSAccuracyM          *float64       `json:"gpsAccuracyM,omitempty"`
	CompletionTimeSeconds *int           `json:"completionTimeSeconds,omitempty"`
	RawData               map[string]any `json:"rawData,omitempty"`
	RecentSubmissions     []historical   `json:"recentSubmissions,omitempty"`
}

type historical struct {
	ID                    string    `json:"id"`
	EnumeratorID          string    `json:"enumeratorId"`
	FormID                string    `json:"formId"`
	SubmittedAt           time.Time `json:"submittedAt"`
	CompletionTimeSeconds *int      `json:"completionTimeSeconds,omitempty"`
}

// detection mirrors the scoring API response body.
type detection struct {
	ID         string  `json:"id"`
	TotalScore float64 `json:"totalScore"`
	Severity   string  `json:"severity"`
}

type metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	TotalFraud     int64
	TotalClean     int64

	FraudFlagged int64 // injected fraud scored above clean
	FraudMissed  int64
	CleanFlagged int64 // false positives

	ProcessingTimeMs int64

	mu         sync.Mutex
	severities map[string]int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	count := flag.Int("count", 1000, "Number of submissions to score")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudRate := flag.Float64("fraud-rate", 0.2, "Share of submissions with injected fraud patterns (0.0-1.0)")
	seed := flag.Int64("seed", 42, "Random seed for reproducible runs")
	verbose := flag.Bool("verbose", false, "Print each submission result")
	flag.Parse()

	fmt.Println("KESTREL BENCHMARK - Synthetic Submission Scoring")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Count:       %d\n", *count)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Fraud Rate:  %.2f\n", *fraudRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	rng := rand.New(rand.NewSource(*seed))
	subs := make([]labeledSubmission, *count)
	for i := range subs {
		subs[i] = generate(rng, i, *fraudRate)
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	m := run(subs, *baseURL, *workers, *verbose)
	printResults(m, time.Since(start))
}

type labeledSubmission struct {
	sub     submission
	isFraud bool
}

// generate builds one synthetic submission. Fraudulent ones complete far
// below the enumerator's median and land in the night window; clean ones
// look like ordinary daytime fieldwork.
func generate(rng *rand.Rand, i int, fraudRate float64) labeledSubmission {
	isFraud := rng.Float64() < fraudRate
	enumID := fmt.Sprintf("enum-%d", i%20)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i%5)
	hour := 9 + rng.Intn(8)
	if isFraud {
		hour = 23 + rng.Intn(5)
		if hour >= 24 {
			hour -= 24
		}
	}
	submittedAt := day.Add(time.Duration(hour) * time.Hour)

	completion := 600 + rng.Intn(300)
	if isFraud {
		completion = 60 + rng.Intn(60)
	}

	answers := make(map[string]any, 8)
	for q := 0; q < 8; q++ {
		v := 1 + rng.Intn(5)
		if isFraud {
			v = 3
		}
		answers[fmt.Sprintf("q%d", q)] = v
	}

	// History establishes an empirical median around 700 seconds.
	history := make([]historical, 30)
	for h := range history {
		ct := 650 + rng.Intn(120)
		history[h] = historical{
			ID:                    fmt.Sprintf("hist-%d-%d", i, h),
			EnumeratorID:          enumID,
			FormID:                "form-bench",
			SubmittedAt:           submittedAt.AddDate(0, 0, -1-h%6),
			CompletionTimeSeconds: &ct,
		}
	}

	return labeledSubmission{
		sub: submission{
			SubmissionID:          fmt.Sprintf("bench-%d", i),
			EnumeratorID:          enumID,
			FormID:                "form-bench",
			SubmittedAt:           submittedAt,
			CompletionTimeSeconds: &completion,
			RawData:               answers,
			RecentSubmissions:     history,
		},
		isFraud: isFraud,
	}
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

func run(subs []labeledSubmission, baseURL string, numWorkers int, verbose bool) *metrics {
	m := &metrics{severities: make(map[string]int64)}

	work := make(chan labeledSubmission, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for item := range work {
				start := time.Now()
				result, err := score(client, baseURL, item.sub)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&m.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&m.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&m.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", item.sub.SubmissionID, err)
					}
					continue
				}

				if item.isFraud {
					atomic.AddInt64(&m.TotalFraud, 1)
				} else {
					atomic.AddInt64(&m.TotalClean, 1)
				}

				flagged := result.Severity != "clean"
				switch {
				case item.isFraud && flagged:
					atomic.AddInt64(&m.FraudFlagged, 1)
				case item.isFraud && !flagged:
					atomic.AddInt64(&m.FraudMissed, 1)
				case !item.isFraud && flagged:
					atomic.AddInt64(&m.CleanFlagged, 1)
				}

				m.mu.Lock()
				m.severities[result.Severity]++
				m.mu.Unlock()

				if verbose {
					fmt.Printf("%-12s | fraud: %-5v | score: %6.2f | severity: %s\n",
						item.sub.SubmissionID, item.isFraud, result.TotalScore, result.Severity)
				}
			}
		}()
	}

	for _, item := range subs {
		work <- item
	}
	close(work)
	wg.Wait()

	return m
}

func score(client *http.Client, baseURL string, sub submission) (*detection, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/submissions/"+sub.SubmissionID+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result detection
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Injected Fraud:   %d\n", m.TotalFraud)
	fmt.Printf("   Clean:            %d\n", m.TotalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nSEVERITY DISTRIBUTION\n")
	for _, sev := range []string{"clean", "low", "medium", "high", "critical"} {
		fmt.Printf("   %-9s %d\n", sev+":", m.severities[sev])
	}

	fmt.Printf("\nDETECTION\n")
	if m.TotalFraud > 0 {
		rate := float64(m.FraudFlagged) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Flagged:    %d / %d (%.2f%%)\n", m.FraudFlagged, m.TotalFraud, rate)
		fmt.Printf("   Fraud Missed:     %d / %d (%.2f%%)\n", m.FraudMissed, m.TotalFraud, 100-rate)
	}
	if m.TotalClean > 0 {
		falseRate := float64(m.CleanFlagged) / float64(m.TotalClean) * 100
		fmt.Printf("   False Positives:  %d / %d (%.2f%%)\n", m.CleanFlagged, m.TotalClean, falseRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rate := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f submissions/sec\n", rate)
	}
	fmt.Println()
}
