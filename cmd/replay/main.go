// Replay tool for measuring the scorer against labelled PaySim data.
//
// Usage:
//
//	go run ./cmd/replay -csv /path/to/paysim.csv -url http://localhost:8000
//
// This tool:
//  1. Reads PaySim transactions with their fraud labels
//  2. Sends each one to the scorer's /analyze endpoint
//  3. Assembles a risk assessment and treats a high level as a fraud verdict
//  4. Prints the confusion matrix, precision, recall and F1
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/fraudshield/internal/client"
	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/opensource-finance/fraudshield/internal/risk"
)

// LabelledTransaction is a PaySim row with its ground truth.
type LabelledTransaction struct {
	Submission     domain.TransactionSubmission
	IsFraud        bool
	IsFlaggedFraud bool
}

// Scores tracks replay results.
type Scores struct {
	TruePositives  int64 // Fraud assessed as high
	FalsePositives int64 // Non-fraud assessed as high
	TrueNegatives  int64 // Non-fraud assessed below high
	FalseNegatives int64 // Fraud assessed below high

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64

	mu          sync.Mutex
	fraudVolume decimal.Decimal
	totalVolume decimal.Decimal
}

func (s *Scores) record(tx LabelledTransaction, predicted bool) {
	if tx.IsFraud {
		atomic.AddInt64(&s.TotalFraud, 1)
	} else {
		atomic.AddInt64(&s.TotalNonFraud, 1)
	}

	switch {
	case predicted && tx.IsFraud:
		atomic.AddInt64(&s.TruePositives, 1)
	case predicted && !tx.IsFraud:
		atomic.AddInt64(&s.FalsePositives, 1)
	case !predicted && !tx.IsFraud:
		atomic.AddInt64(&s.TrueNegatives, 1)
	default:
		atomic.AddInt64(&s.FalseNegatives, 1)
	}

	amount := decimal.NewFromFloat(tx.Submission.Amount)
	s.mu.Lock()
	s.totalVolume = s.totalVolume.Add(amount)
	if predicted && tx.IsFraud {
		s.fraudVolume = s.fraudVolume.Add(amount)
	}
	s.mu.Unlock()
}

// Precision is TP / (TP + FP), zero when nothing was flagged.
func (s *Scores) Precision() float64 {
	return ratio(s.TruePositives, s.TruePositives+s.FalsePositives)
}

// Recall is TP / (TP + FN), zero when there was no fraud.
func (s *Scores) Recall() float64 {
	return ratio(s.TruePositives, s.TruePositives+s.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (s *Scores) F1() float64 {
	p, r := s.Precision(), s.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Accuracy is the share of correct verdicts.
func (s *Scores) Accuracy() float64 {
	total := s.TruePositives + s.TrueNegatives + s.FalsePositives + s.FalseNegatives
	return ratio(s.TruePositives+s.TrueNegatives, total)
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8000", "Scorer base URL")
	token := flag.String("token", os.Getenv("FRAUDSHIELD_UPSTREAM_TOKEN"), "Bearer token for the scorer")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only replay fraud transactions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for non-fraud (0.0-1.0)")
	timeout := flag.Duration("timeout", 10*time.Second, "Per-request timeout")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/paysim.csv [-url http://localhost:8000]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         FRAUDSHIELD REPLAY - PaySim Fraud Detection           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Scorer URL:  %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	transactions, err := readPaySimCSV(file, *limit, *fraudOnly, *sampleRate)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(transactions) == 0 {
		fmt.Println("ERROR: no transactions matched the filters")
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transactions\n", len(transactions))

	scorer := client.New(domain.UpstreamConfig{
		BaseURL: *baseURL,
		Timeout: *timeout,
		Token:   *token,
	}, nil)
	assembler := risk.NewAssembler(nil)

	fmt.Printf("\nReplaying with %d workers...\n", *workers)
	startTime := time.Now()
	scores := replay(context.Background(), scorer, assembler, transactions, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(scores, duration)
}

// readPaySimCSV reads labelled transactions. Column lookup is by
// case-insensitive header name, so column order does not matter.
func readPaySimCSV(r io.Reader, limit int, fraudOnly bool, sampleRate float64) ([]LabelledTransaction, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"type", "amount", "nameorig", "namedest", "isfraud"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	number := func(record []string, name string) float64 {
		v, _ := strconv.ParseFloat(field(record, name), 64)
		return v
	}

	var transactions []LabelledTransaction
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isFraud := field(record, "isfraud") == "1"
		if fraudOnly && !isFraud {
			continue
		}
		if !isFraud && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		step, _ := strconv.Atoi(field(record, "step"))
		transactions = append(transactions, LabelledTransaction{
			Submission: domain.TransactionSubmission{
				Step:                step,
				Type:                domain.TransactionType(field(record, "type")),
				Amount:              number(record, "amount"),
				OriginAccount:       field(record, "nameorig"),
				OriginBalanceBefore: number(record, "oldbalanceorg"),
				OriginBalanceAfter:  number(record, "newbalanceorig"),
				DestAccount:         field(record, "namedest"),
				DestBalanceBefore:   number(record, "oldbalancedest"),
				DestBalanceAfter:    number(record, "newbalancedest"),
			},
			IsFraud:        isFraud,
			IsFlaggedFraud: field(record, "isflaggedfraud") == "1",
		})

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

func replay(ctx context.Context, scorer *client.Client, assembler *risk.Assembler, transactions []LabelledTransaction, numWorkers int, verbose bool) *Scores {
	scores := &Scores{}
	if numWorkers < 1 {
		numWorkers = 1
	}

	work := make(chan LabelledTransaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for tx := range work {
				start := time.Now()
				raw, err := scorer.Analyze(ctx, &tx.Submission)
				atomic.AddInt64(&scores.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&scores.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&scores.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", tx.Submission.OriginAccount, err)
					}
					continue
				}

				assessment := assembler.Assemble(tx.Submission.OriginAccount, *raw)
				predicted := assessment.HighRisk()
				scores.record(tx, predicted)

				if verbose {
					mark := "✓"
					if predicted != tx.IsFraud {
						mark = "✗"
					}
					fmt.Printf("%s %-12s | Type: %-8s | Amount: $%12.2f | Fraud: %-5v | Risk: %-6s (%.1f%%)\n",
						mark,
						tx.Submission.OriginAccount,
						tx.Submission.Type,
						tx.Submission.Amount,
						tx.IsFraud,
						assessment.RiskLevel,
						assessment.RiskScore,
					)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)
	wg.Wait()

	return scores
}

func printResults(s *Scores, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        REPLAY RESULTS                         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", s.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", s.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", s.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", s.TotalErrors)
	fmt.Printf("   Scored Volume:    $%s\n", s.totalVolume.StringFixed(2))
	fmt.Printf("   Caught Volume:    $%s\n", s.fraudVolume.StringFixed(2))

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    HIGH      NOT HIGH")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", s.TruePositives, s.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", s.FalsePositives, s.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", s.Precision())
	fmt.Printf("   Recall:     %.4f\n", s.Recall())
	fmt.Printf("   F1-Score:   %.4f\n", s.F1())
	fmt.Printf("   Accuracy:   %.4f\n", s.Accuracy())

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if s.TotalProcessed > 0 {
		avgMs := float64(s.ProcessingTimeMs) / float64(s.TotalProcessed)
		tps := float64(s.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}
	fmt.Println()
}
