// Package main replays feedback events from a CSV file against the feedback API.
//
// The CSV must have a header row. Recognised columns: page, type, episodeId, value, text,
// action, timestamp (RFC 3339). Empty cells are omitted from the request.
//
// Usage:
//
//	go run scripts/ingest_csv.go -file feedback.csv -api-url http://localhost:8080 -session TOKEN
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/models"
)

// Config holds the CLI configuration.
type Config struct {
	FilePath   string
	APIBaseURL string
	Session    string
	RatePerSec float64
	DryRun     bool
}

// Stats tracks ingestion statistics.
type Stats struct {
	TotalRows       int
	SkippedInvalid  int
	SuccessfulPosts int
	FailedPosts     int
}

var errMissingColumn = errors.New("missing required column")

func main() {
	cfg := parseFlags()

	if cfg.FilePath == "" {
		fmt.Println("Error: -file is required")
		flag.Usage()
		os.Exit(1)
	}

	fmt.Printf("Feedback CSV ingestion\n")
	fmt.Printf("   API URL: %s\n", cfg.APIBaseURL)
	fmt.Printf("   CSV File: %s\n", cfg.FilePath)
	fmt.Printf("   Rate: %.1f requests/s\n", cfg.RatePerSec)

	if cfg.DryRun {
		fmt.Printf("   DRY RUN MODE - no API calls will be made\n")
	}

	fmt.Println()

	stats, err := processCSV(context.Background(), cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("Rows read:       %d\n", stats.TotalRows)
	fmt.Printf("Skipped invalid: %d\n", stats.SkippedInvalid)
	fmt.Printf("Posted:          %d\n", stats.SuccessfulPosts)
	fmt.Printf("Failed:          %d\n", stats.FailedPosts)

	if stats.FailedPosts > 0 {
		os.Exit(1)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.FilePath, "file", "", "path to the CSV file (required)")
	flag.StringVar(&cfg.APIBaseURL, "api-url", "http://localhost:8080", "API base URL")
	flag.StringVar(&cfg.Session, "session", "", "session token sent as a Bearer token (optional)")
	flag.Float64Var(&cfg.RatePerSec, "rate", 10, "maximum requests per second")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "print requests without sending them")
	flag.Parse()

	return cfg
}

func processCSV(ctx context.Context, cfg Config) (Stats, error) {
	var stats Stats

	f, err := os.Open(cfg.FilePath)
	if err != nil {
		return stats, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return stats, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	for _, required := range []string{"page", "type"} {
		if _, ok := columns[required]; !ok {
			return stats, fmt.Errorf("%w: %s", errMissingColumn, required)
		}
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	client := &http.Client{Timeout: 30 * time.Second}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return stats, fmt.Errorf("read row %d: %w", stats.TotalRows+2, err)
		}

		stats.TotalRows++

		req, err := rowToRequest(columns, record)
		if err != nil {
			fmt.Printf("   row %d skipped: %v\n", stats.TotalRows+1, err)

			stats.SkippedInvalid++

			continue
		}

		if cfg.DryRun {
			body, _ := json.Marshal(req)
			fmt.Printf("   would POST %s\n", body)

			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return stats, fmt.Errorf("rate limiter: %w", err)
		}

		if err := postFeedback(ctx, client, cfg, req); err != nil {
			fmt.Printf("   row %d failed: %v\n", stats.TotalRows+1, err)

			stats.FailedPosts++

			continue
		}

		stats.SuccessfulPosts++
	}

	return stats, nil
}

func rowToRequest(columns map[string]int, record []string) (*models.CreateFeedbackRequest, error) {
	cell := func(name string) *string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return nil
		}

		v := strings.TrimSpace(record[i])
		if v == "" {
			return nil
		}

		return &v
	}

	req := &models.CreateFeedbackRequest{
		EpisodeID: cell("episodeId"),
		Value:     cell("value"),
		Text:      cell("text"),
		Action:    cell("action"),
	}

	if page := cell("page"); page != nil {
		req.Page = *page
	}

	if typ := cell("type"); typ != nil {
		req.Type = *typ
	}

	if ts := cell("timestamp"); ts != nil {
		t, err := time.Parse(time.RFC3339, *ts)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", *ts, err)
		}

		req.Timestamp = &t
	}

	return req, nil
}

func postFeedback(ctx context.Context, client *http.Client, cfg Config, req *models.CreateFeedbackRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(cfg.APIBaseURL, "/")+"/api/feedback", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	if cfg.Session != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.Session)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var errBody struct {
			Error string `json:"error"`
		}

		_ = json.NewDecoder(resp.Body).Decode(&errBody)

		return fmt.Errorf("status %d: %s", resp.StatusCode, errBody.Error)
	}

	return nil
}
