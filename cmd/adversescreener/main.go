package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"AdverseScreener/internal/app"
	"AdverseScreener/internal/config"
	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/logging"
)

func main() {
	var (
		name       = flag.String("name", "", "full name of the screening subject")
		dob        = flag.String("dob", "", "subject date of birth, YYYY-MM-DD (optional)")
		articleURL = flag.String("url", "", "article URL to screen against")
		text       = flag.String("text", "", "literal article text (instead of -url)")
		batchPath  = flag.String("batch", "", "path to a JSON file with a batch of requests")
	)
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if *batchPath != "" {
		if err := runBatch(ctx, application, *batchPath); err != nil {
			logger.Error("batch screening failed", "error", err)
			os.Exit(1)
		}
		return
	}

	req, err := domain.NewScreeningRequest(*name, *dob, *articleURL, *text)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	result, err := application.Screen(ctx, req)
	if err != nil {
		logger.Error("screening failed", "error", err)
		os.Exit(1)
	}
	printResult(result)
}

type batchEntry struct {
	SubjectName string `json:"subject_name"`
	DateOfBirth string `json:"date_of_birth"`
	ArticleURL  string `json:"article_url"`
	ArticleText string `json:"article_text"`
}

func runBatch(ctx context.Context, application *app.Application, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}

	var entries []batchEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse batch file: %w", err)
	}

	reqs := make([]domain.ScreeningRequest, 0, len(entries))
	for _, e := range entries {
		req, err := domain.NewScreeningRequest(e.SubjectName, e.DateOfBirth, e.ArticleURL, e.ArticleText)
		if err != nil {
			return fmt.Errorf("entry %q: %w", e.SubjectName, err)
		}
		reqs = append(reqs, req)
	}

	results, err := application.ScreenAll(ctx, reqs)
	if err != nil {
		return err
	}
	for _, result := range results {
		printResult(result)
	}
	return nil
}

func printResult(result domain.ScreeningResult) {
	out := map[string]any{
		"run_id":            result.Request.ID,
		"subject":           result.Request.SubjectName,
		"final_status":      result.FinalStatus,
		"decision":          result.Match.Decision,
		"confidence":        result.Match.Confidence,
		"match_probability": result.Match.Probability,
		"oracle_calls":      len(result.Audit.Calls),
		"total_cost_usd":    result.Audit.TotalCostUSD,
	}
	if result.Risk != nil {
		out["is_adverse"] = result.Risk.IsAdverse
		out["severity"] = result.Risk.Severity
		out["category"] = result.Risk.Category
	}
	encoded, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(encoded))
}
