package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/ports"
	"AdverseScreener/internal/screening"
)

// RunnerDeps wires driven adapters into the screening use case.
type RunnerDeps struct {
	Pipeline    *screening.Pipeline
	Reports     ports.ReportSink
	Alerts      ports.AlertNotifier
	Logger      *slog.Logger
	Concurrency int
}

// Runner executes screening requests, persists finished results, and raises
// alerts on adverse matches.
type Runner struct {
	pipeline    *screening.Pipeline
	reports     ports.ReportSink
	alerts      ports.AlertNotifier
	logger      *slog.Logger
	concurrency int
}

// NewRunner constructs the orchestration component.
func NewRunner(deps RunnerDeps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{
		pipeline:    deps.Pipeline,
		reports:     deps.Reports,
		alerts:      deps.Alerts,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Screen runs one request end to end. Persistence and alerting happen only
// for completed runs; a failed pipeline produces no result to save.
func (r *Runner) Screen(ctx context.Context, req domain.ScreeningRequest) (domain.ScreeningResult, error) {
	state, err := r.pipeline.Run(ctx, req)
	if err != nil {
		return domain.ScreeningResult{}, fmt.Errorf("screen %s: %w", req.SubjectName, err)
	}
	result := *state.Result

	if r.reports != nil {
		if err := r.reports.SaveResult(ctx, result); err != nil {
			return domain.ScreeningResult{}, fmt.Errorf("persist result %s: %w", req.ID, err)
		}
	}

	if r.alerts != nil && result.FinalStatus == domain.StatusAdverseMatch {
		if err := r.alerts.NotifyAdverse(ctx, result); err != nil {
			// The verdict stands even when the alert channel is down.
			r.logger.Warn("adverse alert failed", "run_id", req.ID, "error", err)
		}
	}

	return result, nil
}

// ScreenAll runs a batch of requests with bounded concurrency. The first
// failure cancels the remaining runs.
func (r *Runner) ScreenAll(ctx context.Context, reqs []domain.ScreeningRequest) ([]domain.ScreeningResult, error) {
	results := make([]domain.ScreeningResult, len(reqs))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for i := range reqs {
		i := i
		group.Go(func() error {
			result, err := r.Screen(ctx, reqs[i])
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
