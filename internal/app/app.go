package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"

	"AdverseScreener/internal/config"
	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/infrastructure/fetcher"
	"AdverseScreener/internal/infrastructure/storage"
	"AdverseScreener/internal/infrastructure/telegram"
	"AdverseScreener/internal/logging"
	"AdverseScreener/internal/oracle"
	"AdverseScreener/internal/ports"
	"AdverseScreener/internal/screening"
	"AdverseScreener/internal/usecase"
)

// Application wires configuration into the screening use case and owns the
// process-lifetime resources.
type Application struct {
	cfg    config.Config
	runner *usecase.Runner
	oracle *oracle.Client
	db     *sql.DB
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	backends, err := buildBackends(cfg.Oracle)
	if err != nil {
		return nil, err
	}
	client, err := oracle.NewClient(backends, cfg.Oracle.MaxAttempts, cfg.Oracle.Backoff(), cfg.Oracle.Timeout(), baseLogger.With("component", "oracle"))
	if err != nil {
		return nil, err
	}

	source := fetcher.NewHTMLFetcher(
		&http.Client{Timeout: cfg.Fetcher.Timeout()},
		cfg.Fetcher.UserAgent,
		cfg.Fetcher.MaxArticleChars,
	)

	pipeline, err := screening.NewPipeline(screening.Deps{
		Source:     source,
		Extractor:  screening.NewExtractor(client, cfg.Oracle.MaxTokens, baseLogger.With("component", "extractor")),
		Matcher:    screening.NewMatcher(client, cfg.Matching.AgeToleranceYears, cfg.Oracle.MaxTokens, baseLogger.With("component", "matcher")),
		Classifier: screening.NewClassifier(client, cfg.Oracle.MaxTokens, baseLogger.With("component", "classifier")),
		Audit:      logAudit{logger: baseLogger.With("component", "audit")},
		Logger:     baseLogger.With("component", "pipeline"),
	})
	if err != nil {
		return nil, err
	}

	application := &Application{cfg: cfg, oracle: client}

	var reports ports.ReportSink
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		application.db = db
		reports = storage.NewPostgresRepository(db)
	}

	var alerts ports.AlertNotifier
	if cfg.Alerts.Telegram.BotToken != "" && cfg.Alerts.Telegram.ChatID != "" {
		alerts = telegram.NewNotifier(cfg.Alerts.Telegram.BotToken, cfg.Alerts.Telegram.ChatID)
	}

	application.runner = usecase.NewRunner(usecase.RunnerDeps{
		Pipeline:    pipeline,
		Reports:     reports,
		Alerts:      alerts,
		Logger:      baseLogger.With("component", "runner"),
		Concurrency: cfg.Batch.Concurrency,
	})
	return application, nil
}

// Screen runs one screening request through the full pipeline.
func (a *Application) Screen(ctx context.Context, req domain.ScreeningRequest) (domain.ScreeningResult, error) {
	return a.runner.Screen(ctx, req)
}

// ScreenAll runs a batch of requests with the configured concurrency.
func (a *Application) ScreenAll(ctx context.Context, reqs []domain.ScreeningRequest) ([]domain.ScreeningResult, error) {
	return a.runner.ScreenAll(ctx, reqs)
}

// Close releases process-lifetime resources.
func (a *Application) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func buildBackends(cfg config.OracleConfig) ([]oracle.Backend, error) {
	backends := make([]oracle.Backend, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		switch p.Kind {
		case "openai", "":
			backends = append(backends, oracle.NewOpenAI(p.Name, p.BaseURL, p.Model, p.APIKey(), cfg.Timeout()))
		case "anthropic":
			backends = append(backends, oracle.NewAnthropic(p.Name, p.BaseURL, p.Model, p.APIKey(), cfg.Timeout()))
		default:
			return nil, fmt.Errorf("unknown oracle provider kind %q", p.Kind)
		}
	}
	return backends, nil
}

// logAudit mirrors every oracle call into the structured log. It stands in
// for a dedicated audit store and is safe for concurrent runs.
type logAudit struct {
	logger *slog.Logger
}

var _ ports.AuditSink = logAudit{}

func (l logAudit) Record(_ context.Context, call domain.OracleCallRecord) {
	l.logger.Info("oracle call",
		"stage", call.Stage,
		"backend", call.Backend,
		"model", call.Model,
		"digest", call.PromptDigest,
		"tokens_in", call.InputTokens,
		"tokens_out", call.OutputTokens,
		"cost_usd", call.CostUSD,
		"latency_ms", call.Latency.Milliseconds(),
		"success", call.Success,
	)
}
