package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/ports"
)

// PostgresRepository persists finished screening results.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.ReportSink = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// SaveResult writes the result row and its oracle call records in one
// transaction. A re-run with the same request ID overwrites the verdict.
func (r *PostgresRepository) SaveResult(ctx context.Context, result domain.ScreeningResult) error {
	if r.db == nil {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var severity, category *string
	var adverse *bool
	if result.Risk != nil {
		severity = strPtr(string(result.Risk.Severity))
		category = strPtr(string(result.Risk.Category))
		adverse = &result.Risk.IsAdverse
	}

	insert := r.builder.
		Insert("screening_results").
		Columns(
			"id", "subject_name", "date_of_birth",
			"article_url", "article_title", "article_source",
			"final_status", "decision", "confidence", "match_probability",
			"reasoning", "is_adverse", "severity", "category", "evidence",
			"entity_count", "error_count",
			"total_cost_usd", "total_tokens", "completed_at",
		).
		Values(
			result.Request.ID, result.Request.SubjectName, result.Request.DateOfBirth,
			result.Article.URL, result.Article.Title, result.Article.Source,
			result.FinalStatus, result.Match.Decision, result.Match.Confidence, result.Match.Probability,
			pq.StringArray(result.Match.Reasoning), adverse, severity, category, evidenceArray(result.Risk),
			len(result.Entities), len(result.Errors),
			result.Audit.TotalCostUSD, result.Audit.TotalTokens, result.CompletedAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE
			SET final_status = EXCLUDED.final_status,
			    decision = EXCLUDED.decision,
			    confidence = EXCLUDED.confidence,
			    match_probability = EXCLUDED.match_probability,
			    reasoning = EXCLUDED.reasoning,
			    is_adverse = EXCLUDED.is_adverse,
			    severity = EXCLUDED.severity,
			    category = EXCLUDED.category,
			    evidence = EXCLUDED.evidence,
			    entity_count = EXCLUDED.entity_count,
			    error_count = EXCLUDED.error_count,
			    total_cost_usd = EXCLUDED.total_cost_usd,
			    total_tokens = EXCLUDED.total_tokens,
			    completed_at = EXCLUDED.completed_at`)

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build result insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if err := r.saveCalls(ctx, tx, result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}
	return nil
}

func (r *PostgresRepository) saveCalls(ctx context.Context, tx *sql.Tx, result domain.ScreeningResult) error {
	if len(result.Audit.Calls) == 0 {
		return nil
	}

	del := r.builder.Delete("oracle_calls").Where(sq.Eq{"result_id": result.Request.ID})
	query, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("build calls delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete stale calls: %w", err)
	}

	insert := r.builder.
		Insert("oracle_calls").
		Columns("result_id", "stage", "backend", "model", "prompt_digest",
			"input_tokens", "output_tokens", "cost_usd", "latency_ms", "success", "called_at")
	for _, call := range result.Audit.Calls {
		insert = insert.Values(
			result.Request.ID, call.Stage, call.Backend, call.Model, call.PromptDigest,
			call.InputTokens, call.OutputTokens, call.CostUSD, call.Latency.Milliseconds(),
			call.Success, call.Timestamp,
		)
	}

	query, args, err = insert.ToSql()
	if err != nil {
		return fmt.Errorf("build calls insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert calls: %w", err)
	}
	return nil
}

func evidenceArray(risk *domain.RiskVerdict) pq.StringArray {
	if risk == nil {
		return nil
	}
	return pq.StringArray(risk.Evidence)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
