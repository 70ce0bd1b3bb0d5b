package screening

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/oracle"
	"AdverseScreener/internal/ports"
)

// State names one phase of a screening run. The run moves strictly forward
// through the happy path; FAILED is reachable from any phase.
type State string

const (
	StateFetching      State = "FETCHING"
	StateExtracting    State = "EXTRACTING"
	StateMatching      State = "MATCHING"
	StateRiskAssessing State = "RISK_ASSESSING"
	StateSkippedRisk   State = "SKIPPED_RISK"
	StateAssembling    State = "ASSEMBLING"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// PipelineState is the accumulating record of one run. Stages only append;
// nothing written by an earlier stage is ever mutated.
type PipelineState struct {
	Request  domain.ScreeningRequest
	Article  domain.ArticleMetadata
	Entities []domain.PersonEntity
	Match    *domain.MatchVerdict
	Risk     *domain.RiskVerdict
	Calls    []domain.OracleCallRecord
	Errors   []domain.StageError
	Trail    []State
	Result   *domain.ScreeningResult
}

// Current reports the most recent state of the trail.
func (s *PipelineState) Current() State {
	if len(s.Trail) == 0 {
		return ""
	}
	return s.Trail[len(s.Trail)-1]
}

func (s *PipelineState) advance(next State) {
	s.Trail = append(s.Trail, next)
}

// Deps carries everything a Pipeline needs. Audit may be nil.
type Deps struct {
	Source     ports.ArticleSource
	Extractor  *Extractor
	Matcher    *Matcher
	Classifier *Classifier
	Audit      ports.AuditSink
	Logger     *slog.Logger
}

// Pipeline drives one screening request through the staged state machine.
type Pipeline struct {
	deps Deps
	now  func() time.Time
}

func NewPipeline(deps Deps) (*Pipeline, error) {
	if deps.Extractor == nil || deps.Matcher == nil || deps.Classifier == nil {
		return nil, fmt.Errorf("pipeline requires extractor, matcher and classifier")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{deps: deps, now: time.Now}, nil
}

// Run executes one screening request to completion. On success the returned
// state carries a Result and its trail ends in DONE; on a fatal stage error
// the trail ends in FAILED, the error describes the stage, and no result is
// produced.
func (p *Pipeline) Run(ctx context.Context, req domain.ScreeningRequest) (*PipelineState, error) {
	state := &PipelineState{Request: req}
	if err := p.execute(ctx, state); err != nil {
		state.advance(StateFailed)
		return state, err
	}
	return state, nil
}

func (p *Pipeline) execute(ctx context.Context, state *PipelineState) error {
	record := p.recorder(ctx, state)
	req := state.Request
	log := p.deps.Logger.With("run_id", req.ID, "subject", req.SubjectName)

	state.advance(StateFetching)
	article, err := p.fetch(ctx, req)
	if err != nil {
		return p.fail(state, "fetching", err)
	}
	state.Article = article
	log.Info("article resolved", "url", article.URL, "words", article.WordCount)

	if err := ctx.Err(); err != nil {
		return p.fail(state, "fetching", err)
	}

	state.advance(StateExtracting)
	entities, err := p.deps.Extractor.Extract(ctx, req, article, record)
	if err != nil {
		return p.fail(state, "extraction", err)
	}
	state.Entities = entities

	if err := ctx.Err(); err != nil {
		return p.fail(state, "extraction", err)
	}

	state.advance(StateMatching)
	match, err := p.match(ctx, state, record)
	if err != nil {
		return p.fail(state, "matching", err)
	}
	state.Match = &match
	log.Info("identity decided", "decision", match.Decision, "confidence", match.Confidence)

	if err := ctx.Err(); err != nil {
		return p.fail(state, "matching", err)
	}

	if match.Decision == domain.DecisionNoMatch {
		state.advance(StateSkippedRisk)
	} else {
		state.advance(StateRiskAssessing)
		risk, err := p.deps.Classifier.Classify(ctx, req, article, match, record)
		if err != nil {
			return p.fail(state, "risk", err)
		}
		state.Risk = &risk
	}

	state.advance(StateAssembling)
	result := Assemble(state, p.now().UTC())
	state.advance(StateDone)
	state.Result = &result
	log.Info("screening finished", "status", result.FinalStatus,
		"calls", len(result.Audit.Calls), "cost_usd", result.Audit.TotalCostUSD)
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, req domain.ScreeningRequest) (domain.ArticleMetadata, error) {
	if req.ArticleText != "" {
		return domain.NewArticleMetadata(req.ArticleURL, "", "inline", "", req.ArticleText, nil), nil
	}
	if p.deps.Source == nil {
		return domain.ArticleMetadata{}, fmt.Errorf("no article source configured: %w", ports.ErrRetrieval)
	}
	article, err := p.deps.Source.Fetch(ctx, req.ArticleURL)
	if err != nil {
		return domain.ArticleMetadata{}, err
	}
	if article.Text == "" {
		return domain.ArticleMetadata{}, fmt.Errorf("article %s yielded no text: %w", req.ArticleURL, ports.ErrRetrieval)
	}
	return article, nil
}

// match runs identity matching. An article that mentions nobody cannot
// support a confident decision either way, so the empty candidate set
// resolves deterministically to UNCERTAIN without touching the oracle.
func (p *Pipeline) match(ctx context.Context, state *PipelineState, record oracle.RecordFunc) (domain.MatchVerdict, error) {
	if len(state.Entities) == 0 {
		return domain.NewMatchVerdict(
			domain.DecisionUncertain,
			domain.ConfidenceLow,
			0.5,
			[]string{"no person entities were extracted from a non-empty article"},
			nil,
		)
	}

	verdict, softErrs, err := p.deps.Matcher.Match(ctx, state.Request, state.Article, state.Entities, record)
	state.Errors = append(state.Errors, softErrs...)
	return verdict, err
}

func (p *Pipeline) fail(state *PipelineState, stage string, err error) error {
	state.Errors = append(state.Errors, domain.StageError{
		Stage:   stage,
		Message: err.Error(),
		Fatal:   true,
		At:      p.now().UTC(),
	})
	p.deps.Logger.Error("screening failed", "run_id", state.Request.ID, "stage", stage, "error", err)
	return fmt.Errorf("%s: %w", stage, err)
}

// recorder appends every oracle call to the run state and forwards it to
// the audit sink.
func (p *Pipeline) recorder(ctx context.Context, state *PipelineState) oracle.RecordFunc {
	return func(call domain.OracleCallRecord) {
		state.Calls = append(state.Calls, call)
		if p.deps.Audit != nil {
			p.deps.Audit.Record(ctx, call)
		}
	}
}
