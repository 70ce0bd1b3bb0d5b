package screening

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/ports"
)

const adverseRiskReplyJSON = `{
	"classification": "NEGATIVE",
	"is_adverse_media": true,
	"severity": "HIGH",
	"category": "FINANCIAL",
	"adverse_indicators": ["fraud charges"],
	"positive_indicators": [],
	"evidence_snippets": ["was charged with fraud"],
	"reasoning": "criminal fraud charges against the subject"
}`

const cleanRiskReplyJSON = `{
	"classification": "NEUTRAL",
	"is_adverse_media": false,
	"severity": "",
	"category": "OTHER",
	"adverse_indicators": [],
	"positive_indicators": [],
	"evidence_snippets": [],
	"reasoning": "routine business coverage"
}`

const singleEntityExtractionJSON = `[
	{"full_name": "John Smith", "age": "45 years old", "occupation": "CFO", "context_snippet": "John Smith was charged with fraud."}
]`

type stubSource struct {
	article domain.ArticleMetadata
	err     error
	fetched int
}

func (s *stubSource) Fetch(_ context.Context, _ string) (domain.ArticleMetadata, error) {
	s.fetched++
	if s.err != nil {
		return domain.ArticleMetadata{}, s.err
	}
	return s.article, nil
}

type stubAudit struct {
	mu    sync.Mutex
	calls []domain.OracleCallRecord
}

func (s *stubAudit) Record(_ context.Context, call domain.OracleCallRecord) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func newTestPipeline(t *testing.T, inv OracleInvoker, source ports.ArticleSource, audit ports.AuditSink) *Pipeline {
	t.Helper()
	logger := slog.Default()
	pipeline, err := NewPipeline(Deps{
		Source:     source,
		Extractor:  NewExtractor(inv, 1024, logger),
		Matcher:    NewMatcher(inv, 1, 1024, logger),
		Classifier: NewClassifier(inv, 1024, logger),
		Audit:      audit,
		Logger:     logger,
	})
	require.NoError(t, err)
	return pipeline
}

func literalRequest(t *testing.T, dob string) domain.ScreeningRequest {
	t.Helper()
	req, err := domain.NewScreeningRequest("John Smith", dob,
		"", "John Smith, 45 years old, a CFO from London, was charged with fraud.")
	require.NoError(t, err)
	return req
}

func TestPipelineAdverseMatch(t *testing.T) {
	t.Parallel()

	inv := scriptedOracle(
		oracleStep{text: singleEntityExtractionJSON},
		oracleStep{text: matchReplyJSON},
		oracleStep{text: adverseRiskReplyJSON},
	)
	audit := &stubAudit{}
	pipeline := newTestPipeline(t, inv, nil, audit)

	state, err := pipeline.Run(context.Background(), literalRequest(t, ""))
	require.NoError(t, err)
	require.NotNil(t, state.Result)

	result := *state.Result
	assert.Equal(t, domain.StatusAdverseMatch, result.FinalStatus)
	assert.Equal(t, domain.DecisionMatch, result.Match.Decision)
	require.NotNil(t, result.Risk)
	assert.True(t, result.Risk.IsAdverse)
	assert.Equal(t, domain.SeverityHigh, result.Risk.Severity)

	assert.Equal(t, []string{"extraction", "matching", "risk"}, inv.stages())
	assert.Equal(t, []State{
		StateFetching, StateExtracting, StateMatching,
		StateRiskAssessing, StateAssembling, StateDone,
	}, state.Trail)

	// Every oracle call lands in the run state and in the audit sink.
	assert.Len(t, state.Calls, 3)
	assert.Len(t, audit.calls, 3)
	assert.Len(t, result.Audit.Calls, 3)
	assert.Greater(t, result.Audit.TotalCostUSD, 0.0)
}

func TestPipelineClearMatch(t *testing.T) {
	t.Parallel()

	inv := scriptedOracle(
		oracleStep{text: singleEntityExtractionJSON},
		oracleStep{text: matchReplyJSON},
		oracleStep{text: cleanRiskReplyJSON},
	)
	pipeline := newTestPipeline(t, inv, nil, nil)

	state, err := pipeline.Run(context.Background(), literalRequest(t, ""))
	require.NoError(t, err)
	require.NotNil(t, state.Result)
	assert.Equal(t, domain.StatusClearMatch, state.Result.FinalStatus)
}

func TestPipelineNoMatchSkipsRisk(t *testing.T) {
	t.Parallel()

	inv := scriptedOracle(
		oracleStep{text: singleEntityExtractionJSON},
		oracleStep{text: noMatchReplyJSON},
	)
	pipeline := newTestPipeline(t, inv, nil, nil)

	state, err := pipeline.Run(context.Background(), literalRequest(t, ""))
	require.NoError(t, err)
	require.NotNil(t, state.Result)

	assert.Equal(t, domain.StatusNoMatch, state.Result.FinalStatus)
	assert.Nil(t, state.Result.Risk)
	assert.Equal(t, []string{"extraction", "matching"}, inv.stages())
	assert.Contains(t, state.Trail, StateSkippedRisk)
	assert.NotContains(t, state.Trail, StateRiskAssessing)
}

func TestPipelineEmptyExtractionResolvesUncertain(t *testing.T) {
	t.Parallel()

	inv := scriptedOracle(
		oracleStep{text: "[]"},
		oracleStep{text: cleanRiskReplyJSON},
	)
	pipeline := newTestPipeline(t, inv, nil, nil)

	state, err := pipeline.Run(context.Background(), literalRequest(t, ""))
	require.NoError(t, err)
	require.NotNil(t, state.Result)

	result := *state.Result
	assert.Equal(t, domain.StatusReviewRequired, result.FinalStatus)
	assert.Equal(t, domain.DecisionUncertain, result.Match.Decision)
	assert.Equal(t, domain.ConfidenceLow, result.Match.Confidence)
	// No candidates means no per-candidate matching calls.
	assert.Equal(t, []string{"extraction", "risk"}, inv.stages())
}

func TestPipelineAgeVetoEndsNoMatch(t *testing.T) {
	t.Parallel()

	mismatched := `[{"full_name": "John Smith", "age": "25 years old", "context_snippet": "a young athlete"}]`
	inv := scriptedOracle(oracleStep{text: mismatched})
	pipeline := newTestPipeline(t, inv, nil, nil)

	// Subject born 1979 cannot be the 25-year-old in the article.
	state, err := pipeline.Run(context.Background(), literalRequest(t, "1979-03-10"))
	require.NoError(t, err)
	require.NotNil(t, state.Result)

	assert.Equal(t, domain.StatusNoMatch, state.Result.FinalStatus)
	assert.InDelta(t, AgeVetoProbability, state.Result.Match.Probability, 1e-9)
	// Extraction is the only oracle call; the veto and the skipped risk
	// stage are deterministic.
	assert.Equal(t, []string{"extraction"}, inv.stages())
}

func TestPipelineFetchFailure(t *testing.T) {
	t.Parallel()

	source := &stubSource{err: fmt.Errorf("connection refused: %w", ports.ErrRetrieval)}
	inv := scriptedOracle(oracleStep{text: "[]"})
	pipeline := newTestPipeline(t, inv, source, nil)

	req, err := domain.NewScreeningRequest("John Smith", "", "https://unreachable.example.com/a", "")
	require.NoError(t, err)

	state, err := pipeline.Run(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrRetrieval)

	assert.Nil(t, state.Result)
	assert.Equal(t, StateFailed, state.Current())
	assert.Equal(t, 0, inv.calls())
	require.NotEmpty(t, state.Errors)
	assert.True(t, state.Errors[len(state.Errors)-1].Fatal)
}

func TestPipelineSoftErrorsDoNotFailRun(t *testing.T) {
	t.Parallel()

	twoEntities := `[
		{"full_name": "Broken Reply"},
		{"full_name": "John Smith", "age": "45 years old"}
	]`
	inv := scriptedOracle(
		oracleStep{text: twoEntities},
		oracleStep{text: "not json"},
		oracleStep{text: "still not json"},
		oracleStep{text: matchReplyJSON},
		oracleStep{text: adverseRiskReplyJSON},
	)
	pipeline := newTestPipeline(t, inv, nil, nil)

	state, err := pipeline.Run(context.Background(), literalRequest(t, ""))
	require.NoError(t, err)
	require.NotNil(t, state.Result)

	assert.Equal(t, domain.StatusAdverseMatch, state.Result.FinalStatus)
	require.Len(t, state.Result.Errors, 1)
	assert.False(t, state.Result.Errors[0].Fatal)
	assert.Equal(t, StateDone, state.Current())
}

func TestPipelineFetchesViaSource(t *testing.T) {
	t.Parallel()

	source := &stubSource{article: testArticle()}
	inv := scriptedOracle(
		oracleStep{text: singleEntityExtractionJSON},
		oracleStep{text: matchReplyJSON},
		oracleStep{text: cleanRiskReplyJSON},
	)
	pipeline := newTestPipeline(t, inv, source, nil)

	req, err := domain.NewScreeningRequest("John Smith", "", "https://news.example.com/fraud", "")
	require.NoError(t, err)

	state, err := pipeline.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, source.fetched)
	assert.Equal(t, "Executive charged", state.Article.Title)
}

func TestPipelineCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := scriptedOracle(oracleStep{text: singleEntityExtractionJSON})
	pipeline := newTestPipeline(t, inv, nil, nil)

	state, err := pipeline.Run(ctx, literalRequest(t, ""))
	require.Error(t, err)
	assert.Equal(t, StateFailed, state.Current())
	assert.Nil(t, state.Result)
}
