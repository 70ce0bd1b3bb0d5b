package usecase

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/oracle"
	"AdverseScreener/internal/screening"
)

const (
	extractionReply = `[{"full_name": "John Smith", "context_snippet": "charged with fraud"}]`
	matchReply      = `{"reasoning_steps": ["same name"], "decision": "MATCH", "confidence": "HIGH", "match_probability": 0.9, "supporting_evidence": [], "contradicting_evidence": [], "missing_information": []}`
	noMatchReply    = `{"reasoning_steps": ["different person"], "decision": "NO_MATCH", "confidence": "HIGH", "match_probability": 0.1, "supporting_evidence": [], "contradicting_evidence": [], "missing_information": []}`
	adverseReply    = `{"classification": "NEGATIVE", "is_adverse_media": true, "severity": "HIGH", "category": "LEGAL", "adverse_indicators": [], "positive_indicators": [], "evidence_snippets": [], "reasoning": "fraud charges"}`
)

type memorySink struct {
	mu      sync.Mutex
	results []domain.ScreeningResult
}

func (m *memorySink) SaveResult(_ context.Context, result domain.ScreeningResult) error {
	m.mu.Lock()
	m.results = append(m.results, result)
	m.mu.Unlock()
	return nil
}

type memoryAlerts struct {
	mu     sync.Mutex
	alerts []domain.ScreeningResult
}

func (m *memoryAlerts) NotifyAdverse(_ context.Context, result domain.ScreeningResult) error {
	m.mu.Lock()
	m.alerts = append(m.alerts, result)
	m.mu.Unlock()
	return nil
}

func newTestRunner(t *testing.T, backend oracle.Backend, reports *memorySink, alerts *memoryAlerts) *Runner {
	t.Helper()
	logger := slog.Default()

	client, err := oracle.NewClient([]oracle.Backend{backend}, 1, 0, 0, logger)
	require.NoError(t, err)

	pipeline, err := screening.NewPipeline(screening.Deps{
		Extractor:  screening.NewExtractor(client, 1024, logger),
		Matcher:    screening.NewMatcher(client, 1, 1024, logger),
		Classifier: screening.NewClassifier(client, 1024, logger),
		Logger:     logger,
	})
	require.NoError(t, err)

	deps := RunnerDeps{
		Pipeline:    pipeline,
		Reports:     reports,
		Logger:      logger,
		Concurrency: 2,
	}
	if alerts != nil {
		deps.Alerts = alerts
	}
	return NewRunner(deps)
}

func TestRunnerScreenPersistsAndAlerts(t *testing.T) {
	t.Parallel()

	backend := &oracle.FakeBackend{
		BackendName: "fake",
		Script: []oracle.FakeResult{
			{Text: extractionReply},
			{Text: matchReply},
			{Text: adverseReply},
		},
	}
	reports := &memorySink{}
	alerts := &memoryAlerts{}
	runner := newTestRunner(t, backend, reports, alerts)

	req, err := domain.NewScreeningRequest("John Smith", "", "", "John Smith was charged with fraud.")
	require.NoError(t, err)

	result, err := runner.Screen(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAdverseMatch, result.FinalStatus)
	require.Len(t, reports.results, 1)
	assert.Equal(t, req.ID, reports.results[0].Request.ID)
	require.Len(t, alerts.alerts, 1)
}

func TestRunnerNoAlertWithoutAdverseMatch(t *testing.T) {
	t.Parallel()

	backend := &oracle.FakeBackend{
		BackendName: "fake",
		Script: []oracle.FakeResult{
			{Text: extractionReply},
			{Text: noMatchReply},
		},
	}
	reports := &memorySink{}
	alerts := &memoryAlerts{}
	runner := newTestRunner(t, backend, reports, alerts)

	req, err := domain.NewScreeningRequest("John Smith", "", "", "Somebody else entirely.")
	require.NoError(t, err)

	result, err := runner.Screen(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusNoMatch, result.FinalStatus)
	assert.Len(t, reports.results, 1)
	assert.Empty(t, alerts.alerts)
}

// stageBackend answers by pipeline stage, so concurrent runs can share it
// without caring about call order.
type stageBackend struct {
	replies map[string]string
}

func (s stageBackend) Name() string  { return "fake" }
func (s stageBackend) Model() string { return "fake-model" }

func (s stageBackend) Complete(_ context.Context, req oracle.Request) (oracle.Response, error) {
	return oracle.Response{
		Text:         s.replies[req.Stage],
		Backend:      "fake",
		Model:        "fake-model",
		InputTokens:  10,
		OutputTokens: 5,
	}, nil
}

func TestRunnerScreenAllKeepsOrder(t *testing.T) {
	t.Parallel()

	backend := stageBackend{replies: map[string]string{
		"extraction": extractionReply,
		"matching":   matchReply,
		"risk":       adverseReply,
	}}
	reports := &memorySink{}
	runner := newTestRunner(t, backend, reports, nil)

	names := []string{"Alice Example", "Bob Example", "Carol Example"}
	reqs := make([]domain.ScreeningRequest, 0, len(names))
	for _, name := range names {
		req, err := domain.NewScreeningRequest(name, "", "", "John Smith was charged with fraud.")
		require.NoError(t, err)
		reqs = append(reqs, req)
	}

	results, err := runner.ScreenAll(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, len(names))
	for i, result := range results {
		assert.Equal(t, names[i], result.Request.SubjectName)
		assert.Equal(t, domain.StatusAdverseMatch, result.FinalStatus)
	}
	assert.Len(t, reports.results, len(names))
}
