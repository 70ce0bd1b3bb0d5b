package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScreeningRequest(t *testing.T) {
	t.Parallel()

	t.Run("valid with url", func(t *testing.T) {
		t.Parallel()
		req, err := NewScreeningRequest("John Smith", "1979-03-10", "https://example.com/a", "")
		require.NoError(t, err)
		assert.NotEqual(t, "", req.ID.String())
		require.NotNil(t, req.DateOfBirth)
		assert.Equal(t, 1979, req.DateOfBirth.Year())
	})

	t.Run("valid with literal text and no dob", func(t *testing.T) {
		t.Parallel()
		req, err := NewScreeningRequest("John Smith", "", "", "some article text")
		require.NoError(t, err)
		assert.Nil(t, req.DateOfBirth)
	})

	t.Run("missing name", func(t *testing.T) {
		t.Parallel()
		_, err := NewScreeningRequest("  ", "", "https://example.com/a", "")
		assert.Error(t, err)
	})

	t.Run("missing article", func(t *testing.T) {
		t.Parallel()
		_, err := NewScreeningRequest("John Smith", "", "", "   ")
		assert.Error(t, err)
	})

	t.Run("malformed dob", func(t *testing.T) {
		t.Parallel()
		_, err := NewScreeningRequest("John Smith", "03/10/1979", "https://example.com/a", "")
		assert.Error(t, err)
	})
}

func TestNewMatchVerdict(t *testing.T) {
	t.Parallel()

	entity := &PersonEntity{FullName: "John Smith"}
	reasoning := []string{"names are identical"}

	t.Run("high confidence match needs high probability", func(t *testing.T) {
		t.Parallel()
		_, err := NewMatchVerdict(DecisionMatch, ConfidenceHigh, 0.7, reasoning, entity)
		assert.Error(t, err)

		v, err := NewMatchVerdict(DecisionMatch, ConfidenceHigh, 0.92, reasoning, entity)
		require.NoError(t, err)
		assert.Equal(t, DecisionMatch, v.Decision)
	})

	t.Run("medium confidence match floor", func(t *testing.T) {
		t.Parallel()
		_, err := NewMatchVerdict(DecisionMatch, ConfidenceMedium, 0.5, reasoning, entity)
		assert.Error(t, err)

		_, err = NewMatchVerdict(DecisionMatch, ConfidenceMedium, 0.65, reasoning, entity)
		assert.NoError(t, err)
	})

	t.Run("high confidence no-match ceiling", func(t *testing.T) {
		t.Parallel()
		_, err := NewMatchVerdict(DecisionNoMatch, ConfidenceHigh, 0.6, reasoning, nil)
		assert.Error(t, err)

		_, err = NewMatchVerdict(DecisionNoMatch, ConfidenceHigh, 0.02, reasoning, nil)
		assert.NoError(t, err)
	})

	t.Run("match requires entity", func(t *testing.T) {
		t.Parallel()
		_, err := NewMatchVerdict(DecisionMatch, ConfidenceHigh, 0.9, reasoning, nil)
		assert.Error(t, err)
	})

	t.Run("reasoning is mandatory", func(t *testing.T) {
		t.Parallel()
		_, err := NewMatchVerdict(DecisionUncertain, ConfidenceLow, 0.5, nil, nil)
		assert.Error(t, err)
	})

	t.Run("probability bounds", func(t *testing.T) {
		t.Parallel()
		_, err := NewMatchVerdict(DecisionUncertain, ConfidenceLow, 1.2, reasoning, nil)
		assert.Error(t, err)
	})
}

func TestNewRiskVerdict(t *testing.T) {
	t.Parallel()

	t.Run("adverse requires negative sentiment", func(t *testing.T) {
		t.Parallel()
		_, err := NewRiskVerdict(SentimentNeutral, true, SeverityHigh, CategoryLegal)
		assert.Error(t, err)
	})

	t.Run("empty category defaults to other", func(t *testing.T) {
		t.Parallel()
		v, err := NewRiskVerdict(SentimentNegative, true, SeverityMedium, "")
		require.NoError(t, err)
		assert.Equal(t, CategoryOther, v.Category)
	})
}

func TestDeriveFinalStatus(t *testing.T) {
	t.Parallel()

	adverse := &RiskVerdict{Sentiment: SentimentNegative, IsAdverse: true, Severity: SeverityHigh}
	clean := &RiskVerdict{Sentiment: SentimentNeutral}

	cases := []struct {
		name  string
		match MatchVerdict
		risk  *RiskVerdict
		want  FinalStatus
	}{
		{"match with adverse media", MatchVerdict{Decision: DecisionMatch}, adverse, StatusAdverseMatch},
		{"match with clean article", MatchVerdict{Decision: DecisionMatch}, clean, StatusClearMatch},
		{"match without risk verdict", MatchVerdict{Decision: DecisionMatch}, nil, StatusClearMatch},
		{"uncertain with adverse media", MatchVerdict{Decision: DecisionUncertain}, adverse, StatusReviewRequired},
		{"uncertain without risk verdict", MatchVerdict{Decision: DecisionUncertain}, nil, StatusReviewRequired},
		{"no match", MatchVerdict{Decision: DecisionNoMatch}, nil, StatusNoMatch},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, DeriveFinalStatus(tc.match, tc.risk))
		})
	}
}

func TestSummarizeAudit(t *testing.T) {
	t.Parallel()

	calls := []OracleCallRecord{
		{InputTokens: 100, OutputTokens: 50, CostUSD: 0.001},
		{InputTokens: 200, OutputTokens: 80, CostUSD: 0.002},
		{Success: false},
	}

	summary := SummarizeAudit(calls)
	assert.Len(t, summary.Calls, 3)
	assert.Equal(t, 430, summary.TotalTokens)
	assert.InDelta(t, 0.003, summary.TotalCostUSD, 1e-9)
}

func TestNormalizedName(t *testing.T) {
	t.Parallel()

	a := PersonEntity{FullName: "  John   SMITH "}
	b := PersonEntity{FullName: "john smith"}
	assert.Equal(t, b.NormalizedName(), a.NormalizedName())
}
