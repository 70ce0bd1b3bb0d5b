package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Decision is the tri-state outcome of identity matching.
type Decision string

const (
	DecisionMatch     Decision = "MATCH"
	DecisionNoMatch   Decision = "NO_MATCH"
	DecisionUncertain Decision = "UNCERTAIN"
)

// Confidence tiers for a match decision.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Sentiment of the article toward the matched individual.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentNegative Sentiment = "NEGATIVE"
)

// Severity of an adverse finding.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// RiskCategory buckets adverse findings for compliance routing.
type RiskCategory string

const (
	CategoryLegal     RiskCategory = "LEGAL"
	CategoryFinancial RiskCategory = "FINANCIAL"
	CategoryEthical   RiskCategory = "ETHICAL"
	CategoryOther     RiskCategory = "OTHER"
)

// FinalStatus is the terminal verdict of one screening run.
type FinalStatus string

const (
	StatusAdverseMatch   FinalStatus = "ADVERSE_MATCH"
	StatusClearMatch     FinalStatus = "CLEAR_MATCH"
	StatusReviewRequired FinalStatus = "REVIEW_REQUIRED"
	StatusNoMatch        FinalStatus = "NO_MATCH"
)

// Probability thresholds tying confidence tiers to numeric scores.
// Verdict constructors reject combinations that cross these lines.
const (
	HighConfidenceFloor   = 0.80
	MediumConfidenceFloor = 0.60
	// A HIGH-confidence NO_MATCH asserts the match probability is near zero.
	NoMatchHighCeiling = 0.20
)

// ScreeningRequest is the immutable input of one screening run. Exactly one
// of ArticleURL and ArticleText is expected to be set.
type ScreeningRequest struct {
	ID          uuid.UUID
	SubjectName string
	DateOfBirth *time.Time
	ArticleURL  string
	ArticleText string
	Provider    string
	CreatedAt   time.Time
}

// NewScreeningRequest validates inputs and assigns a run identifier.
// dob may be empty; when present it must be YYYY-MM-DD.
func NewScreeningRequest(name, dob, articleURL, articleText string) (ScreeningRequest, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ScreeningRequest{}, fmt.Errorf("subject name is required")
	}
	if articleURL == "" && strings.TrimSpace(articleText) == "" {
		return ScreeningRequest{}, fmt.Errorf("either an article URL or literal article text is required")
	}

	req := ScreeningRequest{
		ID:          uuid.New(),
		SubjectName: name,
		ArticleURL:  articleURL,
		ArticleText: articleText,
		CreatedAt:   time.Now().UTC(),
	}

	if dob != "" {
		parsed, err := time.Parse("2006-01-02", dob)
		if err != nil {
			return ScreeningRequest{}, fmt.Errorf("invalid date of birth %q: %w", dob, err)
		}
		req.DateOfBirth = &parsed
	}

	return req, nil
}

// PersonEntity is one person mention extracted from the article. Immutable
// once produced by the extractor.
type PersonEntity struct {
	FullName   string
	Aliases    []string
	Attributes map[string]string
	Context    string
}

// Entity attribute keys populated by the extractor.
const (
	AttrAge        = "age"
	AttrOccupation = "occupation"
	AttrLocation   = "location"
)

// NormalizedName collapses case and whitespace so entities can be
// deduplicated by name.
func (e PersonEntity) NormalizedName() string {
	return strings.Join(strings.Fields(strings.ToLower(e.FullName)), " ")
}

// MatchVerdict is the aggregate identity-matching outcome.
type MatchVerdict struct {
	Decision      Decision
	Confidence    Confidence
	Probability   float64
	Reasoning     []string
	Supporting    []string
	Contradicting []string
	Missing       []string
	Matched       *PersonEntity
}

// NewMatchVerdict enforces the construction invariants: a MATCH carries a
// matched entity, the probability sits in [0,1] and stays consistent with
// the confidence tier, and the reasoning trail is never empty.
func NewMatchVerdict(decision Decision, confidence Confidence, probability float64, reasoning []string, matched *PersonEntity) (MatchVerdict, error) {
	if probability < 0 || probability > 1 {
		return MatchVerdict{}, fmt.Errorf("match probability %.3f outside [0,1]", probability)
	}
	if len(reasoning) == 0 {
		return MatchVerdict{}, fmt.Errorf("match verdict requires at least one reasoning step")
	}
	if decision == DecisionMatch && matched == nil {
		return MatchVerdict{}, fmt.Errorf("MATCH decision requires a matched entity")
	}
	switch confidence {
	case ConfidenceHigh:
		if decision == DecisionMatch && probability < HighConfidenceFloor {
			return MatchVerdict{}, fmt.Errorf("HIGH confidence MATCH requires probability >= %.2f, got %.3f", HighConfidenceFloor, probability)
		}
		if decision == DecisionNoMatch && probability > NoMatchHighCeiling {
			return MatchVerdict{}, fmt.Errorf("HIGH confidence NO_MATCH requires probability <= %.2f, got %.3f", NoMatchHighCeiling, probability)
		}
	case ConfidenceMedium:
		if decision == DecisionMatch && probability < MediumConfidenceFloor {
			return MatchVerdict{}, fmt.Errorf("MEDIUM confidence MATCH requires probability >= %.2f, got %.3f", MediumConfidenceFloor, probability)
		}
	case ConfidenceLow:
	default:
		return MatchVerdict{}, fmt.Errorf("unknown confidence tier %q", confidence)
	}

	return MatchVerdict{
		Decision:    decision,
		Confidence:  confidence,
		Probability: probability,
		Reasoning:   reasoning,
		Matched:     matched,
	}, nil
}

// RiskVerdict is the sentiment/adversity classification of matched content.
type RiskVerdict struct {
	Sentiment          Sentiment
	IsAdverse          bool
	Severity           Severity
	Category           RiskCategory
	AdverseIndicators  []string
	PositiveIndicators []string
	Evidence           []string
	Reasoning          string
}

// NewRiskVerdict enforces that an adverse finding is always negative.
func NewRiskVerdict(sentiment Sentiment, isAdverse bool, severity Severity, category RiskCategory) (RiskVerdict, error) {
	if isAdverse && sentiment != SentimentNegative {
		return RiskVerdict{}, fmt.Errorf("adverse media requires NEGATIVE sentiment, got %s", sentiment)
	}
	switch sentiment {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
	default:
		return RiskVerdict{}, fmt.Errorf("unknown sentiment %q", sentiment)
	}
	if category == "" {
		category = CategoryOther
	}
	return RiskVerdict{
		Sentiment: sentiment,
		IsAdverse: isAdverse,
		Severity:  severity,
		Category:  category,
	}, nil
}

// OracleCallRecord is the audit trail entry for a single oracle invocation.
// It is never used for control flow.
type OracleCallRecord struct {
	Stage        string
	Backend      string
	Model        string
	PromptDigest string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Latency      time.Duration
	Success      bool
	Timestamp    time.Time
}

// StageError records a stage failure inside the pipeline state. A non-fatal
// entry does not abort the run.
type StageError struct {
	Stage   string
	Message string
	Fatal   bool
	At      time.Time
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// AuditSummary aggregates the per-call records of a finished run.
type AuditSummary struct {
	Calls        []OracleCallRecord
	TotalCostUSD float64
	TotalTokens  int
	TotalLatency time.Duration
}

// SummarizeAudit folds individual call records into run totals.
func SummarizeAudit(calls []OracleCallRecord) AuditSummary {
	summary := AuditSummary{Calls: calls}
	for _, call := range calls {
		summary.TotalCostUSD += call.CostUSD
		summary.TotalTokens += call.InputTokens + call.OutputTokens
		summary.TotalLatency += call.Latency
	}
	return summary
}

// ScreeningResult is the terminal, immutable artifact of a completed run.
type ScreeningResult struct {
	Request     ScreeningRequest
	Article     ArticleMetadata
	FinalStatus FinalStatus
	Match       MatchVerdict
	Risk        *RiskVerdict
	Entities    []PersonEntity
	Audit       AuditSummary
	Errors      []StageError
	CompletedAt time.Time
}

// DeriveFinalStatus maps the match decision and risk outcome to the terminal
// status. The mapping is total: every decision/risk combination lands on
// exactly one status.
func DeriveFinalStatus(match MatchVerdict, risk *RiskVerdict) FinalStatus {
	switch match.Decision {
	case DecisionNoMatch:
		return StatusNoMatch
	case DecisionUncertain:
		return StatusReviewRequired
	case DecisionMatch:
		if risk != nil && risk.IsAdverse {
			return StatusAdverseMatch
		}
		return StatusClearMatch
	default:
		// Unknown decisions are routed to a human rather than cleared.
		return StatusReviewRequired
	}
}
