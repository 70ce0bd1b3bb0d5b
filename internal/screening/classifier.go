package screening

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/oracle"
)

// Classifier assesses sentiment and adverse-media risk for the matched
// portion of the article.
type Classifier struct {
	oracle    OracleInvoker
	maxTokens int
	logger    *slog.Logger
}

func NewClassifier(inv OracleInvoker, maxTokens int, logger *slog.Logger) *Classifier {
	return &Classifier{oracle: inv, maxTokens: maxTokens, logger: logger}
}

type riskReply struct {
	Classification     string   `json:"classification"`
	IsAdverseMedia     bool     `json:"is_adverse_media"`
	Severity           string   `json:"severity"`
	Category           string   `json:"category"`
	AdverseIndicators  []string `json:"adverse_indicators"`
	PositiveIndicators []string `json:"positive_indicators"`
	EvidenceSnippets   []string `json:"evidence_snippets"`
	Reasoning          string   `json:"reasoning"`
}

// Classify runs the risk assessment for the run's match verdict. The person
// under assessment is the matched entity when one exists, otherwise the
// screening subject (the UNCERTAIN path has no confirmed entity).
func (c *Classifier) Classify(ctx context.Context, req domain.ScreeningRequest, article domain.ArticleMetadata, match domain.MatchVerdict, record oracle.RecordFunc) (domain.RiskVerdict, error) {
	person := req.SubjectName
	span := firstWords(article.Text, 80)
	if match.Matched != nil {
		person = match.Matched.FullName
		if match.Matched.Context != "" {
			span = match.Matched.Context
		}
	}

	oracleReq := oracle.Request{
		Stage:     "risk",
		System:    riskSystemPrompt,
		Prompt:    riskPrompt(person, span, article),
		MaxTokens: c.maxTokens,
	}

	var reply riskReply
	_, err := invokeWithRepair(ctx, c.oracle, oracleReq, record, func(text string) error {
		reply = riskReply{}
		if err := decodeOracleJSON(text, &reply); err != nil {
			return err
		}
		return validateRiskReply(reply)
	})
	if err != nil {
		return domain.RiskVerdict{}, fmt.Errorf("risk assessment: %w", err)
	}

	verdict, err := domain.NewRiskVerdict(
		domain.Sentiment(reply.Classification),
		reply.IsAdverseMedia,
		domain.Severity(reply.Severity),
		domain.RiskCategory(reply.Category),
	)
	if err != nil {
		return domain.RiskVerdict{}, fmt.Errorf("risk verdict rejected: %w", err)
	}
	verdict.AdverseIndicators = reply.AdverseIndicators
	verdict.PositiveIndicators = reply.PositiveIndicators
	verdict.Evidence = reply.EvidenceSnippets
	verdict.Reasoning = reply.Reasoning

	c.logger.Debug("risk assessed", "person", person, "adverse", verdict.IsAdverse, "run_id", req.ID)
	return verdict, nil
}

func validateRiskReply(r riskReply) error {
	switch domain.Sentiment(r.Classification) {
	case domain.SentimentPositive, domain.SentimentNeutral, domain.SentimentNegative:
	default:
		return fmt.Errorf("unknown classification %q: %w", r.Classification, oracle.ErrInvalidResponse)
	}
	if r.IsAdverseMedia {
		if domain.Sentiment(r.Classification) != domain.SentimentNegative {
			return fmt.Errorf("adverse media with %s classification: %w", r.Classification, oracle.ErrInvalidResponse)
		}
		switch domain.Severity(r.Severity) {
		case domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow:
		default:
			return fmt.Errorf("adverse media without severity: %w", oracle.ErrInvalidResponse)
		}
	}
	return nil
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
