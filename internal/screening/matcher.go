package screening

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/oracle"
)

// AgeVetoProbability is the match probability asserted when the age check
// rules a candidate out before any oracle call.
const AgeVetoProbability = 0.02

// Matcher decides, per extracted entity, whether it is the screening
// subject, then aggregates per-candidate verdicts into one run verdict.
type Matcher struct {
	oracle       OracleInvoker
	ageTolerance int
	maxTokens    int
	logger       *slog.Logger
	now          func() time.Time
}

func NewMatcher(inv OracleInvoker, ageTolerance, maxTokens int, logger *slog.Logger) *Matcher {
	return &Matcher{
		oracle:       inv,
		ageTolerance: ageTolerance,
		maxTokens:    maxTokens,
		logger:       logger,
		now:          time.Now,
	}
}

type matchReply struct {
	ReasoningSteps        []string `json:"reasoning_steps"`
	Decision              string   `json:"decision"`
	Confidence            string   `json:"confidence"`
	MatchProbability      float64  `json:"match_probability"`
	SupportingEvidence    []string `json:"supporting_evidence"`
	ContradictingEvidence []string `json:"contradicting_evidence"`
	MissingInformation    []string `json:"missing_information"`
}

// Match evaluates every candidate and returns the aggregate verdict plus
// non-fatal per-candidate errors. A candidate whose reply stays invalid
// after one repair is skipped; transport exhaustion aborts the stage. The
// stage fails outright only when no candidate produced a verdict.
func (m *Matcher) Match(ctx context.Context, req domain.ScreeningRequest, article domain.ArticleMetadata, entities []domain.PersonEntity, record oracle.RecordFunc) (domain.MatchVerdict, []domain.StageError, error) {
	if len(entities) == 0 {
		return domain.MatchVerdict{}, nil, fmt.Errorf("identity matching requires at least one candidate")
	}

	asOf := article.ReferenceDate(m.now())
	verdicts := make([]domain.MatchVerdict, 0, len(entities))
	var softErrs []domain.StageError

	for i := range entities {
		entity := entities[i]
		verdict, err := m.matchOne(ctx, req, article, entity, asOf, record)
		if err != nil {
			if errors.Is(err, oracle.ErrInvalidResponse) {
				m.logger.Warn("candidate skipped, reply invalid after repair",
					"candidate", entity.FullName, "run_id", req.ID)
				softErrs = append(softErrs, domain.StageError{
					Stage:   "matching",
					Message: fmt.Sprintf("candidate %q: %v", entity.FullName, err),
					At:      m.now().UTC(),
				})
				continue
			}
			return domain.MatchVerdict{}, softErrs, fmt.Errorf("candidate %q: %w", entity.FullName, err)
		}
		verdicts = append(verdicts, verdict)
	}

	if len(verdicts) == 0 {
		return domain.MatchVerdict{}, softErrs, fmt.Errorf("no candidate produced a usable verdict")
	}
	return aggregateVerdicts(verdicts), softErrs, nil
}

func (m *Matcher) matchOne(ctx context.Context, req domain.ScreeningRequest, article domain.ArticleMetadata, entity domain.PersonEntity, asOf time.Time, record oracle.RecordFunc) (domain.MatchVerdict, error) {
	alignment := CheckAgeAlignment(req.DateOfBirth, entity.Attributes[domain.AttrAge], asOf, m.ageTolerance)
	if alignment == AgeMisaligned {
		m.logger.Debug("age veto", "candidate", entity.FullName, "run_id", req.ID)
		reasoning := []string{fmt.Sprintf(
			"stated age %q is incompatible with the subject's date of birth as of %s",
			entity.Attributes[domain.AttrAge], asOf.Format("2006-01-02"))}
		return domain.NewMatchVerdict(domain.DecisionNoMatch, domain.ConfidenceHigh, AgeVetoProbability, reasoning, nil)
	}

	oracleReq := oracle.Request{
		Stage:     "matching",
		System:    matchingSystemPrompt,
		Prompt:    matchingPrompt(req, entity, article, alignment),
		MaxTokens: m.maxTokens,
	}

	var reply matchReply
	_, err := invokeWithRepair(ctx, m.oracle, oracleReq, record, func(text string) error {
		reply = matchReply{}
		if err := decodeOracleJSON(text, &reply); err != nil {
			return err
		}
		return validateMatchReply(reply)
	})
	if err != nil {
		return domain.MatchVerdict{}, err
	}

	verdict, err := domain.NewMatchVerdict(
		domain.Decision(reply.Decision),
		domain.Confidence(reply.Confidence),
		reply.MatchProbability,
		reply.ReasoningSteps,
		matchedEntity(domain.Decision(reply.Decision), entity),
	)
	if err != nil {
		return domain.MatchVerdict{}, fmt.Errorf("verdict rejected: %v: %w", err, oracle.ErrInvalidResponse)
	}
	verdict.Supporting = reply.SupportingEvidence
	verdict.Contradicting = reply.ContradictingEvidence
	verdict.Missing = reply.MissingInformation
	return verdict, nil
}

// validateMatchReply rejects replies that would fail verdict construction,
// so the repair pass can ask for a conforming one.
func validateMatchReply(r matchReply) error {
	switch domain.Decision(r.Decision) {
	case domain.DecisionMatch, domain.DecisionNoMatch, domain.DecisionUncertain:
	default:
		return fmt.Errorf("unknown decision %q: %w", r.Decision, oracle.ErrInvalidResponse)
	}
	switch domain.Confidence(r.Confidence) {
	case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
	default:
		return fmt.Errorf("unknown confidence %q: %w", r.Confidence, oracle.ErrInvalidResponse)
	}
	if len(r.ReasoningSteps) == 0 {
		return fmt.Errorf("reasoning_steps is empty: %w", oracle.ErrInvalidResponse)
	}
	if r.MatchProbability < 0 || r.MatchProbability > 1 {
		return fmt.Errorf("match_probability %.3f outside [0,1]: %w", r.MatchProbability, oracle.ErrInvalidResponse)
	}
	if _, err := domain.NewMatchVerdict(
		domain.Decision(r.Decision),
		domain.Confidence(r.Confidence),
		r.MatchProbability,
		r.ReasoningSteps,
		matchedEntity(domain.Decision(r.Decision), domain.PersonEntity{FullName: "candidate"}),
	); err != nil {
		return fmt.Errorf("%v: %w", err, oracle.ErrInvalidResponse)
	}
	return nil
}

func matchedEntity(decision domain.Decision, entity domain.PersonEntity) *domain.PersonEntity {
	if decision == domain.DecisionNoMatch {
		return nil
	}
	return &entity
}

// aggregateVerdicts picks the run verdict: any MATCH wins over any
// UNCERTAIN, which wins over NO_MATCH. Ties within a decision resolve to
// the strongest claim, highest probability for MATCH and UNCERTAIN, lowest
// for NO_MATCH.
func aggregateVerdicts(verdicts []domain.MatchVerdict) domain.MatchVerdict {
	rank := func(d domain.Decision) int {
		switch d {
		case domain.DecisionMatch:
			return 2
		case domain.DecisionUncertain:
			return 1
		default:
			return 0
		}
	}

	best := verdicts[0]
	for _, v := range verdicts[1:] {
		switch {
		case rank(v.Decision) > rank(best.Decision):
			best = v
		case rank(v.Decision) < rank(best.Decision):
		case v.Decision == domain.DecisionNoMatch:
			if v.Probability < best.Probability {
				best = v
			}
		default:
			if v.Probability > best.Probability {
				best = v
			}
		}
	}
	return best
}
