package screening

import (
	"time"

	"AdverseScreener/internal/domain"
)

// Assemble folds a completed pipeline state into the immutable result. It
// is pure: no oracle calls, no clock reads, no mutation of the state.
func Assemble(state *PipelineState, completedAt time.Time) domain.ScreeningResult {
	var match domain.MatchVerdict
	if state.Match != nil {
		match = *state.Match
	}
	return domain.ScreeningResult{
		Request:     state.Request,
		Article:     state.Article,
		FinalStatus: domain.DeriveFinalStatus(match, state.Risk),
		Match:       match,
		Risk:        state.Risk,
		Entities:    state.Entities,
		Audit:       domain.SummarizeAudit(state.Calls),
		Errors:      state.Errors,
		CompletedAt: completedAt,
	}
}
