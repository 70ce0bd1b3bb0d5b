package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/oracle"
)

// Extractor pulls person entities out of an article via the oracle. It is
// deliberately over-inclusive: downstream matching decides relevance.
type Extractor struct {
	oracle    OracleInvoker
	maxTokens int
	logger    *slog.Logger
}

func NewExtractor(inv OracleInvoker, maxTokens int, logger *slog.Logger) *Extractor {
	return &Extractor{oracle: inv, maxTokens: maxTokens, logger: logger}
}

// flexString accepts JSON strings and numbers; backends are inconsistent
// about quoting ages.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(strconv.FormatFloat(n, 'f', -1, 64))
		return nil
	}
	return fmt.Errorf("value %s is neither string nor number", data)
}

type extractedPerson struct {
	FullName   string     `json:"full_name"`
	Aliases    []string   `json:"aliases"`
	Age        flexString `json:"age"`
	AgeRange   flexString `json:"approximate_age_range"`
	Occupation string     `json:"occupation"`
	Location   string     `json:"location"`
	Context    string     `json:"context_snippet"`
}

// Extract returns the deduplicated entity list for the article. A reply that
// fails schema validation is repaired once; a second failure is an error.
func (e *Extractor) Extract(ctx context.Context, req domain.ScreeningRequest, article domain.ArticleMetadata, record oracle.RecordFunc) ([]domain.PersonEntity, error) {
	oracleReq := oracle.Request{
		Stage:     "extraction",
		System:    extractionSystemPrompt,
		Prompt:    extractionPrompt(req.SubjectName, article),
		MaxTokens: e.maxTokens,
	}

	var people []extractedPerson
	_, err := invokeWithRepair(ctx, e.oracle, oracleReq, record, func(text string) error {
		people = nil
		return decodeOracleJSON(text, &people)
	})
	if err != nil {
		return nil, fmt.Errorf("entity extraction: %w", err)
	}

	entities := make([]domain.PersonEntity, 0, len(people))
	seen := make(map[string]bool, len(people))
	for _, p := range people {
		name := strings.TrimSpace(p.FullName)
		if name == "" {
			continue
		}
		entity := domain.PersonEntity{
			FullName:   name,
			Aliases:    p.Aliases,
			Attributes: map[string]string{},
			Context:    strings.TrimSpace(p.Context),
		}
		age := strings.TrimSpace(string(p.Age))
		if age == "" {
			age = strings.TrimSpace(string(p.AgeRange))
		}
		if age != "" {
			entity.Attributes[domain.AttrAge] = age
		}
		if occ := strings.TrimSpace(p.Occupation); occ != "" {
			entity.Attributes[domain.AttrOccupation] = occ
		}
		if loc := strings.TrimSpace(p.Location); loc != "" {
			entity.Attributes[domain.AttrLocation] = loc
		}

		key := entity.NormalizedName()
		if seen[key] {
			continue
		}
		seen[key] = true
		entities = append(entities, entity)
	}

	e.logger.Debug("entities extracted", "count", len(entities), "run_id", req.ID)
	return entities, nil
}
