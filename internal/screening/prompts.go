package screening

import (
	"fmt"
	"strings"

	"AdverseScreener/internal/domain"
)

// Prompts use XML-tagged sections for structured input and demand strict
// JSON output so stage replies can be schema-validated.

const extractionSystemPrompt = `You are an expert at extracting information about people from news articles for financial compliance screening. Identify ALL people mentioned and capture their identifying details with high precision.`

const matchingSystemPrompt = `You are an expert at determining whether two people are the same individual for financial compliance screening. You understand name variations (nicknames, initials, transliterations, cultural naming conventions), age verification, and that missing a true match is worse than flagging a false one.`

const riskSystemPrompt = `You are an expert at analyzing whether news articles contain adverse media about individuals for financial compliance screening. You distinguish true adverse media (fraud, sanctions, money laundering, corruption) from merely negative news (business underperformance, routine litigation).`

func extractionPrompt(subject string, article domain.ArticleMetadata) string {
	return fmt.Sprintf(`<task>
Extract every person mentioned in the article below, even if only briefly. Partial names count. Do not filter to any particular individual; the screening subject %q is context only.
</task>

<article>
<url>%s</url>
<title>%s</title>
<source>%s</source>
<content>
%s
</content>
</article>

<output_format>
Return ONLY a JSON array of person objects, no prose:
[{"full_name": "exact name as written", "aliases": ["nicknames or name variants, if any"], "age": "age text if mentioned (e.g. '45 years old', 'in his 40s')", "occupation": "role if mentioned", "location": "place if mentioned", "context_snippet": "1-2 sentences showing how the person is described"}]
Use null for unknown fields. Preserve original spelling and capitalization.
</output_format>`, subject, article.URL, article.Title, article.Source, article.Text)
}

func matchingPrompt(req domain.ScreeningRequest, entity domain.PersonEntity, article domain.ArticleMetadata, alignment AgeAlignment) string {
	dob := "unknown"
	if req.DateOfBirth != nil {
		dob = req.DateOfBirth.Format("2006-01-02")
	}
	return fmt.Sprintf(`<task>
Determine whether the screening subject and the article entity are the same individual.
</task>

<subject>
<name>%s</name>
<date_of_birth>%s</date_of_birth>
</subject>

<article_entity>
%s
</article_entity>

<deterministic_signals>
<age_alignment>%s</age_alignment>
</deterministic_signals>

<article_context>
<source>%s</source>
<title>%s</title>
</article_context>

<instructions>
Consider name variations (nicknames, initials, transliterations, surname ordering), age alignment, occupation and location. Think step by step and write your reasoning BEFORE deciding. Only decide NO_MATCH when the people are clearly different; when evidence is thin, decide UNCERTAIN.
</instructions>

<output_format>
Return ONLY a JSON object, no prose:
{"reasoning_steps": ["step 1 ...", "step 2 ..."], "decision": "MATCH" | "NO_MATCH" | "UNCERTAIN", "confidence": "HIGH" | "MEDIUM" | "LOW", "match_probability": 0.0-1.0, "supporting_evidence": [...], "contradicting_evidence": [...], "missing_information": [...]}
reasoning_steps must come first and must not be empty. A MATCH with HIGH confidence requires match_probability >= 0.80; MEDIUM requires >= 0.60; a NO_MATCH with HIGH confidence requires match_probability <= 0.20.
</output_format>`, req.SubjectName, dob, entityXML(entity), alignment, article.Source, article.Title)
}

func riskPrompt(personName string, span string, article domain.ArticleMetadata) string {
	return fmt.Sprintf(`<task>
Analyze whether the article portrays %q adversely for compliance purposes.
</task>

<relevant_span>
%s
</relevant_span>

<article>
<title>%s</title>
<source>%s</source>
<content>
%s
</content>
</article>

<distinctions>
- Fraud, sanctions, money laundering, corruption, bribery, regulatory enforcement: adverse media.
- Business underperformance, routine commercial litigation, neutral reporting: negative at most, NOT adverse.
- "Acquitted" or "charges dropped": neutral or positive (resolved favorably).
- "Facing allegations" or "under investigation": negative, adverse.
</distinctions>

<output_format>
Return ONLY a JSON object, no prose:
{"classification": "POSITIVE" | "NEUTRAL" | "NEGATIVE", "is_adverse_media": true|false, "severity": "HIGH" | "MEDIUM" | "LOW" | null, "category": "LEGAL" | "FINANCIAL" | "ETHICAL" | "OTHER", "adverse_indicators": [...], "positive_indicators": [...], "evidence_snippets": ["quotes from the article"], "reasoning": "..."}
is_adverse_media=true requires classification NEGATIVE and a severity.
</output_format>`, personName, span, article.Title, article.Source, article.Text)
}

func repairPrompt(original string, schemaErr error) string {
	return fmt.Sprintf(`<task>
Your previous output could not be parsed against the required schema. Produce a corrected version.
</task>

<previous_output>
%s
</previous_output>

<problem>
%s
</problem>

<instructions>
Return ONLY the corrected JSON, exactly conforming to the schema from the original request. No prose, no code fences.
</instructions>`, original, schemaErr)
}

func entityXML(e domain.PersonEntity) string {
	var b strings.Builder
	b.WriteString("<entity>\n")
	fmt.Fprintf(&b, "  <full_name>%s</full_name>\n", e.FullName)
	for _, alias := range e.Aliases {
		fmt.Fprintf(&b, "  <alias>%s</alias>\n", alias)
	}
	for _, key := range []string{domain.AttrAge, domain.AttrOccupation, domain.AttrLocation} {
		if v := e.Attributes[key]; v != "" {
			fmt.Fprintf(&b, "  <%s>%s</%s>\n", key, v, key)
		}
	}
	if e.Context != "" {
		fmt.Fprintf(&b, "  <context_snippet>%s</context_snippet>\n", e.Context)
	}
	b.WriteString("</entity>")
	return b.String()
}
