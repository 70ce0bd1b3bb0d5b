package screening

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AgeAlignment is the outcome of the deterministic age check. This stage
// never fails: unparseable or missing data yields AgeInsufficient.
type AgeAlignment string

const (
	AgeAligned      AgeAlignment = "ALIGNED"
	AgeMisaligned   AgeAlignment = "MISALIGNED"
	AgeInsufficient AgeAlignment = "INSUFFICIENT_DATA"
)

var (
	exactAgeExpr  = regexp.MustCompile(`(?i)\b(\d{1,3})(?:[\s-]*(?:years?|yrs?))[\s-]*old\b`)
	agedExpr      = regexp.MustCompile(`(?i)\baged?\s+(\d{1,3})\b`)
	decadeExpr    = regexp.MustCompile(`(?i)\b(?:early|mid|late)?[\s-]*([2-9])0s\b`)
	birthYearExpr = regexp.MustCompile(`(?i)\bborn\s+(?:in\s+)?(\d{4})\b`)
	bareAgeExpr   = regexp.MustCompile(`^\s*(\d{1,3})\s*$`)
)

// ageHint is one inclusive age range claimed by the article text.
type ageHint struct {
	low  int
	high int
}

// CheckAgeAlignment compares a claimed date of birth against free-text age
// mentions as of a reference date. Exact ages align within the tolerance;
// decade mentions ("in his 40s") use range containment; "born in 1978"
// compares birth years within one year. MISALIGNED is returned only when
// the computed age overlaps none of the stated ranges.
func CheckAgeAlignment(dob *time.Time, ageText string, asOf time.Time, toleranceYears int) AgeAlignment {
	if dob == nil {
		return AgeInsufficient
	}
	ageText = strings.TrimSpace(ageText)
	if ageText == "" {
		return AgeInsufficient
	}
	if toleranceYears < 0 {
		toleranceYears = 0
	}

	hints := parseAgeHints(ageText, toleranceYears, asOf)
	if len(hints) == 0 {
		return AgeInsufficient
	}

	age := ageAt(*dob, asOf)
	for _, h := range hints {
		if age >= h.low && age <= h.high {
			return AgeAligned
		}
	}
	return AgeMisaligned
}

func parseAgeHints(text string, tolerance int, asOf time.Time) []ageHint {
	var hints []ageHint

	for _, expr := range []*regexp.Regexp{exactAgeExpr, agedExpr, bareAgeExpr} {
		for _, m := range expr.FindAllStringSubmatch(text, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n < 130 {
				hints = append(hints, ageHint{low: n - tolerance, high: n + tolerance})
			}
		}
	}

	for _, m := range decadeExpr.FindAllStringSubmatch(text, -1) {
		if d, err := strconv.Atoi(m[1]); err == nil {
			hints = append(hints, ageHint{low: d * 10, high: d*10 + 9})
		}
	}

	// A stated birth year translates to the age span that birth year
	// implies at the reference date, widened by one year either side.
	for _, m := range birthYearExpr.FindAllStringSubmatch(text, -1) {
		if year, err := strconv.Atoi(m[1]); err == nil && year > 1880 && year <= asOf.Year() {
			impliedAge := asOf.Year() - year
			hints = append(hints, ageHint{low: impliedAge - 1, high: impliedAge + 1})
		}
	}

	return hints
}

// ageAt computes full years between dob and the reference date.
func ageAt(dob, asOf time.Time) int {
	years := asOf.Year() - dob.Year()
	if asOf.Month() < dob.Month() || (asOf.Month() == dob.Month() && asOf.Day() < dob.Day()) {
		years--
	}
	return years
}
