package scanning

import (
	"regexp"
	"strings"
)

var (
	reDate     = regexp.MustCompile(`\b\d{1,4}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`)
	reCurrency = regexp.MustCompile(`\b(usd|eur|gbp|inr|rs)\b|[$£€₹]`)
	reAmount   = regexp.MustCompile(`\b\d{1,3}(,\d{3})*(\.\d{2})?\b`)
)

// heuristicConfidence scores text by the bill artifacts it contains.
// Each artifact adds a fixed amount on top of a low base.
func heuristicConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	lower := strings.ToLower(text)
	score := 0.2
	if reDate.MatchString(lower) {
		score += 0.2
	}
	if reCurrency.MatchString(lower) {
		score += 0.15
	}
	if reAmount.MatchString(lower) {
		score += 0.15
	}
	if len(text) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
