package amounts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// contextWindow is the number of characters captured on each side of a token.
const contextWindow = 15

// confusables are letters OCR commonly produces in place of digits.
const confusables = "lIOoSsBD"

// tokenPattern matches a digit run with an optional OCR-confusable leading letter,
// OCR-confused digits inside the run, thousands groups, decimals and a percent suffix.
const tokenPattern = `[lIOoSsBD]?\d[\dlIOoSsBD]*(?:,\d{3})*(?:\.\d+)?%?`

var (
	tokenRegex = regexp.MustCompile(tokenPattern)

	// labelRegex matches "<label words>: [currency] <token>". Only the label and the
	// currency prefix are case-insensitive so the token sub-match is identical to tokenRegex.
	labelRegex = regexp.MustCompile(
		`([A-Za-z]+(?:[ \t]+[A-Za-z]+)*)[ \t]*:[ \t]*(?:(?i:INR|Rs\.?|USD|EUR|GBP)|₹|\$|€|£)?[ \t]*(` + tokenPattern + `)`,
	)
)

// RawToken is a candidate amount found in the source text.
type RawToken struct {
	Raw   string `json:"raw"`
	Left  string `json:"left"`
	Right string `json:"right"`
	// Label is the lower-cased text of an explicit "Label: value" construct.
	Label string `json:"label,omitempty"`
	// MonetaryContext is an enrichment hook read by the confidence calculations.
	// The extractor never sets it.
	MonetaryContext bool `json:"monetary_context,omitempty"`
}

// Extract scans text for numeric and percentage tokens in source order.
// Tokens exposed by a "Label: value" construct carry the label and a synthetic
// "<label>: " left context instead of the raw surrounding text.
func Extract(text string) []RawToken {
	labels := explicitLabels(text)

	tokens := make([]RawToken, 0)
	for _, loc := range tokenRegex.FindAllStringIndex(text, -1) {
		start, end := trimSpan(text, loc[0], loc[1])
		if start >= end {
			continue
		}
		raw := text[start:end]

		if label, ok := labels[start]; ok {
			tokens = append(tokens, RawToken{
				Raw:   raw,
				Left:  label + ": ",
				Right: "",
				Label: label,
			})
			continue
		}

		tokens = append(tokens, RawToken{
			Raw:   raw,
			Left:  lastRunes(text[:start], contextWindow),
			Right: firstRunes(text[end:], contextWindow),
		})
	}
	return tokens
}

// explicitLabels maps the byte offset of every labelled token to its lower-cased label.
func explicitLabels(text string) map[int]string {
	labels := make(map[int]string)
	for _, m := range labelRegex.FindAllStringSubmatchIndex(text, -1) {
		start, end := trimSpan(text, m[4], m[5])
		if start >= end {
			continue
		}
		label := strings.ToLower(strings.Join(strings.Fields(text[m[2]:m[3]]), " "))
		labels[start] = label
	}
	return labels
}

// trimSpan drops confusable letters that belong to a surrounding word rather than
// to the number: a leading letter glued to a preceding letter ("Rs1200") and
// trailing letters glued to a following letter ("10Days").
func trimSpan(text string, start, end int) (int, int) {
	if start < end && strings.IndexByte(confusables, text[start]) >= 0 && start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(prev) {
			start++
		}
	}

	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(next) {
			for end > start && strings.IndexByte(confusables, text[end-1]) >= 0 {
				end--
			}
		}
	}
	return start, end
}

func lastRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
