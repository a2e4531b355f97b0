package amounts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultCurrency is reported when the text carries no currency marker.
const DefaultCurrency = "INR"

var currencyRegex = regexp.MustCompile(`(?i:INR|USD|EUR|GBP|Rs)|₹|\$|€|£`)

var currencyCodes = map[string]string{
	"INR": "INR",
	"RS":  "INR",
	"₹":   "INR",
	"USD": "USD",
	"$":   "USD",
	"EUR": "EUR",
	"€":   "EUR",
	"GBP": "GBP",
	"£":   "GBP",
}

// DetectCurrency returns the 3-letter code of the first currency marker in text.
// Alphabetic markers only count when they are not part of a longer word, so
// "Hours" does not read as rupees.
func DetectCurrency(text string) string {
	for _, loc := range currencyRegex.FindAllStringIndex(text, -1) {
		match := text[loc[0]:loc[1]]
		if isASCIILetters(match) && embeddedInWord(text, loc[0], loc[1]) {
			continue
		}
		if code, ok := currencyCodes[strings.ToUpper(match)]; ok {
			return code
		}
	}
	return DefaultCurrency
}

func isASCIILetters(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

func embeddedInWord(text string, start, end int) bool {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(prev) {
			return true
		}
	}
	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(next) {
			return true
		}
	}
	return false
}
