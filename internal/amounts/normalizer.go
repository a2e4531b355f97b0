package amounts

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Plausible line-item magnitudes for a medical bill, in whole currency units.
const (
	MinAmount = 1
	MaxAmount = 10_000_000
)

// monetaryContextBonus is the confidence weight of tokens flagged with monetary context.
const monetaryContextBonus = 0.3

var numeralRegex = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ocrDigits maps letters OCR commonly misreads to the digit they stand for.
var ocrDigits = strings.NewReplacer(
	"O", "0", "o", "0", "D", "0",
	"l", "1", "I", "1", "i", "1",
	"S", "5", "s", "5",
	"B", "8",
)

// Normalization holds one value per extracted token; a nil entry marks a token
// that was rejected.
type Normalization struct {
	Amounts    []*int  `json:"normalized_amounts"`
	Confidence float64 `json:"normalization_confidence"`
}

// Normalize repairs, cleans and parses every token into a whole-unit amount.
func Normalize(tokens []RawToken) Normalization {
	values := make([]*int, len(tokens))
	var succeeded, monetary int

	for i, token := range tokens {
		value, ok := normalizeToken(token.Raw)
		if !ok {
			continue
		}
		values[i] = &value
		succeeded++
		if token.MonetaryContext {
			monetary++
		}
	}

	var confidence float64
	if len(tokens) > 0 {
		confidence = float64(succeeded) / float64(len(tokens))
		if monetary > 0 {
			confidence += monetaryContextBonus * float64(monetary) / float64(len(tokens))
		}
		confidence = math.Min(1.0, confidence)
	}

	return Normalization{
		Amounts:    values,
		Confidence: round2(confidence),
	}
}

func normalizeToken(raw string) (int, bool) {
	if raw == "" || strings.Contains(raw, "%") {
		return 0, false
	}

	cleaned := cleanNumber(RepairOCR(raw))
	if !numeralRegex.MatchString(cleaned) {
		return 0, false
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	value := math.Floor(f)
	if value < MinAmount || value > MaxAmount {
		return 0, false
	}
	return int(value), true
}

// RepairOCR substitutes digit look-alike letters with their digits.
func RepairOCR(token string) string {
	return ocrDigits.Replace(token)
}

func cleanNumber(token string) string {
	token = strings.ReplaceAll(token, ",", "")
	token = strings.ReplaceAll(token, "%", "")
	return strings.TrimSpace(token)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
