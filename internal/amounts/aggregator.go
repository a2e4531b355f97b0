package amounts

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Result statuses.
const (
	StatusOK             = "ok"
	StatusNoAmountsFound = "no_amounts_found"
)

// ReasonTooNoisy is reported when no amount survives the pipeline.
const ReasonTooNoisy = "document too noisy"

// sourceWords is the number of context words kept on each side of a token.
const sourceWords = 3

// FinalAmount is a classified amount with the text it was read from.
type FinalAmount struct {
	Type   string `json:"type"`
	Value  int    `json:"value"`
	Source string `json:"source"`
}

// Result is the outcome of one pipeline run. A no_amounts_found result only
// carries Status and Reason.
type Result struct {
	Currency          string        `json:"currency,omitempty"`
	Amounts           []FinalAmount `json:"amounts,omitempty"`
	Status            string        `json:"status"`
	Reason            string        `json:"reason,omitempty"`
	RawTokens         []string      `json:"raw_tokens,omitempty"`
	OverallConfidence float64       `json:"overall_confidence"`
}

// MarshalJSON writes every field of an ok result, including a zero
// overall_confidence. Any other result is written as status and reason only.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.Found() {
		return json.Marshal(struct {
			Status string `json:"status"`
			Reason string `json:"reason,omitempty"`
		}{r.Status, r.Reason})
	}
	type result Result
	return json.Marshal(result(r))
}

// Found reports whether the result carries amounts.
func (r Result) Found() bool {
	return r.Status == StatusOK
}

// Aggregate blends the stage confidences and builds the final result.
func Aggregate(text string, ocrConfidence float64, tokens []RawToken, normalized Normalization, classified Classification) Result {
	final := make([]FinalAmount, 0, len(classified.Amounts))
	for i, amount := range classified.Amounts {
		if amount == nil {
			continue
		}
		var source string
		if i < len(tokens) {
			source = Source(tokens[i])
		}
		final = append(final, FinalAmount{
			Type:   amount.Type,
			Value:  amount.Value,
			Source: source,
		})
	}

	if len(final) == 0 {
		return Result{
			Status: StatusNoAmountsFound,
			Reason: ReasonTooNoisy,
		}
	}

	rawTokens := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token.Raw != "" {
			rawTokens = append(rawTokens, token.Raw)
		}
	}

	overall := WeightedAverage([]float64{
		clamp01(ocrConfidence),
		normalized.Confidence,
		classified.Confidence,
	}, nil)

	return Result{
		Currency:          DetectCurrency(text),
		Amounts:           final,
		Status:            StatusOK,
		RawTokens:         rawTokens,
		OverallConfidence: round2(overall),
	}
}

// Source renders the provenance of a token: up to three words of left
// context, the raw token and up to three words of right context.
func Source(token RawToken) string {
	parts := make([]string, 0, 3)
	if left := strings.Fields(token.Left); len(left) > 0 {
		if len(left) > sourceWords {
			left = left[len(left)-sourceWords:]
		}
		parts = append(parts, strings.Join(left, " "))
	}
	parts = append(parts, token.Raw)
	if right := strings.Fields(token.Right); len(right) > 0 {
		if len(right) > sourceWords {
			right = right[:sourceWords]
		}
		parts = append(parts, strings.Join(right, " "))
	}
	return fmt.Sprintf("text: '%s'", strings.TrimSpace(strings.Join(parts, " ")))
}

// WeightedAverage returns the weighted mean of values. Nil weights mean every
// value weighs 1. Mismatched lengths or a zero total weight yield 0.
func WeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	if weights == nil {
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	}

	if len(weights) != len(values) {
		return 0
	}
	var sum, total float64
	for i, v := range values {
		sum += v * weights[i]
		total += weights[i]
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
