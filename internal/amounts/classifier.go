package amounts

import (
	"math"
	"strings"
)

// Amount labels.
const (
	TypeTotalBill     = "total_bill"
	TypePaid          = "paid"
	TypeDue           = "due"
	TypeDiscount      = "discount"
	TypeTax           = "tax"
	TypeConsultation  = "consultation"
	TypeProcedure     = "procedure"
	TypeMedicine      = "medicine"
	TypeTest          = "test"
	TypeAccommodation = "accommodation"
	TypeTherapy       = "therapy"
	TypeFeeding       = "feeding"
	TypeImmunization  = "immunization"
	TypeUnknown       = "unknown"
)

const (
	highPriorityBonus = 0.2
	monetaryCredit    = 0.5
)

// Rule assigns Label to any context containing one of Keywords.
type Rule struct {
	Priority int
	Keywords []string
	Label    string
}

// Rules is evaluated top-down; it is ordered by descending priority and the
// first rule with a keyword hit wins.
var Rules = []Rule{
	{4, []string{"total", "grand", "final"}, TypeTotalBill},
	{3, []string{"due", "balance", "outstanding", "pending"}, TypeDue},
	{3, []string{"paid", "payment", "received"}, TypePaid},
	{2, []string{"discount", "%"}, TypeDiscount},
	{2, []string{"tax", "gst", "vat"}, TypeTax},
	{2, []string{"consultation", "consult", "doctor", "physician"}, TypeConsultation},
	{2, []string{"procedure", "surgery", "operation", "theatre"}, TypeProcedure},
	{2, []string{"medicine", "drug", "pharmacy"}, TypeMedicine},
	{2, []string{"test", "lab", "laboratory", "investigation"}, TypeTest},
	{2, []string{"admission", "bed", "room", "ward"}, TypeAccommodation},
	{1, []string{"therapy", "treatment", "physiotherapy"}, TypeTherapy},
	{1, []string{"feeding", "meal", "diet"}, TypeFeeding},
	{1, []string{"immunization", "vaccination", "vaccine"}, TypeImmunization},
}

// ClassifiedAmount is a normalized value with its semantic label.
type ClassifiedAmount struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// Classification holds one entry per normalized amount; nil entries are
// carried over from rejected tokens.
type Classification struct {
	Amounts    []*ClassifiedAmount `json:"amounts"`
	Confidence float64             `json:"confidence"`
}

// Classify labels every non-nil normalized amount using its token's context.
func Classify(tokens []RawToken, normalized []*int) Classification {
	classified := make([]*ClassifiedAmount, len(normalized))
	var matches float64
	var highPriority int

	for i, value := range normalized {
		if value == nil {
			continue
		}

		label := TypeUnknown
		var monetary bool
		if i < len(tokens) {
			label = LabelOf(tokens[i])
			monetary = tokens[i].MonetaryContext
		}

		if label != TypeUnknown {
			matches++
			if isHighPriority(label) {
				highPriority++
			}
		} else if monetary {
			matches += monetaryCredit
		}

		classified[i] = &ClassifiedAmount{Type: label, Value: *value}
	}

	var confidence float64
	if len(normalized) > 0 {
		confidence = matches / float64(len(normalized))
		if highPriority > 0 {
			confidence += highPriorityBonus
		}
		confidence = math.Min(1.0, confidence)
	}

	return Classification{
		Amounts:    classified,
		Confidence: round2(confidence),
	}
}

// LabelOf resolves the type of a single token. An explicit document label is
// trusted: it maps to a known type when it contains a rule keyword and is
// used verbatim otherwise.
func LabelOf(token RawToken) string {
	if token.Label != "" {
		if label, ok := MatchRule(token.Label); ok {
			return label
		}
		return strings.ToLower(token.Label)
	}

	context := token.Left + " " + token.Raw + " " + token.Right
	if label, ok := MatchRule(context); ok {
		return label
	}
	return TypeUnknown
}

// MatchRule returns the label of the highest-priority rule with a keyword in text.
func MatchRule(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, rule := range Rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(lowered, keyword) {
				return rule.Label, true
			}
		}
	}
	return "", false
}

func isHighPriority(label string) bool {
	switch label {
	case TypeTotalBill, TypePaid, TypeDue:
		return true
	}
	return false
}
