// Package amounts turns OCR text from medical bills into typed monetary line items.
//
// The pipeline runs four stages in order: Extract finds numeric tokens with their
// context, Normalize repairs OCR misreads and parses values, Classify labels each
// value with a priority-ordered keyword table, and Aggregate blends the stage
// confidences into a Result. Every stage is a pure function of its inputs.
package amounts

// TextConfidence is the OCR confidence used for text that did not come from OCR.
const TextConfidence = 1.0

// Trace records the output of every stage of a single run.
type Trace struct {
	Tokens         []RawToken     `json:"tokens"`
	Normalization  Normalization  `json:"normalization"`
	Classification Classification `json:"classification"`
	Result         Result         `json:"result"`
}

// Analyze runs the full pipeline and keeps the intermediate stages.
func Analyze(text string, ocrConfidence float64) Trace {
	tokens := Extract(text)
	normalized := Normalize(tokens)
	classified := Classify(tokens, normalized.Amounts)
	return Trace{
		Tokens:         tokens,
		Normalization:  normalized,
		Classification: classified,
		Result:         Aggregate(text, ocrConfidence, tokens, normalized, classified),
	}
}

// Run extracts typed amounts from text read with the given OCR confidence.
func Run(text string, ocrConfidence float64) Result {
	return Analyze(text, ocrConfidence).Result
}
