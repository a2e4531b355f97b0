package scanning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recognitionSchema describes the JSON every OCR provider is asked to return.
// Confidence may come back as a fraction or a percentage.
const recognitionSchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "text": {"type": "string"},
    "confidence": {"type": ["number", "null"], "minimum": 0, "maximum": 100}
  }
}`

var compiledRecognitionSchema = jsonschema.MustCompileString("recognition.json", recognitionSchema)

type recognitionPayload struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// parseRecognitionJSON parses the JSON response from an OCR provider
func parseRecognitionJSON(text string) (*Recognition, error) {
	// Remove markdown code blocks if present
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := compiledRecognitionSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}

	var payload recognitionPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	recognition := &Recognition{
		Text: strings.TrimSpace(payload.Text),
	}

	switch {
	case payload.Confidence == nil:
		// Model did not self-assess, fall back to what the text looks like
		recognition.Confidence = heuristicConfidence(recognition.Text)
	case *payload.Confidence > 1:
		recognition.Confidence = *payload.Confidence / 100
	default:
		recognition.Confidence = *payload.Confidence
	}

	return recognition, nil
}
