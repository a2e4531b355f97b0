package bill

import (
	"time"

	"github.com/zombor/bill-extractor/internal/amounts"
)

// Extraction sources
const (
	SourceText  = "text"
	SourceImage = "image"
)

// Extraction is one run of the amount pipeline over a submitted bill
type Extraction struct {
	ID            string         `json:"id"`
	Source        string         `json:"source"`                 // "text" or "image"
	Filename      string         `json:"filename,omitempty"`     // stored upload, image sources only
	ContentType   string         `json:"content_type,omitempty"` // MIME type of the upload
	Text          string         `json:"text"`                   // text the pipeline read
	OCRConfidence float64        `json:"ocr_confidence"`
	Result        amounts.Result `json:"result"`
	CreatedAt     time.Time      `json:"created_at"`
}
