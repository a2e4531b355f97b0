package scanning

import "context"

// Recognition is the text read from a bill image and how legible it was.
type Recognition struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..1
}

// Scanner defines the interface for OCR operations on bill images
type Scanner interface {
	// Recognize reads all text from an image/PDF
	Recognize(ctx context.Context, imageData []byte, contentType string) (*Recognition, error)
	// Close closes the scanner and releases resources
	Close() error
}
