package bill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/bill-extractor/internal/amounts"
	"github.com/zombor/bill-extractor/internal/scanning"
)

var (
	// ErrEmptyText is returned when submitted text is blank
	ErrEmptyText = errors.New("text input cannot be empty")
	// ErrEmptyFile is returned when an uploaded file has no content
	ErrEmptyFile = errors.New("uploaded file is empty")
	// ErrNoScanner is returned for image uploads when no OCR provider is configured
	ErrNoScanner = errors.New("image OCR is not configured")
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// IDGenerator generates unique IDs for extractions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs the amount pipeline on submitted bills and keeps a history
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source.
// scanner may be nil, in which case only text can be processed.
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "bill"
	}

	return base + ext
}

// ExtractText runs the pipeline on text that did not come from OCR
func (s *Service) ExtractText(text string) (*Extraction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	now := s.timeSource.Now()
	extraction := &Extraction{
		ID:            s.idGenerator.Generate(),
		Source:        SourceText,
		Text:          text,
		OCRConfidence: amounts.TextConfidence,
		Result:        amounts.Run(text, amounts.TextConfidence),
		CreatedAt:     now,
	}

	if err := s.db.SaveExtraction(extraction); err != nil {
		return nil, fmt.Errorf("saving extraction to database: %w", err)
	}

	logResult(extraction)
	return extraction, nil
}

// ExtractImage stores an uploaded bill image, reads it with OCR and runs the
// pipeline on the recognized text
func (s *Service) ExtractImage(ctx context.Context, filename string, data []byte, contentType string) (*Extraction, error) {
	if s.scanner == nil {
		return nil, ErrNoScanner
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	recognition, err := s.scanner.Recognize(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to recognize bill",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		// The pipeline never runs on a failed recognition
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("recognizing bill: %w", err)
	}

	extraction := &Extraction{
		ID:            id,
		Source:        SourceImage,
		Filename:      savedPath,
		ContentType:   contentType,
		Text:          recognition.Text,
		OCRConfidence: recognition.Confidence,
		Result:        amounts.Run(recognition.Text, recognition.Confidence),
		CreatedAt:     now,
	}

	if err := s.db.SaveExtraction(extraction); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving extraction to database: %w", err)
	}

	logResult(extraction)
	return extraction, nil
}

func logResult(extraction *Extraction) {
	slog.Info("Extracted amounts",
		"id", extraction.ID,
		"source", extraction.Source,
		"status", extraction.Result.Status,
		"amounts", len(extraction.Result.Amounts),
		"overall_confidence", extraction.Result.OverallConfidence,
	)
}

// GetExtraction retrieves an extraction by ID
func (s *Service) GetExtraction(id string) (*Extraction, error) {
	extraction, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, fmt.Errorf("getting extraction: %w", err)
	}
	return extraction, nil
}

// ListExtractions returns all extractions, newest first
func (s *Service) ListExtractions() ([]*Extraction, error) {
	extractions, err := s.db.ListExtractions()
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	sort.SliceStable(extractions, func(i, j int) bool {
		return extractions[i].CreatedAt.After(extractions[j].CreatedAt)
	})
	return extractions, nil
}

// DeleteExtraction removes an extraction and its uploaded file
func (s *Service) DeleteExtraction(id string) error {
	extraction, err := s.db.GetExtraction(id)
	if err != nil {
		return fmt.Errorf("getting extraction for deletion: %w", err)
	}

	if extraction.Filename != "" {
		if err := s.storage.Delete(extraction.Filename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", extraction.Filename, "error", err)
		}
	}

	if err := s.db.DeleteExtraction(id); err != nil {
		return fmt.Errorf("deleting extraction from database: %w", err)
	}
	return nil
}

// GetExtractionFile retrieves the uploaded file of an image extraction
func (s *Service) GetExtractionFile(id string) ([]byte, string, error) {
	extraction, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting extraction: %w", err)
	}
	if extraction.Filename == "" {
		return nil, "", fmt.Errorf("%w: extraction %s has no file", ErrNotFound, id)
	}

	data, err := s.storage.Get(extraction.Filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: file of extraction %s: %w", ErrNotFound, id, err)
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting extraction file: %w", err)
	}

	return data, extraction.ContentType, nil
}
