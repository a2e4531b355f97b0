package bill

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/bill-extractor/internal/scanning"
)

// maxUploadSize bounds uploaded bill images and PDFs
const maxUploadSize = int64(20 << 20) // 20MB

const (
	msgMissingInput = "Either an image file or text must be provided"
	msgEmptyText    = "Text input cannot be empty"
)

var errMissingInput = errors.New("no file or text provided")

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeJSONError writes an {"error": message} response
func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"message":   "Bill Amount Extractor API is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.version,
	})
}

// handleExtractAmounts runs the pipeline on an uploaded image or on text
func (s *Server) handleExtractAmounts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		extraction *Extraction
		err        error
	)
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			slog.Error("Error parsing multipart form", "error", err)
			errorMsg := "Error parsing form"
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				errorMsg = "File is too large. Maximum size is 20MB."
			}
			writeJSONError(w, errorMsg, http.StatusBadRequest)
			return
		}
		f, header, fileErr := r.FormFile("file")
		if fileErr == nil {
			defer f.Close()
			data, readErr := io.ReadAll(f)
			if readErr != nil {
				slog.Error("Error reading file data", "error", readErr, "filename", header.Filename)
				writeJSONError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
				return
			}
			contentType := uploadContentType(header.Header.Get("Content-Type"), header.Filename)
			extraction, err = s.service.ExtractImage(r.Context(), header.Filename, data, contentType)
			break
		}
		extraction, err = s.extractText(r.FormValue("text"))
	case "application/json":
		var req struct {
			Text string `json:"text"`
		}
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		extraction, err = s.extractText(req.Text)
	default:
		extraction, err = s.extractText(r.FormValue("text"))
	}

	if err != nil {
		s.writeExtractionError(w, err)
		return
	}

	w.Header().Set("X-Extraction-ID", extraction.ID)
	writeJSON(w, http.StatusOK, extraction.Result)
}

// extractText runs the pipeline on submitted text. An absent text field is
// reported separately from a blank one.
func (s *Server) extractText(text string) (*Extraction, error) {
	if text == "" {
		return nil, errMissingInput
	}
	return s.service.ExtractText(text)
}

// writeExtractionError maps service errors onto HTTP responses
func (s *Server) writeExtractionError(w http.ResponseWriter, err error) {
	slog.Error("Error extracting amounts", "error", err)
	switch {
	case errors.Is(err, errMissingInput):
		writeJSONError(w, msgMissingInput, http.StatusBadRequest)
	case errors.Is(err, ErrEmptyText):
		writeJSONError(w, msgEmptyText, http.StatusBadRequest)
	case errors.Is(err, ErrEmptyFile):
		writeJSONError(w, "Uploaded file is empty", http.StatusBadRequest)
	case errors.Is(err, ErrNoScanner):
		writeJSONError(w, "Image OCR is not configured on this server. Submit text instead.", http.StatusServiceUnavailable)
	case errors.Is(err, scanning.ErrImageConversion):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

// uploadContentType determines the MIME type of an upload
func uploadContentType(declared, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// handleListExtractions returns all extractions
func (s *Server) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	extractions, err := s.service.ListExtractions()
	if err != nil {
		slog.Error("Error listing extractions", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, extractions)
}

// handleGetExtraction returns a single extraction
func (s *Server) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	extraction, err := s.service.GetExtraction(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSONError(w, "Extraction not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting extraction", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, extraction)
}

// handleGetExtractionFile returns the uploaded file of an extraction
func (s *Server) handleGetExtractionFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetExtractionFile(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSONError(w, "File not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting extraction file", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteExtraction deletes an extraction
func (s *Server) handleDeleteExtraction(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExtraction(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSONError(w, "Extraction not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting extraction", "error", err)
		writeJSONError(w, "Error deleting extraction", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleExportExtractions returns every extracted amount as an XLSX workbook
func (s *Server) handleExportExtractions(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportXLSX()
	if err != nil {
		slog.Error("Error exporting extractions", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="extractions.xlsx"`)
	w.Write(data)
}
