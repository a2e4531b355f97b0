package bill

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Amounts"

var exportHeaders = []string{
	"Extracted At",
	"Extraction ID",
	"Input",
	"Status",
	"Currency",
	"Type",
	"Value",
	"Source",
	"Overall Confidence",
}

// ExportXLSX returns a workbook with one row per extracted amount, newest
// extraction first. Extractions without amounts get a single status row.
func (s *Service) ExportXLSX() ([]byte, error) {
	start := time.Now()

	extractions, err := s.ListExtractions()
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, h)
	}

	row := 2
	write := func(values ...any) {
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(exportSheet, cell, v)
		}
		row++
	}

	for _, e := range extractions {
		created := e.CreatedAt.UTC().Format(time.RFC3339)
		if !e.Result.Found() {
			write(created, e.ID, e.Source, e.Result.Status, "", "", "", e.Result.Reason, "")
			continue
		}
		for _, a := range e.Result.Amounts {
			write(created, e.ID, e.Source, e.Result.Status, e.Result.Currency,
				a.Type, a.Value, a.Source, e.Result.OverallConfidence)
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 22) // date
	_ = f.SetColWidth(exportSheet, "B", "B", 38) // id
	_ = f.SetColWidth(exportSheet, "C", "E", 12)
	_ = f.SetColWidth(exportSheet, "F", "G", 16) // type, value
	_ = f.SetColWidth(exportSheet, "H", "H", 48) // provenance
	_ = f.SetColWidth(exportSheet, "I", "I", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	slog.Info("Exported extractions",
		"extractions", len(extractions),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
