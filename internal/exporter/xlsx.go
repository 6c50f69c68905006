package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// XLSXWriter exports result tables as Excel workbooks.
type XLSXWriter struct {
	logger *slog.Logger
}

// NewXLSXWriter creates a new XLSX writer instance
func NewXLSXWriter(logger *slog.Logger) *XLSXWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXWriter{logger: logger}
}

// sheetName is the single data sheet in exported workbooks.
const sheetName = "Data"

// WriteXLSX writes headers and records to a single-sheet workbook.
// Numeric-looking cells are written as numbers so spreadsheet formulas
// work on them directly.
func (w *XLSXWriter) WriteXLSX(filePath string, headers []string, records [][]string) error {
	w.logger.Info("writing XLSX file",
		slog.String("file_path", filePath),
		slog.Int("record_count", len(records)))

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("failed to write header %q: %w", h, err)
		}
	}

	for row, record := range records {
		for col, value := range record {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return fmt.Errorf("failed to compute cell at row %d: %w", row+2, err)
			}
			if num, perr := strconv.ParseFloat(value, 64); perr == nil && value != "" {
				err = f.SetCellValue(sheetName, cell, num)
			} else {
				err = f.SetCellValue(sheetName, cell, value)
			}
			if err != nil {
				return fmt.Errorf("failed to write cell at row %d: %w", row+2, err)
			}
		}
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
