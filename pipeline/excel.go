package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-scrape-watchcount/models"
)

const excelSheet = "Listings"

// ExcelWriter buffers records into a workbook that is saved on Close.
type ExcelWriter struct {
	path string
	file *excelize.File
	row  int
	mu   sync.Mutex
}

// NewExcelWriter prepares a workbook with a frozen header row.
func NewExcelWriter(filename string) (*ExcelWriter, error) {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".xlsx" {
		return nil, fmt.Errorf("excel output needs a .xlsx file, got %q", filename)
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), excelSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	header := models.Header
	if err := f.SetSheetRow(excelSheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write excel header: %w", err)
	}
	if err := f.SetPanes(excelSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freeze excel header: %w", err)
	}

	return &ExcelWriter{path: filename, file: f, row: 1}, nil
}

// Write appends one record on the next row.
func (ew *ExcelWriter) Write(record *models.ListingRecord) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	cell, err := excelize.CoordinatesToCellName(1, ew.row+1)
	if err != nil {
		return fmt.Errorf("excel cell: %w", err)
	}
	values := record.Fields()
	if err := ew.file.SetSheetRow(excelSheet, cell, &values); err != nil {
		return fmt.Errorf("write excel row: %w", err)
	}
	ew.row++
	return nil
}

// Close saves the workbook to disk.
func (ew *ExcelWriter) Close() error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	if err := ew.file.SaveAs(ew.path); err != nil {
		ew.file.Close()
		return fmt.Errorf("save workbook: %w", err)
	}
	return ew.file.Close()
}

// Validate ensures the header row is in place.
func (ew *ExcelWriter) Validate() error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	value, err := ew.file.GetCellValue(excelSheet, "A1")
	if err != nil {
		return fmt.Errorf("read excel header: %w", err)
	}
	if value != models.Header[0] {
		return fmt.Errorf("excel header missing")
	}
	return nil
}

// Rows reports the number of data rows written.
func (ew *ExcelWriter) Rows() int {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	return ew.row - 1
}
