package extract

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractTabular renders a CSV or XLSX file as a fixed-width text table so
// the row/column structure survives chunking and retrieval.
func extractTabular(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return extractCSV(path)
	case ".xlsx":
		return extractXLSX(path)
	default:
		return "", fmt.Errorf("extract: %s: %w", filepath.Base(path), ErrUnsupportedFileType)
	}
}

// extractCSV reads all records and renders them fixed-width.
func extractCSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("extract: open csv %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are tolerated
	rows, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("extract: parse csv %s: %w", path, err)
	}
	return renderTable(rows), nil
}

// extractXLSX renders every sheet fixed-width, with a sheet-name heading when
// the workbook has more than one sheet.
func extractXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("extract: open xlsx %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var parts []string
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("extract: read sheet %q in %s: %w", sheet, path, err)
		}
		table := renderTable(rows)
		if len(sheets) > 1 {
			table = sheet + "\n" + table
		}
		if table != "" {
			parts = append(parts, table)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// renderTable pads each column to its widest cell, two spaces between columns.
func renderTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	for ri, row := range rows {
		if ri > 0 {
			sb.WriteString("\n")
		}
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			if i < len(row)-1 {
				sb.WriteString(cell + strings.Repeat(" ", widths[i]-len(cell)))
			} else {
				sb.WriteString(cell)
			}
		}
	}
	return sb.String()
}
