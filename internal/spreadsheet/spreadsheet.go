// Package spreadsheet turns uploaded CSV and XLSX files into a header row plus data rows.
package spreadsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrNoHeader          = errors.New("spreadsheet has no header row")
)

// Sheet is a parsed table. Every row has exactly len(Headers) cells.
type Sheet struct {
	Headers []string
	Rows    [][]string
}

// Parse reads the file according to its extension (.csv, .xlsx, .xlsm)
func Parse(filename string, r io.Reader) (*Sheet, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx", ".xlsm":
		return ParseXLSX(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
}

func ParseCSV(r io.Reader) (*Sheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return build(rows)
}

// ParseXLSX reads the first worksheet of the workbook
func ParseXLSX(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", sheets[0], err)
	}
	return build(rows)
}

// build takes the first non-blank row as headers and squares the remaining rows off
func build(rows [][]string) (*Sheet, error) {
	start := -1
	for i, row := range rows {
		if !blank(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrNoHeader
	}

	headers := make([]string, len(rows[start]))
	for i, h := range rows[start] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	if len(headers) == 0 {
		return nil, ErrNoHeader
	}

	sheet := &Sheet{Headers: headers, Rows: make([][]string, 0, len(rows)-start-1)}
	for _, row := range rows[start+1:] {
		cells := make([]string, len(headers))
		for i := range cells {
			if i < len(row) {
				cells[i] = strings.TrimSpace(row[i])
			}
		}
		sheet.Rows = append(sheet.Rows, cells)
	}
	// trailing blank rows are sheet padding, not data
	for len(sheet.Rows) > 0 && blank(sheet.Rows[len(sheet.Rows)-1]) {
		sheet.Rows = sheet.Rows[:len(sheet.Rows)-1]
	}
	return sheet, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
