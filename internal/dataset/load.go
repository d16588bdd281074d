package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "crm-audit-toolkit/internal/errors"
)

// nullTokens are read as null, matching what spreadsheet and dataframe
// exports write for missing values.
var nullTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"nat":  true,
	"null": true,
	"none": true,
}

func cellFromRaw(raw string) Cell {
	if nullTokens[strings.ToLower(strings.TrimSpace(raw))] {
		return Null()
	}
	return Text(raw)
}

// ReadCSV reads a CSV export with a header row.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewParsingError(name+": empty file", err)
		}
		return nil, apperrors.NewParsingError(name+": unable to read header", err)
	}
	table := New(name, cleanHeaders(headers))

	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, apperrors.NewParsingError(name+": unable to read CSV", err)
		}
		if len(record) == 0 {
			continue
		}
		table.Append(rawCells(record)...)
	}
	return table, nil
}

// LoadCSV reads a CSV file from disk.
func LoadCSV(name, path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(name, file)
}

// ReadXLSX reads a workbook from r. An empty sheet selects the first sheet.
func ReadXLSX(name string, r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.NewParsingError(name+": failed to open workbook", err)
	}
	defer f.Close()
	return tableFromWorkbook(name, f, sheet)
}

// LoadXLSX reads a workbook from disk. An empty sheet selects the first sheet.
func LoadXLSX(name, path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewParsingError(name+": failed to open workbook", err)
	}
	defer f.Close()
	return tableFromWorkbook(name, f, sheet)
}

func tableFromWorkbook(name string, f *excelize.File, sheet string) (*Table, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperrors.NewParsingError(name+": workbook has no sheets", nil)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: failed to read sheet %q", name, sheet), err)
	}

	// Skip leading blank rows before the header.
	start := 0
	for start < len(rows) && blankRow(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil, apperrors.NewParsingError(fmt.Sprintf("%s: sheet %q is empty", name, sheet), nil)
	}

	table := New(name, cleanHeaders(rows[start]))
	for _, row := range rows[start+1:] {
		if blankRow(row) {
			continue
		}
		table.Append(rawCells(row)...)
	}
	return table, nil
}

// LoadFile loads a .csv or .xlsx export by extension and renames source
// columns to canonical names.
func LoadFile(name, path string, columns map[string]string) (*Table, error) {
	var (
		table *Table
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		table, err = LoadXLSX(name, path, "")
	default:
		table, err = LoadCSV(name, path)
	}
	if err != nil {
		return nil, err
	}
	table.Rename(columns)
	return table, nil
}

func cleanHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, header := range headers {
		header = strings.TrimPrefix(header, "\ufeff")
		out[i] = strings.TrimSpace(header)
	}
	return out
}

func rawCells(record []string) []Cell {
	cells := make([]Cell, len(record))
	for i, raw := range record {
		cells[i] = cellFromRaw(raw)
	}
	return cells
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
