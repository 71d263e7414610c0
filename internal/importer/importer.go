// Package importer turns uploaded CSV and XLSX files into rows keyed by the
// header line. It does not interpret the values; see validation.OrderFromRow.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither .csv nor .xlsx.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrTooLarge is returned when an upload exceeds the configured size.
	ErrTooLarge = errors.New("file too large")
)

// DefaultMaxFileSize is 10 MiB.
const DefaultMaxFileSize int64 = 10 << 20

// Row maps header names to cell values. CSV values are strings; XLSX values keep
// their cell type (float64, bool, string) and empty cells are nil.
type Row = map[string]any

// Format is a supported upload format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the format from the file extension, case-insensitively.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// CheckSize rejects uploads larger than max. A non-positive max disables the check.
func CheckSize(size, max int64) error {
	if max > 0 && size > max {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, max)
	}
	return nil
}

// Parse reads data according to filename's extension.
func Parse(data []byte, filename string) ([]Row, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatXLSX:
		return parseXLSX(data)
	default:
		return parseCSV(data)
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func parseCSV(data []byte) ([]Row, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.ToValidUTF8(data, []byte("�"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	header = cleanHeader(header)

	rows := []Row{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if blank(rec) {
			continue
		}
		row := Row{}
		for i, name := range header {
			if name == "" || i >= len(rec) {
				continue
			}
			row[name] = rec[i]
		}
		rows = append(rows, row)
	}
}

func parseXLSX(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(grid) == 0 {
		return []Row{}, nil
	}
	header := cleanHeader(grid[0])

	rows := []Row{}
	for r := 1; r < len(grid); r++ {
		if blank(grid[r]) {
			continue
		}
		row := Row{}
		for c, name := range header {
			if name == "" {
				continue
			}
			v, err := cellValue(f, sheet, c+1, r+1)
			if err != nil {
				return nil, err
			}
			row[name] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// cellValue reads one cell, keeping numbers and booleans typed.
func cellValue(f *excelize.File, sheet string, col, row int) (any, error) {
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, err
	}
	raw, err := f.GetCellValue(sheet, ref, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read cell %s: %w", ref, err)
	}
	if raw == "" {
		return nil, nil
	}
	typ, err := f.GetCellType(sheet, ref)
	if err != nil {
		return nil, fmt.Errorf("read cell type %s: %w", ref, err)
	}

	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return raw, nil
	case excelize.CellTypeDate:
		// formatted text, as shown in the sheet
		return f.GetCellValue(sheet, ref)
	}
	// numbers are stored without an explicit type
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n, nil
	}
	return raw, nil
}

func cleanHeader(h []string) []string {
	out := make([]string, len(h))
	for i, name := range h {
		out[i] = strings.TrimSpace(name)
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
