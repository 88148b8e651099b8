// Package loader reads a labelled numeric matrix from a spreadsheet or a
// delimited text file.
//
// The format is detected from the file content, not its extension.
// Spreadsheets (xlsx) are read from their first sheet. Anything else is
// treated as UTF-8 text whose delimiter is sniffed among tab, comma,
// semicolon and pipe.
//
// In both cases the first row holds the column labels (its first cell names
// the index and is dropped) and the first column holds the row labels.
// Empty cells and the usual missing-value markers (NA, NaN, null, ...) are
// read as zero.
package loader

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/h2non/filetype"
	"github.com/xuri/excelize/v2"

	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/matrix"
)

// Format names reported by Detect.
const (
	FormatXLSX = "xlsx"
	FormatText = "text"
)

var missing = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"-nan": true,
	"null": true,
	"none": true,
	"#n/a": true,
	"<na>": true,
}

// Load reads the matrix stored at path.
func Load(path string) (matrix.Matrix, error) {
	if err := errors.ValidateFilePath(path); err != nil {
		return matrix.Matrix{}, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return matrix.Matrix{}, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
	}
	if err != nil {
		return matrix.Matrix{}, errors.Wrap(errors.ErrCodeIO, err, "read %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return matrix.Matrix{}, errors.Wrap(errors.ErrCodeIO, err, "parse %s", path)
	}
	return m, nil
}

// Detect reports the format of data.
func Detect(data []byte) (string, error) {
	switch {
	case filetype.Is(data, "xlsx"):
		return FormatXLSX, nil
	case filetype.Is(data, "xls"):
		return "", fmt.Errorf("legacy .xls workbooks are not supported, save as .xlsx")
	case filetype.Is(data, "zip"):
		// workbooks whose first zip entry is not the content-types part
		// only match as plain zip
		return FormatXLSX, nil
	case filetype.IsArchive(data) || filetype.IsImage(data) || filetype.IsDocument(data):
		kind, _ := filetype.Match(data)
		return "", fmt.Errorf("unsupported file type %q", kind.Extension)
	}
	return FormatText, nil
}

// Parse decodes a matrix from raw file content.
func Parse(data []byte) (matrix.Matrix, error) {
	format, err := Detect(data)
	if err != nil {
		return matrix.Matrix{}, err
	}
	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = readSheet(data)
	default:
		rows, err = readDelimited(data)
	}
	if err != nil {
		return matrix.Matrix{}, err
	}
	return fromGrid(rows)
}

func readSheet(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// fromGrid converts string cells into a matrix.
func fromGrid(rows [][]string) (matrix.Matrix, error) {
	rows = dropBlank(rows)
	if len(rows) < 2 {
		return matrix.Matrix{}, fmt.Errorf("need a header row and at least one data row, got %d rows", len(rows))
	}

	header := trimTrailingEmpty(rows[0])
	if len(header) < 2 {
		return matrix.Matrix{}, fmt.Errorf("header has no column labels")
	}
	cols := make([]string, len(header)-1)
	for i, h := range header[1:] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i+1)
		}
		cols[i] = h
	}

	m := matrix.Matrix{ColLabels: cols}
	for r, row := range rows[1:] {
		line := r + 2
		label := strings.TrimSpace(row[0])
		if label == "" {
			return matrix.Matrix{}, fmt.Errorf("row %d has no label", line)
		}
		values := make([]float64, len(cols))
		for j, cell := range row[1:] {
			if j >= len(cols) {
				if strings.TrimSpace(cell) != "" {
					return matrix.Matrix{}, fmt.Errorf("row %d has more cells than the header", line)
				}
				continue
			}
			v, err := parseCell(cell)
			if err != nil {
				return matrix.Matrix{}, fmt.Errorf("row %d (%s), column %q: %w", line, label, cols[j], err)
			}
			values[j] = v
		}
		m.RowLabels = append(m.RowLabels, label)
		m.Values = append(m.Values, values)
	}

	if err := m.Validate(); err != nil {
		return matrix.Matrix{}, err
	}
	return m.FillMissing(), nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if missing[strings.ToLower(s)] {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}

func dropBlank(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, row := range rows {
		if len(trimTrailingEmpty(row)) > 0 {
			out = append(out, row)
		}
	}
	return out
}

func trimTrailingEmpty(row []string) []string {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return row[:n]
}
