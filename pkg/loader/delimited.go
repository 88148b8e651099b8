package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Delimiters tried by SniffDelimiter, in order of preference.
var Delimiters = []rune{'\t', ',', ';', '|'}

const sniffLines = 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SniffDelimiter picks the delimiter that splits the leading lines of data
// into the same number of fields (more than one) on every line. Among
// consistent candidates the one producing more fields wins, and ties go to
// the earlier entry of Delimiters. When no candidate is consistent the one
// splitting the header into the most fields is used.
func SniffDelimiter(data []byte) rune {
	lines := leadingLines(data, sniffLines)
	if len(lines) == 0 {
		return Delimiters[0]
	}

	best, bestFields := rune(0), 1
	for _, d := range Delimiters {
		n, ok := consistentFields(lines, d)
		if ok && n > bestFields {
			best, bestFields = d, n
		}
	}
	if best != 0 {
		return best
	}

	best, bestFields = Delimiters[0], 1
	for _, d := range Delimiters {
		if n := countFields(lines[0], d); n > bestFields {
			best, bestFields = d, n
		}
	}
	return best
}

func leadingLines(data []byte, limit int) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() && len(lines) < limit {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// countFields splits line on d outside double quotes.
func countFields(line string, d rune) int {
	n, quoted := 1, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

func consistentFields(lines []string, d rune) (int, bool) {
	want := countFields(lines[0], d)
	for _, line := range lines[1:] {
		if countFields(line, d) != want {
			return 0, false
		}
	}
	return want, want > 1
}

func readDelimited(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("text input is not valid UTF-8")
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = SniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read delimited text: %w", err)
	}
	return rows, nil
}
