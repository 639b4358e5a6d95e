// Package csvx reads and writes the CSV dialects produced by the shop-floor
// subsystems. Exports vary between comma, semicolon and tab delimiters,
// frequently carry a UTF-8 BOM, and mix CR/LF/CRLF line endings, so parsing
// normalizes all of that before handing rows to callers.
package csvx

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Document is a parsed CSV file. Header is nil when the first row carried no
// letters; in that case the row stays in Rows.
type Document struct {
	Header []string
	Rows   [][]string
}

// DetectDelimiter picks the delimiter from {',', ';', '\t'} by counting
// candidates outside quotes on the first non-empty line. Ties and
// zero-candidate lines fall back to the comma.
func DetectDelimiter(data []byte) rune {
	line := firstNonEmptyLine(data)
	counts := map[rune]int{',': 0, ';': 0, '\t': 0}
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case !inQuotes:
			if _, ok := counts[r]; ok {
				counts[r]++
			}
		}
	}
	best := ','
	bestCount := counts[',']
	for _, cand := range []rune{';', '\t'} {
		if counts[cand] > bestCount {
			best = cand
			bestCount = counts[cand]
		}
	}
	return best
}

func firstNonEmptyLine(data []byte) string {
	s := string(normalizeNewlines(stripBOM(data)))
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

func normalizeNewlines(data []byte) []byte {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
}

// Parse decodes data into rows. Every cell is trimmed of surrounding
// whitespace after quote removal, and rows whose cells are all empty are
// dropped.
func Parse(data []byte) ([][]string, error) {
	cleaned := normalizeNewlines(stripBOM(data))
	if len(bytes.TrimSpace(cleaned)) == 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(cleaned))
	r.Comma = DetectDelimiter(cleaned)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		empty := true
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
			if rec[i] != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, rec)
		}
	}
	return rows, nil
}

// ParseDocument parses data and splits off the header row when one is
// present. The first row is a header iff any of its cells contains a letter.
func ParseDocument(data []byte) (Document, error) {
	rows, err := Parse(data)
	if err != nil {
		return Document{}, err
	}
	if len(rows) == 0 {
		return Document{}, nil
	}
	if IsHeaderRow(rows[0]) {
		return Document{Header: rows[0], Rows: rows[1:]}, nil
	}
	return Document{Rows: rows}, nil
}

// IsHeaderRow reports whether any cell in the row contains a letter.
func IsHeaderRow(row []string) bool {
	for _, cell := range row {
		for _, r := range cell {
			if unicode.IsLetter(r) {
				return true
			}
		}
	}
	return false
}

// FindColumn returns the index of the first header cell equal to any of
// names, compared case-insensitively after trimming. Returns -1 when no
// name matches or the header is nil.
func FindColumn(header []string, names ...string) int {
	for i, cell := range header {
		cell = strings.ToLower(strings.TrimSpace(cell))
		for _, name := range names {
			if cell == strings.ToLower(strings.TrimSpace(name)) {
				return i
			}
		}
	}
	return -1
}

// Column returns row[idx] trimmed, or "" when idx is out of range. Rows in
// these exports are frequently ragged, so out-of-range reads are routine.
func Column(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Write encodes rows as comma-separated CSV. Cells containing the delimiter
// or a double quote are quoted with embedded quotes doubled, and the document
// ends with a trailing newline.
func Write(rows [][]string) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.WriteAll(rows) // bytes.Buffer writes cannot fail
	return buf.Bytes()
}
