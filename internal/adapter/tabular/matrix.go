package tabular

import (
	"fmt"
	"strconv"
	"strings"

	"pathembed/internal/domain"
)

// ParseMatrix parses a tab-separated numeric matrix. The row width is fixed
// by the header, or by the first row when there is none; a row of any other
// width is a ParseError rather than a silent skip.
func ParseMatrix(raw string, hasHeader bool) ([][]float64, error) {
	lines := trimmedLines(raw)
	if len(lines) == 0 {
		return nil, domain.ErrEmptyInput
	}

	width := -1
	start := 0
	if hasHeader {
		width = len(strings.Split(lines[0], "\t"))
		start = 1
	}

	rows := make([][]float64, 0, len(lines)-start)
	for i := start; i < len(lines); i++ {
		fields := strings.Split(lines[i], "\t")
		if width < 0 {
			width = len(fields)
		}
		if len(fields) != width {
			return nil, &domain.ParseError{Line: i + 1, Reason: fmt.Sprintf("expected %d fields, got %d", width, len(fields))}
		}
		row, err := parseFloats(fields, i+1)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseLabeled reads rows of "identifier<TAB>v1<TAB>v2..." with no header,
// the format written by the TSV exporter.
func ParseLabeled(raw string) ([]string, [][]float64, error) {
	lines := trimmedLines(raw)
	if len(lines) == 0 {
		return nil, nil, domain.ErrEmptyInput
	}

	ids := make([]string, 0, len(lines))
	vectors := make([][]float64, 0, len(lines))
	width := -1
	for i, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, nil, &domain.ParseError{Line: i + 1, Reason: "expected identifier and at least one value"}
		}
		if width < 0 {
			width = len(fields)
		}
		if len(fields) != width {
			return nil, nil, &domain.ParseError{Line: i + 1, Reason: fmt.Sprintf("expected %d fields, got %d", width, len(fields))}
		}
		vec, err := parseFloats(fields[1:], i+1)
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, fields[0])
		vectors = append(vectors, vec)
	}
	return ids, vectors, nil
}

// ParseColumn returns one zero-based column of a tab-separated table.
func ParseColumn(raw string, column int, hasHeader bool) ([]string, error) {
	if column < 0 {
		return nil, fmt.Errorf("invalid column %d", column)
	}
	lines := trimmedLines(raw)
	start := 0
	if hasHeader {
		start = 1
	}
	if len(lines) <= start {
		return nil, domain.ErrEmptyInput
	}

	values := make([]string, 0, len(lines)-start)
	for i := start; i < len(lines); i++ {
		fields := strings.Split(lines[i], "\t")
		if column >= len(fields) {
			return nil, &domain.ParseError{Line: i + 1, Reason: fmt.Sprintf("no column %d", column)}
		}
		values = append(values, strings.TrimSpace(fields[column]))
	}
	return values, nil
}

func parseFloats(fields []string, line int) ([]float64, error) {
	row := make([]float64, len(fields))
	for j, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, &domain.ParseError{Line: line, Reason: fmt.Sprintf("field %d: %q is not a number", j+1, f)}
		}
		row[j] = v
	}
	return row, nil
}

// trimmedLines drops leading and trailing blank lines, matching a
// trim-then-split read of the file.
func trimmedLines(raw string) []string {
	raw = strings.Trim(raw, "\r\n\t ")
	if raw == "" {
		return nil
	}
	return splitLines(raw)
}
