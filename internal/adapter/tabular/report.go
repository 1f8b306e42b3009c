package tabular

import (
	"strings"

	"pathembed/internal/domain"
)

// ReportParser turns a reports CSV into Records. Each data row is
// "identifier,free text"; with a Sentinel set the text ends at its first
// occurrence and anything after it is ignored.
//
// Malformed rows are skipped rather than failing the parse. A skipped row
// still consumes its position, so Record.Index has gaps unless Reindex is set.
type ReportParser struct {
	Sentinel string
	Reindex  bool
}

type ReportResult struct {
	Records []domain.Record
	Skipped []domain.SkippedRow
	Rows    int // data rows seen after the header, blank lines included
}

func NewReportParser(sentinel string, reindex bool) *ReportParser {
	return &ReportParser{Sentinel: sentinel, Reindex: reindex}
}

// Parse drops the first line unconditionally as the header, whatever it
// holds. Empty input yields an empty result.
func (p *ReportParser) Parse(raw string) (ReportResult, error) {
	var result ReportResult

	lines := splitLines(raw)
	if len(lines) == 0 {
		return result, nil
	}

	for i, line := range lines[1:] {
		result.Rows++
		if strings.TrimSpace(line) == "" {
			continue
		}

		identifier, text, reason := p.splitRow(line)
		if reason != "" {
			result.Skipped = append(result.Skipped, domain.SkippedRow{Line: i + 2, Reason: reason})
			continue
		}

		index := i
		if p.Reindex {
			index = len(result.Records)
		}
		result.Records = append(result.Records, domain.Record{
			Index:      index,
			Identifier: identifier,
			Text:       text,
		})
	}

	// a trailing newline is not a data row
	if result.Rows > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		result.Rows--
	}

	return result, nil
}

func (p *ReportParser) splitRow(line string) (identifier, text, reason string) {
	comma := strings.IndexByte(line, ',')
	if comma < 0 {
		return "", "", "no comma"
	}
	identifier = strings.TrimSpace(line[:comma])
	if identifier == "" {
		return "", "", "empty identifier"
	}

	rest := line[comma+1:]
	if p.Sentinel != "" {
		end := strings.Index(rest, p.Sentinel)
		if end < 0 {
			return "", "", "sentinel " + p.Sentinel + " not found"
		}
		text = strings.TrimSpace(rest[:end])
	} else {
		text = unquote(strings.TrimSpace(rest))
	}

	if text == "" {
		return "", "", "empty text"
	}
	return identifier, text, ""
}

// unquote strips one pair of surrounding double quotes and collapses
// doubled quotes inside them.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return strings.TrimSpace(s)
}

func splitLines(raw string) []string {
	if raw == "" {
		return nil
	}
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
