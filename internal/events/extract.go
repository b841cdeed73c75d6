package events

import "strings"

// Scanner holds the state of one pass over a document. It is not safe for
// concurrent use; each document gets its own Scanner.
type Scanner struct {
	contextDate string
}

// NewScanner returns a Scanner with no context date.
func NewScanner() *Scanner {
	return &Scanner{}
}

// ContextDate returns the most recent ISO date seen, or "" before any.
func (s *Scanner) ContextDate() string {
	return s.contextDate
}

// Line consumes one line of text and reports the record it yields, if any.
// A date on the line updates the context date before the line's own times
// are qualified.
func (s *Scanner) Line(raw string) (Record, bool) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Record{}, false
	}

	if iso, ok := findDate(line); ok {
		s.contextDate = iso
	}

	times := findTimes(line)
	label, hasKeyword := matchKeyword(line)

	switch {
	case hasKeyword && len(times) >= 2:
		end := s.qualify(times[1])
		return Record{Event: label, Start: s.qualify(times[0]), End: &end, Source: line}, true
	case hasKeyword && len(times) == 1:
		return Record{Event: label, Start: s.qualify(times[0]), Source: line}, true
	case !hasKeyword && len(times) >= 2:
		end := s.qualify(times[1])
		return Record{Event: FallbackLabel, Start: s.qualify(times[0]), End: &end, Source: line}, true
	default:
		// keyword without a time, a lone unlabelled time, or nothing at all
		return Record{}, false
	}
}

func (s *Scanner) qualify(t string) string {
	if s.contextDate == "" {
		return t
	}
	return s.contextDate + " " + t
}

// Extract runs a fresh Scanner over every line of text and returns the
// records in document order. It never fails; text without any recognisable
// event yields an empty slice.
func Extract(text string) []Record {
	s := NewScanner()
	records := make([]Record, 0)
	for _, line := range SplitLines(text) {
		if r, ok := s.Line(line); ok {
			records = append(records, r)
		}
	}
	return records
}

// SplitLines breaks text on every line boundary a plain-text extractor may
// emit: \n, \r\n, \r, vertical tab, form feed (PDF page breaks), the file,
// group and record separators, NEL, and the Unicode line and paragraph
// separators. A trailing boundary does not produce an empty final line.
func SplitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if i < start {
			continue
		}
		switch r {
		case '\n', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
			lines = append(lines, text[start:i])
			start = i + len(string(r))
		case '\r':
			lines = append(lines, text[start:i])
			start = i + 1
			if start < len(text) && text[start] == '\n' {
				start++
			}
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
