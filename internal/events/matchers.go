package events

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	// 07:30, 7:30, 07:30:15
	timeRe = regexp.MustCompile(`\b(?:[01]?\d|2[0-3]):[0-5]\d(?::[0-5]\d)?\b`)
	// 21/08/2025, 21-08-25, 21 Aug 2025; Word and PDF text often put a
	// no-break space between the parts of a spelled-out date.
	dateRe = regexp.MustCompile(`(?i)\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{1,2}[\s\p{Zs}]+[A-Za-z]{3,}[\s\p{Zs}]+\d{2,4})\b`)
)

// Tried in order; the first layout that parses wins. Go's month-name
// matching is case-insensitive and "2006" requires exactly four digits.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2/1/06",
	"2-1-06",
	"2 Jan 2006",
	"2 January 2006",
}

const isoDate = "2006-01-02"

// findDate returns the ISO form of the first date-shaped substring of line,
// or false when there is none or it does not parse.
func findDate(line string) (string, bool) {
	for _, loc := range dateRe.FindAllStringIndex(line, -1) {
		if wordBoundary(line, loc[0], loc[1]) {
			return normalizeDate(line[loc[0]:loc[1]])
		}
	}
	return "", false
}

func normalizeDate(s string) (string, bool) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(isoDate), true
		}
	}
	return "", false
}

// findTimes returns every time-shaped token of line. A token glued to a
// letter or digit outside ASCII ("08:00é") is not a time; "07:30:15é"
// still yields "07:30".
func findTimes(line string) []string {
	var out []string
	for _, loc := range timeRe.FindAllStringIndex(line, -1) {
		start, end := loc[0], loc[1]
		if isWordRune(runeBefore(line, start)) {
			continue
		}
		if isWordRune(runeAt(line, end)) {
			m := line[start:end]
			if strings.Count(m, ":") != 2 {
				continue
			}
			end = start + strings.LastIndexByte(m, ':')
		}
		out = append(out, line[start:end])
	}
	return out
}

// wordBoundary reports whether s[start:end] is bounded by non-word runes,
// counting letters and digits of every script as word runes. regexp's \b
// only knows ASCII.
func wordBoundary(s string, start, end int) bool {
	return !isWordRune(runeBefore(s, start)) && !isWordRune(runeAt(s, end))
}

func runeBefore(s string, i int) rune {
	if i <= 0 {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return r
}

func runeAt(s string, i int) rune {
	if i >= len(s) {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
