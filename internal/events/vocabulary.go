package events

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Order matters: a line is labelled with the first term in this list that it
// contains, not the first term that occurs in the line.
var vocabulary = []string{
	"loading",
	"discharging",
	"anchorage",
	"berthing",
	"unberthing",
	"shifting",
	"arrival",
	"arrived",
	"departure",
	"departed",
	"sailing",
	"bunkering",
	"weather",
	"nor",
	"notice of readiness",
	"draft survey",
	"customs",
	"immigration",
	"hatch",
	"stop",
	"resume",
	"suspension",
	"cargo operations",
	"ballast",
}

type keyword struct {
	term  string
	label string
}

var keywords = buildKeywords(vocabulary)

// buildKeywords title-cases every term once so the lookup path never touches
// a cases.Caser, which is not safe for concurrent use.
func buildKeywords(terms []string) []keyword {
	caser := cases.Title(language.English)
	out := make([]keyword, 0, len(terms))
	for _, t := range terms {
		out = append(out, keyword{term: t, label: caser.String(t)})
	}
	return out
}

// Vocabulary returns a copy of the event terms in match-precedence order.
func Vocabulary() []string {
	out := make([]string, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// matchKeyword returns the title-cased label of the first vocabulary term
// found in line, case-insensitively.
func matchKeyword(line string) (string, bool) {
	low := strings.ToLower(line)
	for _, k := range keywords {
		if strings.Contains(low, k.term) {
			return k.label, true
		}
	}
	return "", false
}
