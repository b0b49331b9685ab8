package utils

import (
	"strings"
	"unicode"
)

// Sanitizer cleans user text. Clients render posts, boards and reports as plain text, so
// the text is stored as typed: nothing is escaped and nothing that looks like a tag is stripped.
type Sanitizer struct{}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// Text trims surrounding whitespace, folds CRLF to LF and drops control characters other
// than newline and tab.
func (s *Sanitizer) Text(input string) string {
	input = strings.ReplaceAll(input, "\r\n", "\n")
	out := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(out)
}
