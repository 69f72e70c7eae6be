// Package sanitize cleans raw transcription text before it enters the
// transcript log.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// Non-speech annotations like "(music)" or "(laughs)".
	annotationRe = regexp.MustCompile(`\([^)]*\)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Filler tokens that carry no invoice-relevant content. Only a residue that
// is entirely one of these is discarded.
var fillers = map[string]struct{}{
	"um":     {},
	"uh":     {},
	"hmm":    {},
	"mhm":    {},
	"uh-huh": {},
	"okay":   {},
	"ok":     {},
	"yeah":   {},
	"yes":    {},
	"no":     {},
	"so":     {},
	"well":   {},
}

const punctuation = ".,!?;:-'\"` "

// Clean strips non-speech annotations and fillers from a raw transcription.
// An empty return value means the text should be discarded. Clean is pure
// and idempotent: Clean(Clean(x)) == Clean(x).
func Clean(raw string) string {
	s := annotationRe.ReplaceAllString(raw, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if len(s) < 2 {
		return ""
	}
	if strings.Trim(s, punctuation) == "" {
		return ""
	}
	if _, ok := fillers[strings.ToLower(strings.Trim(s, punctuation))]; ok {
		return ""
	}
	return s
}
