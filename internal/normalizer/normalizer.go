package normalizer

import (
	"html"
	"regexp"
	"strings"
)

var (
	punctRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	leadingThe = regexp.MustCompile(`^the\b`)
	spaceRegex = regexp.MustCompile(`\s{2,}`)
)

// Normalize maps a raw metadata string to its canonical matching key. Two
// strings that normalize to the same key are treated as the same entity when
// joining library records against the remote catalog.
//
// The steps, in order: lowercase, entity decode (&amp; -> &), strip
// punctuation and symbols, strip a leading whole-word "the", trim, collapse
// whitespace runs. Every step is total; the empty string is a valid result.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	s = html.UnescapeString(s)
	s = punctRegex.ReplaceAllString(s, "")
	// Whole word only: "theatre" keeps its "the".
	s = leadingThe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = spaceRegex.ReplaceAllString(s, " ")
	return s
}
