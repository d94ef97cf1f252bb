// Package textnorm holds the single ASCII policy applied to every outgoing text.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ASCII folds accented letters to their base form and drops whatever is still
// outside 7-bit ASCII (pictographs, superscripts, box drawing). Newlines and
// tabs survive; other control characters are removed.
func ASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r == '\r':
		case r < 0x20 || r > 0x7e:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Key folds s for case- and accent-insensitive comparisons of header names.
func Key(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(ASCII(s)), " "))
}
