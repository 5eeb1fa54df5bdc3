package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes a name for duplicate detection: trims and collapses
// whitespace, strips combining marks (so accents don't distinguish entries),
// and lowercases. Pure and deterministic; never shown to users.
func Normalize(name string) string {
	s := strings.TrimSpace(name)
	s = strings.Join(strings.Fields(s), " ")

	// NFD exposes combining marks, Remove(Mn) drops them, NFC recomposes.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}

	return strings.ToLower(s)
}

// CapitalizeWord upper-cases the first rune and lower-cases the rest.
func CapitalizeWord(w string) string {
	rs := []rune(strings.ToLower(w))
	if len(rs) == 0 {
		return ""
	}
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}
