package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips combining marks after NFD decomposition, turning
// "Électricité" into "Electricite".
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// LabelKey normalizes a label for case- and accent-insensitive matching:
// trimmed, accent-folded, lower-cased, inner whitespace collapsed. All
// scoped uniqueness on catalog and structural names applies to this key.
func LabelKey(label string) string {
	s := strings.TrimSpace(label)
	if s == "" {
		return ""
	}
	if folded, _, err := transform.String(foldTransformer, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
