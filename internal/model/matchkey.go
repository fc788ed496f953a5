package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds case, applies NFKC and collapses whitespace.
func NormalizeName(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s) // Caser is stateful, one per call
	return strings.Join(strings.Fields(s), " ")
}

// NormalizePhone keeps digits only.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchKey identifies the same real-world dog across legacy and split records:
// normalized name + normalized owner name + owner phone digits.
func MatchKey(name, owner, phone string) string {
	return NormalizeName(name) + "|" + NormalizeName(owner) + "|" + NormalizePhone(phone)
}
