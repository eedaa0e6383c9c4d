// Package textnorm folds Polish text into a comparable form and measures
// word-level similarity between normalized strings.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ł has no decomposition, so NFD mark removal cannot reach it.
var strokeReplacer = strings.NewReplacer("ł", "l", "Ł", "L")

// Fold lowercases s and maps Polish diacritics to their base Latin letters
// (ą→a, ć→c, ę→e, ł→l, ń→n, ó→o, ś→s, ź→z, ż→z).
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strokeReplacer.Replace(s))
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Words splits folded text into its set of words. Punctuation separates words.
func Words(s string) map[string]struct{} {
	fields := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B| over the word sets of a and b.
// Identical normalized strings score 1.0. Two empty inputs score 0.
func Jaccard(a, b string) float64 {
	if Fold(strings.TrimSpace(a)) == Fold(strings.TrimSpace(b)) && strings.TrimSpace(a) != "" {
		return 1.0
	}
	wa, wb := Words(a), Words(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}
