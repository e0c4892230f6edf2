package utils

import (
	"strings"
	"unicode"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeName folds a display name or alias into its search key:
// accents stripped, case folded, transliterated to ASCII, whitespace collapsed.
//
//	"  José  ÁLVAREZ " -> "jose alvarez"
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := folder.String(stripped)
	ascii := unidecode.Unidecode(folded)
	return strings.Join(strings.Fields(strings.ToLower(ascii)), " ")
}
