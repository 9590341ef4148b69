package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// HeaderName turns a sheet header cell into a column name:
// "  Principal O/S Amt " -> "principal_o/s_amt". Accents are folded and the
// "unnamed:" prefix that some exporters emit for blank headers is dropped.
func HeaderName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = stripDiacritics(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "unnamed:", "")
	return s
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
