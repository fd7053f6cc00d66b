package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// CleanName normalizes a raw ingredient line for display and storage.
func CleanName(raw string) string {
	s := norm.NFKC.String(raw)
	s = width.Fold.String(s)
	return collapseSpace(s)
}

// FoldName returns the case-folded comparison key for a name.
// A Caser is stateful, so one is created per call.
func FoldName(name string) string {
	return cases.Fold().String(CleanName(name))
}

// SanitizeToken converts a string to a lowercase identifier-safe token.
// Letters and digits are kept, hyphens and underscores pass through, every
// other run becomes a single hyphen. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = FoldName(value)
	var b strings.Builder
	lastDash := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-_")
	if out == "" {
		return "unknown"
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
