package resolve

import (
	"strings"
	"unicode"
)

// NormalizeTRN reduces a stated registry identifier to digits only, dropping
// separators and stray characters users paste in ("RP 12/34567" -> "1234567").
func NormalizeTRN(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeNINumber upper-cases a National Insurance number and strips all
// whitespace ("qq 12 34 56 c" -> "QQ123456C").
func NormalizeNINumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
