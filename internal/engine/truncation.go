package engine

import (
	"strings"
	"unicode/utf8"
)

const truncationMinRunes = 200

// '’' doubles as the apostrophe, so a trailing possessive ("the dogs’")
// counts as a complete ending.
var terminalRunes = []rune{'.', '!', '?', '"', '”', '»', '’'}

// IsLikelyTruncated reports whether text looks cut off mid-sentence.
// Short texts are never flagged.
func IsLikelyTruncated(text string) bool {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) <= truncationMinRunes {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(t)
	return !contains(terminalRunes, last)
}
