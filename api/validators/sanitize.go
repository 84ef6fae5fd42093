package validators

import (
	"strings"
	"unicode/utf8"
)

// CleanText trims s, folds internal whitespace runs to a single space and
// keeps at most maxRunes runes. maxRunes <= 0 disables the cut.
func CleanText(s string, maxRunes int) string {
	cleaned := strings.Join(strings.Fields(s), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	runes := []rune(cleaned)
	return strings.TrimSpace(string(runes[:maxRunes]))
}

// CleanTextPtr applies CleanText to an optional field.
func CleanTextPtr(s *string, maxRunes int) *string {
	if s == nil {
		return nil
	}
	cleaned := CleanText(*s, maxRunes)
	return &cleaned
}
