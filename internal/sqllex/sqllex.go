// Package sqllex holds the small amount of SQL text inspection the mapper
// needs: case-insensitive keyword search and reserved word detection.
// It is not a parser; string literals and comments are not recognized.
package sqllex

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// IndexFold returns the byte index of the first ASCII case-insensitive
// occurrence of keyword in s, or -1. keyword must be ASCII.
func IndexFold(s, keyword string) int {
	n := len(keyword)
	if n == 0 {
		return 0
	}
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], keyword) {
			return i
		}
	}
	return -1
}

// ContainsFold reports whether keyword occurs in s ignoring ASCII case.
func ContainsFold(s, keyword string) bool {
	return IndexFold(s, keyword) >= 0
}

// TrimLeading strips leading whitespace.
func TrimLeading(s string) string {
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

// HasKeywordPrefix reports whether s, after leading whitespace, starts with
// keyword (case-insensitive) followed by a non-identifier rune or the end.
func HasKeywordPrefix(s, keyword string) bool {
	s = TrimLeading(s)
	if len(s) < len(keyword) || !strings.EqualFold(s[:len(keyword)], keyword) {
		return false
	}
	if len(s) == len(keyword) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[len(keyword):])
	return !isIdentRune(r)
}

// IsSelect reports whether the statement text begins with SELECT.
func IsSelect(s string) bool {
	return HasKeywordPrefix(s, "select")
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
