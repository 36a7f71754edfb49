package utils

import "strings"

// Truncate shortens content to at most maxLen runes, appending "..." when cut.
func Truncate(content string, maxLen int) string {
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen]) + "..."
}

func Truncate80(content string) string {
	return Truncate(content, 80)
}

// NormalizeWhitespace collapses runs of whitespace to a single space and
// trims the result, so two answers that differ only in formatting compare
// equal.
func NormalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
