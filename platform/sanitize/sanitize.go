// Package sanitize provides text sanitization utilities for user-provided
// free text (SPICED notes, override reasons, trigger events).
package sanitize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text strips HTML, applies Unicode NFC normalisation and collapses runs of
// horizontal whitespace. Newlines are preserved.
func Text(s string) string {
	result := norm.NFC.String(StripHTML(s))
	result = whitespaceRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// TextPtr is a helper for optional string pointers
func TextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	result := Text(*s)
	return &result
}

// IsBlank reports whether s has no visible content after sanitising.
func IsBlank(s string) bool {
	return Text(s) == ""
}
