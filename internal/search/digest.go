// Package search builds the normalized text blob stored alongside each
// article for substring search.
package search

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// contentPrefixLen caps how much article content contributes to the digest.
const contentPrefixLen = 1000

// Pre-compiled regular expressions for tag stripping.
var (
	scriptTag   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	allTags     = regexp.MustCompile(`<[^>]+>`)
	multiSpaces = regexp.MustCompile(`\s+`)
)

// BuildDigest concatenates title, summary and the first 1000 characters of
// content, strips HTML tags, collapses whitespace and lowercases the result.
// It is pure and deterministic: recomputing it for a stored article yields
// the stored digest.
func BuildDigest(title string, summary, content *string) string {
	var sb strings.Builder
	sb.WriteString(title)
	if summary != nil && *summary != "" {
		sb.WriteByte(' ')
		sb.WriteString(*summary)
	}
	if content != nil && *content != "" {
		sb.WriteByte(' ')
		sb.WriteString(runePrefix(*content, contentPrefixLen))
	}

	text := sb.String()
	text = scriptTag.ReplaceAllString(text, " ")
	text = styleTag.ReplaceAllString(text, " ")
	text = allTags.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = multiSpaces.ReplaceAllString(text, " ")

	return strings.ToLower(strings.TrimSpace(text))
}

// runePrefix truncates s to at most n runes, never splitting a multibyte
// sequence.
func runePrefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	end, count := 0, 0
	for end < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[end:])
		end += size
		count++
	}
	return s[:end]
}
