// Package slug derives filesystem- and URL-safe names for archived images.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnumRe = regexp.MustCompile("[^a-z0-9-]+")
	hyphenRe   = regexp.MustCompile("-+")
)

// Generate creates a URL-friendly slug from a string. Unicode letters are
// transliterated to their ASCII base form; everything else collapses to
// hyphens. Output is at most 80 characters.
func Generate(s string) string {
	if s == "" {
		return ""
	}

	s = transliterate(strings.ToLower(s))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = nonAlnumRe.ReplaceAllString(s, "")
	s = hyphenRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > 80 {
		s = strings.TrimRight(s[:80], "-")
	}
	return s
}

// FromImageURL derives a slug from the final path segment of an image URL,
// with query string and extension stripped.
func FromImageURL(rawURL string) string {
	parts := strings.Split(rawURL, "/")
	filename := parts[len(parts)-1]

	if idx := strings.Index(filename, "?"); idx != -1 {
		filename = filename[:idx]
	}
	if idx := strings.LastIndex(filename, "."); idx != -1 {
		filename = filename[:idx]
	}
	return Generate(filename)
}

// GenerateWithFallback generates a slug, falling back when the input
// produces nothing usable.
func GenerateWithFallback(s, fallback string) string {
	if out := Generate(s); out != "" {
		return out
	}
	return Generate(fallback)
}

// transliterate strips combining marks after NFD decomposition, turning
// "clichè" into "cliche".
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
