package imagefinder

import (
	"net/url"
	"strings"
)

// Substrings that mark an image URL as chrome, tracking, or placeholder
// junk. Matched case-insensitively against the whole URL; no network call
// is ever made for a match.
var blacklistKeywords = []string{
	"placeholder",
	"thumbnail-placeholder",
	// UI components
	"icon",
	"logo",
	"button",
	"sprite",
	"avatar",
	"gravatar",
	"favicon",
	"badge",
	// Tracking pixels and spacers
	"1x1",
	"pixel",
	"tracking",
	"spacer",
	"blank",
	"transparent",
	// Social media buttons
	"share-button",
	"facebook-icon",
	"twitter-icon",
	"social-icon",
	// Ads and promotional
	"ad-banner",
	"advertisement",
	"promo",
	// Loading chrome
	"spinner",
	"loader",
	"loading",
}

// Vector and non-photographic formats are never usable as a featured image.
var blacklistExtensions = []string{
	".svg",
	".ico",
	".cur",
	".eps",
	".pdf",
}

// blacklisted reports whether the image URL matches a junk pattern, and the
// matched pattern for the rejection reason.
func blacklisted(imageURL string) (string, bool) {
	lower := strings.ToLower(imageURL)

	pathOnly := lower
	if u, err := url.Parse(lower); err == nil && u.Path != "" {
		pathOnly = u.Path
	}
	for _, ext := range blacklistExtensions {
		if strings.HasSuffix(pathOnly, ext) {
			return ext, true
		}
	}

	for _, keyword := range blacklistKeywords {
		if strings.Contains(lower, keyword) {
			return keyword, true
		}
	}
	return "", false
}
