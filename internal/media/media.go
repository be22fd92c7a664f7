// Package media validates source URLs and derives the canonical media ID
// used as the dedup/cache key.
package media

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/reelsong/reelsong-api/internal/domain"
)

// supportedPatterns are the URL shapes the pipeline can handle: posts, reels
// and stories, with or without a username path segment.
var supportedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^https?://(www\.)?instagram\.com/(p|reel|reels|stories)/[\w-]+`),
	regexp.MustCompile(`(?i)^https?://(www\.)?instagram\.com/[\w.]+/(p|reel)/[\w-]+`),
}

// unsupportedPatterns are shapes that superficially look valid but cannot be
// downloaded (audio pages, explore feeds, account settings).
var unsupportedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/reels/audio/`),
	regexp.MustCompile(`/explore/`),
	regexp.MustCompile(`/accounts/`),
}

// mediaIDPatterns capture the canonical media ID: the shortcode after
// /p/, /reel/ or /reels/, or the numeric story ID.
var mediaIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`instagram\.com/(?:p|reel|reels)/([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`instagram\.com/stories/[^/]+/(\d+)`),
}

// ValidateURL checks that the given URL is a supported media URL.
// Returns a PipelineError of kind INVALID_URL otherwise, so submission
// failures carry the same taxonomy as pipeline failures.
func ValidateURL(rawURL string) error {
	for _, p := range unsupportedPatterns {
		if p.MatchString(rawURL) {
			return domain.NewPipelineError(
				domain.ErrorKindInvalidURL,
				"This URL type is not supported. Please provide a direct post, reel or story URL.",
			)
		}
	}

	for _, p := range supportedPatterns {
		if p.MatchString(rawURL) {
			return nil
		}
	}

	return domain.NewPipelineError(
		domain.ErrorKindInvalidURL,
		"Invalid URL. Please provide a valid Instagram Reel, Post, or Story URL.",
	)
}

// CanonicalID extracts the stable media identifier from a URL. When no known
// pattern matches, it falls back to a name-based UUID of the URL itself so
// every URL still maps to a deterministic dedup key.
func CanonicalID(rawURL string) string {
	for _, p := range mediaIDPatterns {
		if m := p.FindStringSubmatch(rawURL); m != nil {
			return m[1]
		}
	}

	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(rawURL)).String()
}
