package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"instafetch/internal"
)

// PostParser validates Instagram post URLs and extracts the shortcode
// and post kind. Parsing happens exactly once per resolution; a URL that
// matches no pattern fails fast before any strategy runs.
type PostParser struct {
	allowedHosts []string
	patterns     []postPattern
}

type postPattern struct {
	re   *regexp.Regexp
	kind internal.PostKind
}

// NewPostParser creates a parser with the known Instagram URL shapes.
func NewPostParser() *PostParser {
	return &PostParser{
		allowedHosts: []string{
			"instagram.com",
			"www.instagram.com",
			"m.instagram.com",
		},
		patterns: []postPattern{
			// Standard post: https://www.instagram.com/p/<shortcode>/
			{regexp.MustCompile(`^https?://(?:www\.|m\.)?instagram\.com/p/([A-Za-z0-9_-]+)/?(?:\?.*)?$`), internal.KindPost},

			// Reel: https://www.instagram.com/reel/<shortcode>/
			{regexp.MustCompile(`^https?://(?:www\.|m\.)?instagram\.com/reel/([A-Za-z0-9_-]+)/?(?:\?.*)?$`), internal.KindReel},

			// IGTV: https://www.instagram.com/tv/<shortcode>/
			{regexp.MustCompile(`^https?://(?:www\.|m\.)?instagram\.com/tv/([A-Za-z0-9_-]+)/?(?:\?.*)?$`), internal.KindTV},

			// Story: https://www.instagram.com/stories/<user>/<id>/
			{regexp.MustCompile(`^https?://(?:www\.|m\.)?instagram\.com/stories/[^/]+/([0-9]+)/?(?:\?.*)?$`), internal.KindStory},
		},
	}
}

// Validate checks that the URL is well-formed and points at Instagram.
func (p *PostParser) Validate(rawURL string) error {
	if rawURL == "" {
		return internal.NewInvalidURLError(rawURL, "URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return internal.NewInvalidURLError(rawURL, fmt.Sprintf("malformed URL: %v", err))
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return internal.NewInvalidURLError(rawURL, "URL must use http or https")
	}

	host := strings.ToLower(parsed.Hostname())
	for _, allowed := range p.allowedHosts {
		if host == allowed {
			return nil
		}
	}
	return internal.NewInvalidURLError(rawURL, fmt.Sprintf("unsupported host: %s", host))
}

// Parse extracts a PostReference from the URL. Returns an ErrInvalidURL
// fault when no pattern matches.
func (p *PostParser) Parse(rawURL string) (*internal.PostReference, error) {
	if err := p.Validate(rawURL); err != nil {
		return nil, err
	}

	for _, pattern := range p.patterns {
		matches := pattern.re.FindStringSubmatch(rawURL)
		if len(matches) > 1 {
			return &internal.PostReference{
				Shortcode:   matches[1],
				Kind:        pattern.kind,
				OriginalURL: rawURL,
			}, nil
		}
	}

	return nil, internal.NewInvalidURLError(rawURL, "no shortcode found in URL path")
}
