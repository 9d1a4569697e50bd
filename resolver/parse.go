package resolver

import (
	"regexp"
	"strings"

	"instafetch/internal"
)

// shortcodeMedia is the GraphQL media shape Instagram embeds in pages
// and returns from /graphql/query/. Both the structured and direct-HTML
// strategies parse into it.
type shortcodeMedia struct {
	ID         string `json:"id"`
	Shortcode  string `json:"shortcode"`
	IsVideo    bool   `json:"is_video"`
	DisplayURL string `json:"display_url"`
	VideoURL   string `json:"video_url"`
	Dimensions struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"dimensions"`
	EdgeSidecarToChildren struct {
		Edges []struct {
			Node shortcodeMedia `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

// candidates flattens the media (including carousel children) into
// download candidates, video first per item.
func (m *shortcodeMedia) candidates() []internal.MediaCandidate {
	var out []internal.MediaCandidate

	appendNode := func(node *shortcodeMedia) {
		priority := node.Dimensions.Width * node.Dimensions.Height
		if node.VideoURL != "" {
			out = append(out, internal.MediaCandidate{URL: node.VideoURL, Kind: internal.MediaVideo, Priority: priority})
		}
		if node.DisplayURL != "" && node.VideoURL == "" {
			out = append(out, internal.MediaCandidate{URL: node.DisplayURL, Kind: internal.MediaImage, Priority: priority})
		}
	}

	appendNode(m)
	for i := range m.EdgeSidecarToChildren.Edges {
		appendNode(&m.EdgeSidecarToChildren.Edges[i].Node)
	}
	return out
}

// mediaVersion is one quality variant in a private-API response.
type mediaVersion struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// apiMediaItem is the item shape of i.instagram.com's media-info endpoint.
type apiMediaItem struct {
	ID            string         `json:"id"`
	VideoVersions []mediaVersion `json:"video_versions"`
	ImageVersions struct {
		Candidates []mediaVersion `json:"candidates"`
	} `json:"image_versions2"`
	CarouselMedia []apiMediaItem `json:"carousel_media"`
}

// candidates picks the highest-resolution variant of each item,
// preferring video over the poster image, and recurses into carousels.
func (item *apiMediaItem) candidates() []internal.MediaCandidate {
	var out []internal.MediaCandidate

	if best := bestVersion(item.VideoVersions); best != nil {
		out = append(out, internal.MediaCandidate{
			URL:      best.URL,
			Kind:     internal.MediaVideo,
			Priority: best.Width * best.Height,
		})
	} else if best := bestVersion(item.ImageVersions.Candidates); best != nil {
		out = append(out, internal.MediaCandidate{
			URL:      best.URL,
			Kind:     internal.MediaImage,
			Priority: best.Width * best.Height,
		})
	}

	for i := range item.CarouselMedia {
		out = append(out, item.CarouselMedia[i].candidates()...)
	}
	return out
}

// bestVersion returns the variant with the largest width*height.
func bestVersion(versions []mediaVersion) *mediaVersion {
	var best *mediaVersion
	bestArea := -1
	for i := range versions {
		if versions[i].URL == "" {
			continue
		}
		area := versions[i].Width * versions[i].Height
		if area > bestArea {
			best = &versions[i]
			bestArea = area
		}
	}
	return best
}

var (
	displayURLPattern = regexp.MustCompile(`"display_url":"([^"]+)"`)
	videoURLPattern   = regexp.MustCompile(`"video_url":"([^"]+)"`)
	cdnLinkPattern    = regexp.MustCompile(`https://scontent[^"'\s\\]+\.(?:jpg|mp4|webp)[^"'\s\\]*`)
	carouselPattern   = regexp.MustCompile(`"carousel_media":\[(.*?)\]`)
)

// unescapeMediaURL decodes the JSON escaping Instagram applies to
// embedded media URLs.
func unescapeMediaURL(raw string) string {
	raw = strings.ReplaceAll(raw, `\u0026`, "&")
	return strings.ReplaceAll(raw, `\/`, "/")
}

// candidatesFromRawHTML runs the raw regex extraction pass over page
// markup: quoted display_url/video_url fields, literal CDN links, and
// the same fields inside carousel sub-blocks.
func candidatesFromRawHTML(content string) []internal.MediaCandidate {
	var out []internal.MediaCandidate

	for _, match := range videoURLPattern.FindAllStringSubmatch(content, -1) {
		out = append(out, internal.MediaCandidate{URL: unescapeMediaURL(match[1]), Kind: internal.MediaVideo})
	}
	for _, match := range displayURLPattern.FindAllStringSubmatch(content, -1) {
		out = append(out, internal.MediaCandidate{URL: unescapeMediaURL(match[1]), Kind: internal.MediaImage})
	}
	for _, match := range cdnLinkPattern.FindAllString(content, -1) {
		kind := internal.MediaImage
		if strings.Contains(strings.ToLower(match), ".mp4") {
			kind = internal.MediaVideo
		}
		out = append(out, internal.MediaCandidate{URL: unescapeMediaURL(match), Kind: kind})
	}

	for _, carousel := range carouselPattern.FindAllStringSubmatch(content, -1) {
		for _, match := range videoURLPattern.FindAllStringSubmatch(carousel[1], -1) {
			out = append(out, internal.MediaCandidate{URL: unescapeMediaURL(match[1]), Kind: internal.MediaVideo})
		}
		for _, match := range displayURLPattern.FindAllStringSubmatch(carousel[1], -1) {
			out = append(out, internal.MediaCandidate{URL: unescapeMediaURL(match[1]), Kind: internal.MediaImage})
		}
	}

	return out
}
