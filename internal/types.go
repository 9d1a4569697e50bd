package internal

import (
	"fmt"
	"strings"
	"time"
)

// PostKind identifies the flavor of an Instagram post URL.
type PostKind int

const (
	KindPost PostKind = iota
	KindReel
	KindStory
	KindTV
)

// String returns the string representation of PostKind
func (k PostKind) String() string {
	switch k {
	case KindPost:
		return "post"
	case KindReel:
		return "reel"
	case KindStory:
		return "story"
	case KindTV:
		return "tv"
	default:
		return "unknown"
	}
}

// PostReference is the immutable identity extracted from a post URL.
// It is derived exactly once per resolution attempt.
type PostReference struct {
	Shortcode   string
	Kind        PostKind
	OriginalURL string
}

// PageURL returns the canonical desktop page URL for the referenced post.
func (r *PostReference) PageURL() string {
	switch r.Kind {
	case KindReel:
		return fmt.Sprintf("https://www.instagram.com/reel/%s/", r.Shortcode)
	case KindTV:
		return fmt.Sprintf("https://www.instagram.com/tv/%s/", r.Shortcode)
	default:
		return fmt.Sprintf("https://www.instagram.com/p/%s/", r.Shortcode)
	}
}

// Session is account-scoped authentication state persisted between
// resolution attempts. Owned by the session store; strategies borrow a
// read-only view.
type Session struct {
	AccountID string            `json:"account_id"`
	Cookies   map[string]string `json:"cookies"`
	RawBlob   []byte            `json:"raw_blob,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Cookie returns the named cookie value or an empty string.
func (s *Session) Cookie(name string) string {
	if s == nil || s.Cookies == nil {
		return ""
	}
	return s.Cookies[name]
}

// CookieHeader renders the session cookies as a Cookie request header value.
func (s *Session) CookieHeader() string {
	if s == nil || len(s.Cookies) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(s.Cookies))
	for name, value := range s.Cookies {
		pairs = append(pairs, fmt.Sprintf("%s=%s", name, value))
	}
	return strings.Join(pairs, "; ")
}

// MediaKind distinguishes image and video candidates.
type MediaKind int

const (
	MediaImage MediaKind = iota
	MediaVideo
)

// String returns the string representation of MediaKind
func (k MediaKind) String() string {
	if k == MediaVideo {
		return "video"
	}
	return "image"
}

// MediaCandidate is a parsed, not-yet-downloaded reference to a single
// media asset. Priority carries the provider's own quality metadata
// (width*height) when the response exposes it; zero means insertion order.
type MediaCandidate struct {
	URL      string
	Kind     MediaKind
	Priority int
}

// Workspace is an isolated scratch directory for one resolution attempt.
// It is never reused and never shared between concurrent resolutions.
// Deleting it after the files have been consumed is the caller's job.
type Workspace struct {
	ID   string
	Path string
}

// ResolutionResult is the engine's total output shape. A success carries
// at least one real media file; a failure carries at least one
// human-readable diagnostic file. Ownership of the files (and of the
// workspace directory) transfers to the caller.
type ResolutionResult struct {
	Files        []string
	StrategyUsed string
	Workspace    *Workspace
	Failed       bool
	FailureKind  ErrorKind
}

// Success reports whether the result carries real media files.
func (r *ResolutionResult) Success() bool {
	return !r.Failed
}
