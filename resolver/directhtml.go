package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"instafetch/internal"
	"instafetch/utils"
)

// legacyShortcodeLength is the cutoff below which a shortcode is treated
// as old-format. Posts with such identifiers predate the current CDN and
// are de-listed, so no network call can recover them.
const legacyShortcodeLength = 9

var (
	sharedDataPattern     = regexp.MustCompile(`window\._sharedData\s*=\s*(\{.*\});?\s*$`)
	additionalDataPattern = regexp.MustCompile(`window\.__additionalDataLoaded\s*\([^,]+,\s*(\{.*\})\s*\);?\s*$`)
)

// DirectHTMLStrategy fetches the raw post page over plain HTTP and works
// through every embedded-data format Instagram has shipped: the legacy
// _sharedData blob, the __additionalDataLoaded blob, raw regex
// extraction of media fields and CDN links, the public oEmbed thumbnail,
// and finally a direct GraphQL call by shortcode. All candidate URLs
// found across the passes are deduplicated before download.
type DirectHTMLStrategy struct {
	cfg      *internal.Config
	sessions internal.SessionStore
	fetcher  *Fetcher
	client   *utils.HTTPClient
	sigs     *ExtractionSignatures
	fileOps  *utils.FileOperations

	baseURL   string
	oembedURL string
}

// NewDirectHTMLStrategy creates the direct-HTML heuristic strategy.
func NewDirectHTMLStrategy(cfg *internal.Config, sessions internal.SessionStore, fetcher *Fetcher, client *utils.HTTPClient, sigs *ExtractionSignatures) *DirectHTMLStrategy {
	return &DirectHTMLStrategy{
		cfg:       cfg,
		sessions:  sessions,
		fetcher:   fetcher,
		client:    client,
		sigs:      sigs,
		fileOps:   utils.NewFileOperations(),
		baseURL:   "https://www.instagram.com",
		oembedURL: "https://api.instagram.com/oembed/",
	}
}

// Name implements the Strategy interface
func (s *DirectHTMLStrategy) Name() string {
	return "direct-html"
}

// Resolve implements the Strategy interface
func (s *DirectHTMLStrategy) Resolve(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
	// Old-format shortcodes belong to de-listed legacy content; answer
	// immediately without touching the network.
	if ref.Kind != internal.KindStory && len(ref.Shortcode) < legacyShortcodeLength {
		internal.LogInfo("Detected old shortcode format: %s", ref.Shortcode)
		path := filepath.Join(ws.Path, "instagram_archived_post.txt")
		content := fmt.Sprintf("Instagram post %s is too old and no longer available.", ref.Shortcode)
		if err := s.fileOps.WriteTextFile(path, content); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	session, _ := s.sessions.Load(s.cfg.AccountUsername)

	page, err := s.fetchPage(ctx, ref, session)
	if err != nil {
		return nil, err
	}

	candidates := s.extractEmbedded(page)
	if len(candidates) == 0 {
		candidates = candidatesFromRawHTML(page)
		if len(candidates) > 0 {
			internal.LogInfo("Found %d media URLs from regex matching", len(candidates))
		}
	}
	if len(candidates) == 0 {
		candidates = s.tryOEmbed(ctx, ref)
	}
	if len(candidates) == 0 {
		candidates = s.tryGraphQL(ctx, ref, session)
	}

	if len(candidates) == 0 {
		// The post probably no longer exists; deliver an explanation.
		path := filepath.Join(ws.Path, "post_unavailable.txt")
		content := fmt.Sprintf("Sorry, the Instagram post %s is no longer available or may have been deleted.", ref.Shortcode)
		if err := s.fileOps.WriteTextFile(path, content); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	files := s.fetcher.FetchAll(ctx, &FetchRequest{
		Candidates: candidates,
		Workspace:  ws,
		Session:    session,
		Prefix:     "instagram_media",
	})
	if len(files) > 0 {
		return files, nil
	}

	// Candidates were found but every transfer failed.
	path := filepath.Join(ws.Path, "download_failed.txt")
	content := fmt.Sprintf("Failed to download content from %s. The post may be private, deleted, or unavailable.", ref.OriginalURL)
	if err := s.fileOps.WriteTextFile(path, content); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func (s *DirectHTMLStrategy) fetchPage(ctx context.Context, ref *internal.PostReference, session *internal.Session) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	pageURL := fmt.Sprintf("%s/p/%s/", s.baseURL, ref.Shortcode)
	resp, err := s.client.Get(reqCtx, pageURL, session, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", internal.NewNotFoundError(pageURL)
	}
	if resp.StatusCode != http.StatusOK {
		return "", internal.NewResolutionError(internal.ErrNoResult,
			fmt.Sprintf("post page returned %d", resp.StatusCode)).WithStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", internal.NewTransientNetworkError("page fetch", err)
	}

	page := string(body)
	if strings.Contains(page, "Page Not Found") {
		return "", internal.NewNotFoundError(pageURL)
	}
	return page, nil
}

// extractEmbedded walks the page's script tags looking for the two known
// embedded JSON formats.
func (s *DirectHTMLStrategy) extractEmbedded(page string) []internal.MediaCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var candidates []internal.MediaCandidate
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		text := strings.TrimSpace(script.Text())

		if match := sharedDataPattern.FindStringSubmatch(text); match != nil {
			var shared struct {
				EntryData struct {
					PostPage []struct {
						Graphql struct {
							ShortcodeMedia shortcodeMedia `json:"shortcode_media"`
						} `json:"graphql"`
					} `json:"PostPage"`
				} `json:"entry_data"`
			}
			if err := json.Unmarshal([]byte(match[1]), &shared); err == nil && len(shared.EntryData.PostPage) > 0 {
				candidates = shared.EntryData.PostPage[0].Graphql.ShortcodeMedia.candidates()
				if len(candidates) > 0 {
					internal.LogInfo("Found %d media URLs from embedded shared data", len(candidates))
					return false
				}
			}
		}

		if match := additionalDataPattern.FindStringSubmatch(text); match != nil {
			var additional struct {
				Graphql struct {
					ShortcodeMedia shortcodeMedia `json:"shortcode_media"`
				} `json:"graphql"`
			}
			if err := json.Unmarshal([]byte(match[1]), &additional); err == nil {
				candidates = additional.Graphql.ShortcodeMedia.candidates()
				if len(candidates) > 0 {
					internal.LogInfo("Found %d media URLs from additional data blob", len(candidates))
					return false
				}
			}
		}

		return true
	})

	return candidates
}

// tryOEmbed asks the public oEmbed endpoint for a thumbnail. Thumbnail
// only; it is the weakest source and used just before GraphQL.
func (s *DirectHTMLStrategy) tryOEmbed(ctx context.Context, ref *internal.PostReference) []internal.MediaCandidate {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := s.client.Get(reqCtx, s.oembedURL+"?url="+url.QueryEscape(ref.PageURL()), nil, nil)
	if err != nil {
		internal.LogWarn("oEmbed lookup failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var doc struct {
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil || doc.ThumbnailURL == "" {
		return nil
	}

	internal.LogInfo("Found thumbnail URL from oEmbed endpoint")
	return []internal.MediaCandidate{{URL: doc.ThumbnailURL, Kind: internal.MediaImage}}
}

// tryGraphQL issues a single GraphQL lookup by shortcode with the
// top-ranked query signature.
func (s *DirectHTMLStrategy) tryGraphQL(ctx context.Context, ref *internal.PostReference, session *internal.Session) []internal.MediaCandidate {
	if len(s.sigs.GraphQLQueryHashes) == 0 {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	variables, _ := json.Marshal(map[string]string{"shortcode": ref.Shortcode})
	queryURL := fmt.Sprintf("%s/graphql/query/?query_hash=%s&variables=%s",
		s.baseURL, s.sigs.GraphQLQueryHashes[0], url.QueryEscape(string(variables)))

	resp, err := s.client.Get(reqCtx, queryURL, session, map[string]string{"Accept": "application/json"})
	if err != nil {
		internal.LogWarn("GraphQL fallback failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var doc struct {
		Data struct {
			ShortcodeMedia *shortcodeMedia `json:"shortcode_media"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil || doc.Data.ShortcodeMedia == nil {
		return nil
	}

	candidates := doc.Data.ShortcodeMedia.candidates()
	internal.LogInfo("Found %d media URLs from GraphQL fallback", len(candidates))
	return candidates
}
