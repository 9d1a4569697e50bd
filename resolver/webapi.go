package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"

	"instafetch/internal"
	"instafetch/utils"
)

// PrivateAPIStrategy drives Instagram's internal JSON endpoints
// directly: the REST-shaped media-info endpoint first, then the ranked
// GraphQL query signatures, reusing session cookies and falling back to
// a password re-login when reuse fails. If every endpoint is rejected,
// it scrapes CDN links from the public HTML with a clean session, and
// as a last resort writes a diagnostic citing authentication blocking.
type PrivateAPIStrategy struct {
	cfg      *internal.Config
	sessions internal.SessionStore
	fetcher  *Fetcher
	client   *utils.HTTPClient
	sigs     *ExtractionSignatures
	fileOps  *utils.FileOperations

	apiBaseURL string
	webBaseURL string
}

// NewPrivateAPIStrategy creates the raw private-API strategy.
func NewPrivateAPIStrategy(cfg *internal.Config, sessions internal.SessionStore, fetcher *Fetcher, client *utils.HTTPClient, sigs *ExtractionSignatures) *PrivateAPIStrategy {
	return &PrivateAPIStrategy{
		cfg:        cfg,
		sessions:   sessions,
		fetcher:    fetcher,
		client:     client,
		sigs:       sigs,
		fileOps:    utils.NewFileOperations(),
		apiBaseURL: "https://i.instagram.com",
		webBaseURL: "https://www.instagram.com",
	}
}

// Name implements the Strategy interface
func (s *PrivateAPIStrategy) Name() string {
	return "private-api"
}

// Resolve implements the Strategy interface
func (s *PrivateAPIStrategy) Resolve(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
	session, _ := s.sessions.Load(s.cfg.AccountUsername)
	if session == nil && s.cfg.HasCredentials() {
		var err error
		session, err = s.sessions.Login(ctx, s.cfg.AccountUsername, s.cfg.AccountPassword)
		if err != nil {
			internal.LogWarn("Web API login failed, continuing anonymously: %v", err)
		}
	}

	blocked := false

	// First approach: the REST-shaped media-info endpoint.
	files, err := s.tryMediaInfo(ctx, ref, ws, session)
	if len(files) > 0 {
		return files, nil
	}
	if internal.IsAuthBlocked(err) {
		blocked = true
		if session != nil {
			s.sessions.Invalidate(session.AccountID)
			session = nil
		}
	}

	// Second approach: the known GraphQL query signatures, in rank order.
	for _, queryHash := range s.sigs.GraphQLQueryHashes {
		files, err = s.tryGraphQL(ctx, ref, ws, session, queryHash)
		if len(files) > 0 {
			return files, nil
		}
		if internal.IsAuthBlocked(err) {
			blocked = true
		}
	}

	// Third approach: public HTML with a completely clean session.
	files = s.tryPublicHTML(ctx, ref, ws)
	if len(files) > 0 {
		return files, nil
	}

	// Nothing worked. Explain the most likely cause in a deliverable file.
	path := filepath.Join(ws.Path, "instagram_auth_error.txt")
	content := fmt.Sprintf("Failed to download Instagram post %s due to authentication errors (HTTP 401). Instagram is blocking access to this content.", ref.Shortcode)
	if !blocked {
		path = filepath.Join(ws.Path, "instagram_error.txt")
		content = fmt.Sprintf("Instagram's API endpoints returned no media for post %s. The post may be private, deleted, or unavailable.", ref.Shortcode)
	}
	if err := s.fileOps.WriteTextFile(path, content); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func (s *PrivateAPIStrategy) tryMediaInfo(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace, session *internal.Session) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	infoURL := fmt.Sprintf("%s/api/v1/media/%s/info/", s.apiBaseURL, ref.Shortcode)
	resp, err := s.client.Get(reqCtx, infoURL, session, map[string]string{
		"Accept":           "application/json",
		"X-Requested-With": "XMLHttpRequest",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, internal.NewAuthBlockedError(resp.StatusCode, "media-info endpoint rejected").WithURL(infoURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, internal.NewResolutionError(internal.ErrNoResult,
			fmt.Sprintf("media-info endpoint returned %d", resp.StatusCode)).WithStatus(resp.StatusCode)
	}

	var doc struct {
		Items []apiMediaItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil || len(doc.Items) == 0 {
		return nil, nil
	}

	candidates := doc.Items[0].candidates()
	internal.LogInfo("Found %d media URLs from media-info endpoint", len(candidates))
	if len(candidates) == 0 {
		return nil, nil
	}

	return s.fetcher.FetchAll(ctx, &FetchRequest{
		Candidates: candidates,
		Workspace:  ws,
		Session:    session,
		Prefix:     "instagram_media",
	}), nil
}

func (s *PrivateAPIStrategy) tryGraphQL(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace, session *internal.Session, queryHash string) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	variables, _ := json.Marshal(map[string]string{"shortcode": ref.Shortcode})
	queryURL := fmt.Sprintf("%s/graphql/query/?query_hash=%s&variables=%s",
		s.webBaseURL, queryHash, url.QueryEscape(string(variables)))

	resp, err := s.client.Get(reqCtx, queryURL, session, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, internal.NewAuthBlockedError(resp.StatusCode,
			fmt.Sprintf("GraphQL query %s rejected", queryHash))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var doc struct {
		Data struct {
			Media          *shortcodeMedia `json:"media"`
			ShortcodeMedia *shortcodeMedia `json:"shortcode_media"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, nil
	}

	media := doc.Data.Media
	if media == nil {
		media = doc.Data.ShortcodeMedia
	}
	if media == nil {
		return nil, nil
	}

	candidates := media.candidates()
	internal.LogInfo("Found %d media URLs from GraphQL query %s", len(candidates), queryHash)
	if len(candidates) == 0 {
		return nil, nil
	}

	return s.fetcher.FetchAll(ctx, &FetchRequest{
		Candidates: candidates,
		Workspace:  ws,
		Session:    session,
		Prefix:     "instagram_media",
	}), nil
}

// tryPublicHTML visits the post as a plain anonymous visitor and
// harvests CDN-hosted file links by regex. Capped at the first five
// matches; public pages repeat the same asset at several sizes.
func (s *PrivateAPIStrategy) tryPublicHTML(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) []string {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	clean := utils.NewHTTPClient()
	pageURL := fmt.Sprintf("%s/p/%s/", s.webBaseURL, ref.Shortcode)
	resp, err := clean.Get(reqCtx, pageURL, nil, nil)
	if err != nil {
		internal.LogWarn("Public page visit failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil
	}

	var candidates []internal.MediaCandidate
	for _, match := range cdnLinkPattern.FindAllString(string(body), -1) {
		kind := internal.MediaImage
		if inferExtension(match) == ".mp4" {
			kind = internal.MediaVideo
		}
		candidates = append(candidates, internal.MediaCandidate{URL: unescapeMediaURL(match), Kind: kind})
		if len(candidates) >= 5 {
			break
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	internal.LogInfo("Found %d media URLs from clean public visit", len(candidates))
	return s.fetcher.FetchAll(ctx, &FetchRequest{
		Candidates: candidates,
		Workspace:  ws,
		Prefix:     "instagram_public",
	})
}
