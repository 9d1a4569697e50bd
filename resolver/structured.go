package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"instafetch/internal"
	"instafetch/utils"
)

// StructuredStrategy requests the post's structured JSON document by
// shortcode, optionally after logging in and persisting the session.
// Authorization rejections are retried up to three times with
// exponential backoff starting at three seconds; on the first retry a
// clean anonymous client is tried as a parallel fallback before the
// backoff loop continues. Exhausted retries produce a diagnostic
// artifact instead of an error.
type StructuredStrategy struct {
	cfg      *internal.Config
	sessions internal.SessionStore
	fetcher  *Fetcher
	client   *utils.HTTPClient
	fileOps  *utils.FileOperations

	baseURL     string
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(time.Duration)
}

// NewStructuredStrategy creates the structured scraping strategy.
func NewStructuredStrategy(cfg *internal.Config, sessions internal.SessionStore, fetcher *Fetcher, client *utils.HTTPClient) *StructuredStrategy {
	return &StructuredStrategy{
		cfg:         cfg,
		sessions:    sessions,
		fetcher:     fetcher,
		client:      client,
		fileOps:     utils.NewFileOperations(),
		baseURL:     "https://www.instagram.com",
		maxAttempts: 3,
		baseDelay:   3 * time.Second,
		sleep:       time.Sleep,
	}
}

// Name implements the Strategy interface
func (s *StructuredStrategy) Name() string {
	return "structured"
}

// Resolve implements the Strategy interface
func (s *StructuredStrategy) Resolve(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
	session := s.loadOrLogin(ctx)

	delay := s.baseDelay
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		files, err := s.attempt(ctx, ref, ws, session, s.client)
		if len(files) > 0 {
			return files, nil
		}
		if err == nil {
			// Clean run, nothing found. Fall back to the next strategy.
			return nil, nil
		}

		if !internal.IsAuthBlocked(err) {
			return nil, err
		}

		internal.LogWarn("Structured fetch rejected with authorization failure (attempt %d/%d)", attempt, s.maxAttempts)

		if session != nil {
			// A rejected session is stale; never keep it around.
			s.sessions.Invalidate(session.AccountID)
			session = nil
		}

		if attempt == 1 {
			// One shot with a clean unauthenticated client before backing off.
			clean := utils.NewHTTPClient()
			if files, cleanErr := s.attempt(ctx, ref, ws, nil, clean); cleanErr == nil && len(files) > 0 {
				internal.LogInfo("Anonymous fallback succeeded for %s", ref.Shortcode)
				return files, nil
			}
		}

		if attempt < s.maxAttempts {
			internal.LogInfo("Retrying structured fetch in %s", delay)
			s.sleep(delay)
			delay *= 2
		}
	}

	// Retries exhausted: hand the caller an explanation instead of an error.
	path := filepath.Join(ws.Path, "instagram_error.txt")
	content := fmt.Sprintf("Instagram returned an authentication error (HTTP 401) for post %s. This post may require authentication or have access restrictions.", ref.Shortcode)
	if err := s.fileOps.WriteTextFile(path, content); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func (s *StructuredStrategy) loadOrLogin(ctx context.Context) *internal.Session {
	session, err := s.sessions.Load(s.cfg.AccountUsername)
	if err != nil {
		internal.LogWarn("Could not load session: %v", err)
	}
	if session != nil {
		return session
	}

	if !s.cfg.HasCredentials() {
		return nil
	}

	session, err = s.sessions.Login(ctx, s.cfg.AccountUsername, s.cfg.AccountPassword)
	if err != nil {
		internal.LogWarn("Login failed, continuing without authentication: %v", err)
		return nil
	}
	return session
}

func (s *StructuredStrategy) attempt(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace, session *internal.Session, client *utils.HTTPClient) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	docURL := fmt.Sprintf("%s/p/%s/?__a=1&__d=dis", s.baseURL, ref.Shortcode)
	resp, err := client.Get(reqCtx, docURL, session, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, internal.NewAuthBlockedError(resp.StatusCode, "structured document rejected").WithURL(docURL)
	case resp.StatusCode == http.StatusNotFound:
		return nil, internal.NewNotFoundError(ref.PageURL())
	case resp.StatusCode != http.StatusOK:
		return nil, internal.NewResolutionError(internal.ErrTransientNetwork,
			fmt.Sprintf("structured document returned %d", resp.StatusCode)).WithStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, internal.NewTransientNetworkError("structured document read", err)
	}

	candidates := parseStructuredDocument(body)
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

// parseStructuredDocument accepts both document shapes Instagram has
// served over time: graphql.shortcode_media and the items[] list.
func parseStructuredDocument(body []byte) []internal.MediaCandidate {
	var graphDoc struct {
		Graphql struct {
			ShortcodeMedia shortcodeMedia `json:"shortcode_media"`
		} `json:"graphql"`
	}
	if err := json.Unmarshal(body, &graphDoc); err == nil {
		if candidates := graphDoc.Graphql.ShortcodeMedia.candidates(); len(candidates) > 0 {
			return candidates
		}
	}

	var itemsDoc struct {
		Items []apiMediaItem `json:"items"`
	}
	if err := json.Unmarshal(body, &itemsDoc); err == nil && len(itemsDoc.Items) > 0 {
		return itemsDoc.Items[0].candidates()
	}

	return nil
}
