package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"instafetch/internal"
	"instafetch/utils"
)

// BrowserStrategy renders the post in a real Chrome instance. It is the
// most reliable extraction path because the page executes exactly as it
// would for a human visitor, and the slowest, which is why it runs
// first only when nothing cheaper is configured ahead of it. A full-page
// screenshot is captured on every visit and kept as a fallback artifact
// when no media can be harvested from the DOM.
type BrowserStrategy struct {
	cfg      *internal.Config
	sessions internal.SessionStore
	fetcher  *Fetcher
	sigs     *ExtractionSignatures
	fileOps  *utils.FileOperations

	headless bool
}

// NewBrowserStrategy creates the Chrome-rendering strategy.
func NewBrowserStrategy(cfg *internal.Config, sessions internal.SessionStore, fetcher *Fetcher, sigs *ExtractionSignatures) *BrowserStrategy {
	return &BrowserStrategy{
		cfg:      cfg,
		sessions: sessions,
		fetcher:  fetcher,
		sigs:     sigs,
		fileOps:  utils.NewFileOperations(),
		headless: true,
	}
}

// Name implements the Strategy interface
func (s *BrowserStrategy) Name() string {
	return "browser"
}

// Resolve implements the Strategy interface
func (s *BrowserStrategy) Resolve(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, s.cfg.PageLoadTimeout)
	defer cancelRun()

	session, _ := s.sessions.Load(s.cfg.AccountUsername)
	if session != nil {
		if err := s.injectCookies(runCtx, session); err != nil {
			internal.LogWarn("Could not inject session cookies: %v", err)
			session = nil
		}
	}
	if session == nil && s.cfg.HasCredentials() {
		var err error
		session, err = s.browserLogin(runCtx)
		if err != nil {
			internal.LogWarn("Browser login failed, continuing anonymously: %v", err)
		}
	}

	var pageTitle, pageHTML string
	var screenshot []byte
	err := chromedp.Run(runCtx,
		chromedp.Navigate(ref.PageURL()),
		chromedp.Sleep(5*time.Second),
		chromedp.Title(&pageTitle),
		chromedp.OuterHTML("html", &pageHTML),
		chromedp.FullScreenshot(&screenshot, 90),
	)
	if err != nil {
		return nil, internal.WrapResolutionError(internal.ErrTransientNetwork, "browser navigation failed", err)
	}

	// The screenshot is always kept; it is the proof of what the page showed.
	screenshotPath := filepath.Join(ws.Path, fmt.Sprintf("post_%s.png", ref.Shortcode))
	if err := os.WriteFile(screenshotPath, screenshot, 0644); err != nil {
		internal.LogWarn("Could not persist screenshot: %v", err)
		screenshotPath = ""
	}

	if isNotFoundTitle(pageTitle) {
		internal.LogInfo("Browser reached a not-found page for %s", ref.Shortcode)
		return s.writeNotFoundArtifacts(ws, ref, pageHTML, screenshotPath)
	}

	candidates := s.harvestMedia(pageHTML)
	if len(candidates) == 0 {
		candidates = candidatesFromRawHTML(pageHTML)
	}

	if len(candidates) > 0 {
		internal.LogInfo("Browser harvested %d media URLs for %s", len(candidates), ref.Shortcode)
		files := s.fetcher.FetchAll(ctx, &FetchRequest{
			Candidates: candidates,
			Workspace:  ws,
			Session:    session,
			Prefix:     "instagram_browser",
		})
		if len(files) > 0 {
			if screenshotPath != "" {
				files = append(files, screenshotPath)
			}
			return files, nil
		}
	}

	if screenshotPath != "" {
		internal.LogInfo("No media harvested, delivering the page screenshot for %s", ref.Shortcode)
		return []string{screenshotPath}, nil
	}
	return nil, nil
}

// browserLogin signs in through the real login form, typing the
// credentials character by character the way a person would. The
// resulting cookies are captured from the browser and persisted through
// the session store for the HTTP-based strategies to reuse.
func (s *BrowserStrategy) browserLogin(ctx context.Context) (*internal.Session, error) {
	err := chromedp.Run(ctx,
		chromedp.Navigate("https://www.instagram.com/accounts/login/"),
		chromedp.Sleep(3*time.Second),
		chromedp.WaitVisible(`input[name="username"]`, chromedp.ByQuery),
		slowType(`input[name="username"]`, s.cfg.AccountUsername),
		slowType(`input[name="password"]`, s.cfg.AccountPassword),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(6*time.Second),
	)
	if err != nil {
		return nil, internal.WrapResolutionError(internal.ErrAuthFailed, "browser login flow failed", err)
	}

	cookies := map[string]string{}
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		got, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range got {
			if strings.Contains(c.Domain, "instagram.com") {
				cookies[c.Name] = c.Value
			}
		}
		return nil
	}))
	if err != nil {
		return nil, internal.WrapResolutionError(internal.ErrAuthFailed, "could not read browser cookies", err)
	}

	if cookies["sessionid"] == "" {
		return nil, internal.NewAuthFailedError("browser login did not produce a session cookie")
	}

	session := &internal.Session{
		AccountID: s.cfg.AccountUsername,
		Cookies:   cookies,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sessions.Save(session); err != nil {
		internal.LogWarn("Could not persist browser session: %v", err)
	}
	return session, nil
}

// slowType sends one character at a time with a human-looking pace.
func slowType(selector, text string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := chromedp.Click(selector, chromedp.ByQuery).Do(ctx); err != nil {
			return err
		}
		for _, ch := range text {
			if err := chromedp.SendKeys(selector, string(ch), chromedp.ByQuery).Do(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(80 * time.Millisecond):
			}
		}
		return nil
	})
}

func (s *BrowserStrategy) injectCookies(ctx context.Context, session *internal.Session) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for name, value := range session.Cookies {
			err := network.SetCookie(name, value).
				WithDomain(".instagram.com").
				WithPath("/").
				WithSecure(true).
				Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

// harvestMedia pulls video and image sources out of the rendered DOM,
// keeping only assets served from a known CDN host.
func (s *BrowserStrategy) harvestMedia(pageHTML string) []internal.MediaCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}

	var out []internal.MediaCandidate

	doc.Find("video").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok && src != "" && !strings.HasPrefix(src, "blob:") {
			out = append(out, internal.MediaCandidate{URL: src, Kind: internal.MediaVideo})
		}
	})

	for _, selector := range s.sigs.ImageSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			src, ok := sel.Attr("src")
			if !ok || !s.sigs.MatchesCDN(src) {
				return
			}
			out = append(out, internal.MediaCandidate{URL: src, Kind: internal.MediaImage})
		})
		if len(out) > 0 {
			break
		}
	}

	return out
}

func isNotFoundTitle(title string) bool {
	lower := strings.ToLower(title)
	return strings.Contains(lower, "page not found") || strings.Contains(lower, "page isn't available")
}

// writeNotFoundArtifacts preserves everything the browser saw so the
// user can verify the post really is gone.
func (s *BrowserStrategy) writeNotFoundArtifacts(ws *internal.Workspace, ref *internal.PostReference, pageHTML, screenshotPath string) ([]string, error) {
	var files []string

	htmlPath := filepath.Join(ws.Path, "page_source.html")
	if err := s.fileOps.WriteTextFile(htmlPath, pageHTML); err == nil {
		files = append(files, htmlPath)
	}

	notePath := filepath.Join(ws.Path, "post_not_found.txt")
	note := fmt.Sprintf("Instagram reports that post %s does not exist or has been removed.", ref.Shortcode)
	if err := s.fileOps.WriteTextFile(notePath, note); err != nil {
		return nil, err
	}
	files = append(files, notePath)

	if screenshotPath != "" {
		files = append(files, screenshotPath)
	}
	return files, nil
}
