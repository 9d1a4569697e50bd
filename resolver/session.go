package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"instafetch/internal"
	"instafetch/utils"
)

// webLoginResponse is the JSON shape of Instagram's web login endpoint.
type webLoginResponse struct {
	Authenticated bool   `json:"authenticated"`
	User          bool   `json:"user"`
	UserID        string `json:"userId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	ErrorType     string `json:"error_type"`
	Checkpoint    struct {
		URL string `json:"url"`
	} `json:"checkpoint_url"`
}

// FileSessionStore persists one session file per account under the
// storage root. It enforces durable storage and round-trip semantics
// only; each strategy decides for itself whether to load, log in, or go
// anonymous. Login, save, and invalidate are serialized per account so
// concurrent resolutions cannot race to overwrite the session file with
// divergent cookies.
type FileSessionStore struct {
	dir     string
	baseURL string
	client  *utils.HTTPClient
	fileOps *utils.FileOperations

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileSessionStore creates a session store rooted at dir.
func NewFileSessionStore(dir string, client *utils.HTTPClient) *FileSessionStore {
	return &FileSessionStore{
		dir:     dir,
		baseURL: "https://www.instagram.com",
		client:  client,
		fileOps: utils.NewFileOperations(),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *FileSessionStore) lockFor(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lock, ok := s.locks[accountID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[accountID] = lock
	return lock
}

func (s *FileSessionStore) sessionPath(accountID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_instagram_session.json", accountID))
}

// Load reads the persisted session for the account. A missing file
// returns nil without error; a corrupt file is deleted so it is not
// retried forever, and also returns nil.
func (s *FileSessionStore) Load(accountID string) (*internal.Session, error) {
	if accountID == "" {
		return nil, nil
	}

	path := s.sessionPath(accountID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	session := &internal.Session{}
	if err := json.Unmarshal(data, session); err != nil || session.AccountID == "" {
		internal.LogWarn("Discarding corrupt session file for account %s", accountID)
		os.Remove(path)
		return nil, nil
	}

	session.RawBlob = data
	return session, nil
}

// Login performs the CSRF-token web handshake and persists the session
// on success. A rejected credential pair returns an AuthFailed fault and
// persists nothing.
func (s *FileSessionStore) Login(ctx context.Context, accountID, password string) (*internal.Session, error) {
	if accountID == "" || password == "" {
		return nil, internal.NewAuthFailedError("no credentials configured")
	}

	lock := s.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	// Prime the cookie jar to obtain a CSRF token.
	resp, err := s.client.Get(ctx, s.baseURL+"/", nil, nil)
	if err != nil {
		return nil, internal.NewTransientNetworkError("login preflight", err)
	}
	resp.Body.Close()

	csrfToken := s.jarCookie("csrftoken")
	if csrfToken == "" {
		return nil, internal.NewAuthFailedError("could not obtain CSRF token")
	}

	form := url.Values{
		"username":      {accountID},
		"password":      {password},
		"queryParams":   {"{}"},
		"optIntoOneTap": {"false"},
	}
	headers := map[string]string{
		"X-CSRFToken":      csrfToken,
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          s.baseURL + "/accounts/login/",
	}

	resp, err = s.client.PostForm(ctx, s.baseURL+"/accounts/login/ajax/", form, headers)
	if err != nil {
		return nil, internal.NewTransientNetworkError("login", err)
	}
	defer resp.Body.Close()

	loginResp := &webLoginResponse{}
	if err := json.NewDecoder(resp.Body).Decode(loginResp); err != nil {
		return nil, internal.WrapResolutionError(internal.ErrAuthFailed, "unreadable login response", err)
	}

	if !loginResp.Authenticated {
		if loginResp.Checkpoint.URL != "" {
			return nil, internal.NewAuthFailedError("login requires checkpoint verification")
		}
		return nil, internal.NewAuthFailedError(fmt.Sprintf("credentials rejected (status: %s)", loginResp.Status))
	}

	session := &internal.Session{
		AccountID: accountID,
		Cookies:   s.jarCookies(),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.save(session); err != nil {
		return nil, err
	}

	internal.LogInfo("Authenticated account %s and persisted session", accountID)
	return session, nil
}

// Save overwrites the on-disk representation for the session's account.
func (s *FileSessionStore) Save(session *internal.Session) error {
	if session == nil || session.AccountID == "" {
		return fmt.Errorf("session must carry an account id")
	}

	lock := s.lockFor(session.AccountID)
	lock.Lock()
	defer lock.Unlock()

	return s.save(session)
}

func (s *FileSessionStore) save(session *internal.Session) error {
	if err := s.fileOps.EnsureDir(s.dir); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	persisted := *session
	persisted.RawBlob = nil
	data, err := json.Marshal(&persisted)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	if err := os.WriteFile(s.sessionPath(session.AccountID), data, 0600); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Invalidate deletes the persisted session for the account. Idempotent.
func (s *FileSessionStore) Invalidate(accountID string) error {
	if accountID == "" {
		return nil
	}

	lock := s.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	err := os.Remove(s.sessionPath(accountID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	internal.LogDebug("Invalidated session for account %s", accountID)
	return nil
}

// WriteNetscapeCookieFile renders the session's cookies in Netscape
// cookie-file format for tools that consume a cookie jar on disk.
func WriteNetscapeCookieFile(session *internal.Session, path string) error {
	if session == nil || len(session.Cookies) == 0 {
		return fmt.Errorf("no cookies to write")
	}

	var b strings.Builder
	b.WriteString("# Netscape HTTP Cookie File\n")
	expiry := time.Now().Add(24 * time.Hour).Unix()
	for name, value := range session.Cookies {
		// domain, include-subdomains, path, secure, expiry, name, value
		fmt.Fprintf(&b, ".instagram.com\tTRUE\t/\tTRUE\t%d\t%s\t%s\n", expiry, name, value)
	}

	return os.WriteFile(path, []byte(b.String()), 0600)
}

// jarCookie returns the named cookie currently held for the Instagram domain.
func (s *FileSessionStore) jarCookie(name string) string {
	if cookies := s.jarCookies(); cookies != nil {
		return cookies[name]
	}
	return ""
}

func (s *FileSessionStore) jarCookies() map[string]string {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return nil
	}
	out := make(map[string]string)
	for _, cookie := range s.client.Jar().Cookies(base) {
		out[cookie.Name] = cookie.Value
	}
	return out
}
