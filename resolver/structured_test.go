package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"instafetch/internal"
	"instafetch/utils"
)

// stubSessionStore is an in-memory SessionStore for strategy tests.
type stubSessionStore struct {
	session     *internal.Session
	loginErr    error
	invalidated []string
}

func (s *stubSessionStore) Load(accountID string) (*internal.Session, error) {
	return s.session, nil
}

func (s *stubSessionStore) Login(ctx context.Context, accountID, password string) (*internal.Session, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	if s.session == nil {
		s.session = &internal.Session{
			AccountID: accountID,
			Cookies:   map[string]string{"sessionid": "stub"},
		}
	}
	return s.session, nil
}

func (s *stubSessionStore) Save(session *internal.Session) error {
	s.session = session
	return nil
}

func (s *stubSessionStore) Invalidate(accountID string) error {
	s.invalidated = append(s.invalidated, accountID)
	s.session = nil
	return nil
}

func newStructuredForTest(t *testing.T, baseURL string, sessions internal.SessionStore) (*StructuredStrategy, *[]time.Duration) {
	t.Helper()
	cfg := internal.DefaultConfig()
	cfg.QuietMode = true

	client := utils.NewHTTPClient()
	strategy := NewStructuredStrategy(cfg, sessions, NewFetcher(client, nil, cfg), client)
	strategy.baseURL = baseURL

	var sleeps []time.Duration
	strategy.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return strategy, &sleeps
}

func TestStructuredStrategy_Success(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p/CxYzAbC1234/":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"graphql": {"shortcode_media": {
				"shortcode": "CxYzAbC1234",
				"display_url": "%s/media.jpg",
				"dimensions": {"width": 1080, "height": 1080}
			}}}`, server.URL)
		case "/media.jpg":
			w.Write([]byte("image-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	strategy, sleeps := newStructuredForTest(t, server.URL, &stubSessionStore{})
	ws := testWorkspace(t)

	files, err := strategy.Resolve(context.Background(), &internal.PostReference{
		Shortcode: "CxYzAbC1234",
		Kind:      internal.KindPost,
	}, ws)

	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, filepath.Join(ws.Path, "instagram_media_0.jpg"), files[0])
	require.Empty(t, *sleeps)
}

func TestStructuredStrategy_BackoffOnAuthRejection(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	sessions := &stubSessionStore{session: &internal.Session{
		AccountID: "alice",
		Cookies:   map[string]string{"sessionid": "stale"},
	}}
	strategy, sleeps := newStructuredForTest(t, server.URL, sessions)
	ws := testWorkspace(t)

	files, err := strategy.Resolve(context.Background(), &internal.PostReference{
		Shortcode: "CxYzAbC1234",
		Kind:      internal.KindPost,
	}, ws)

	require.NoError(t, err)

	// Doubling delays between the three attempts.
	require.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, *sleeps)

	// Three main attempts plus one clean anonymous shot after the first.
	require.EqualValues(t, 4, atomic.LoadInt32(&hits))

	// The stale session must have been discarded.
	require.Contains(t, sessions.invalidated, "alice")

	// Exhaustion delivers an explanation file, not an error.
	require.Len(t, files, 1)
	require.Equal(t, filepath.Join(ws.Path, "instagram_error.txt"), files[0])
	data, readErr := os.ReadFile(files[0])
	require.NoError(t, readErr)
	require.Contains(t, string(data), "CxYzAbC1234")
	require.Contains(t, string(data), "401")
}

func TestStructuredStrategy_NotFoundFailsWithoutRetry(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	strategy, sleeps := newStructuredForTest(t, server.URL, &stubSessionStore{})

	files, err := strategy.Resolve(context.Background(), &internal.PostReference{
		Shortcode: "CxYzAbC1234",
		Kind:      internal.KindPost,
	}, testWorkspace(t))

	require.Error(t, err)
	require.Equal(t, internal.ErrNotFound, internal.KindOf(err))
	require.Empty(t, files)
	require.Empty(t, *sleeps)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestStructuredStrategy_EmptyDocumentTriggersFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"graphql": {"shortcode_media": {}}}`))
	}))
	defer server.Close()

	strategy, _ := newStructuredForTest(t, server.URL, &stubSessionStore{})

	files, err := strategy.Resolve(context.Background(), &internal.PostReference{
		Shortcode: "CxYzAbC1234",
		Kind:      internal.KindPost,
	}, testWorkspace(t))

	// Clean no-result: no files, no error, next strategy's turn.
	require.NoError(t, err)
	require.Empty(t, files)
}
