package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"instafetch/internal"
	"instafetch/utils"
)

func TestFileSessionStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewFileSessionStore(t.TempDir(), utils.NewHTTPClient())

	session := &internal.Session{
		AccountID: "alice",
		Cookies:   map[string]string{"sessionid": "abc", "csrftoken": "tok"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(session))

	loaded, err := store.Load("alice")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "alice", loaded.AccountID)
	require.Equal(t, "abc", loaded.Cookie("sessionid"))
	require.Equal(t, "tok", loaded.Cookie("csrftoken"))
}

func TestFileSessionStore_LoadMissingReturnsNil(t *testing.T) {
	store := NewFileSessionStore(t.TempDir(), utils.NewHTTPClient())

	session, err := store.Load("nobody")
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestFileSessionStore_LoadDeletesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSessionStore(dir, utils.NewHTTPClient())

	path := filepath.Join(dir, "bob_instagram_session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	session, err := store.Load("bob")
	require.NoError(t, err)
	require.Nil(t, session)

	// The corrupt file must not survive to poison the next load.
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestFileSessionStore_Invalidate(t *testing.T) {
	store := NewFileSessionStore(t.TempDir(), utils.NewHTTPClient())

	require.NoError(t, store.Save(&internal.Session{
		AccountID: "carol",
		Cookies:   map[string]string{"sessionid": "zzz"},
	}))

	require.NoError(t, store.Invalidate("carol"))

	session, err := store.Load("carol")
	require.NoError(t, err)
	require.Nil(t, session)

	// A second invalidation of the same account is a no-op.
	require.NoError(t, store.Invalidate("carol"))
}

func TestFileSessionStore_LoginSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf123", Path: "/"})
			w.WriteHeader(http.StatusOK)
		case "/accounts/login/ajax/":
			require.Equal(t, "csrf123", r.Header.Get("X-CSRFToken"))
			require.NoError(t, r.ParseForm())
			require.Equal(t, "dave", r.FormValue("username"))
			require.Equal(t, "pw", r.FormValue("password"))

			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "sess999", Path: "/"})
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"authenticated": true, "user": true, "status": "ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store := NewFileSessionStore(t.TempDir(), utils.NewHTTPClient())
	store.baseURL = server.URL

	session, err := store.Login(context.Background(), "dave", "pw")
	require.NoError(t, err)
	require.Equal(t, "dave", session.AccountID)
	require.Equal(t, "sess999", session.Cookie("sessionid"))

	// The session must have been persisted as part of the login.
	loaded, err := store.Load("dave")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "sess999", loaded.Cookie("sessionid"))
}

func TestFileSessionStore_LoginRejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf123", Path: "/"})
			w.WriteHeader(http.StatusOK)
		case "/accounts/login/ajax/":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"authenticated": false, "status": "fail"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store := NewFileSessionStore(t.TempDir(), utils.NewHTTPClient())
	store.baseURL = server.URL

	_, err := store.Login(context.Background(), "dave", "wrong")
	require.Error(t, err)
	require.Equal(t, internal.ErrAuthFailed, internal.KindOf(err))

	// A failed login must not persist anything.
	loaded, loadErr := store.Load("dave")
	require.NoError(t, loadErr)
	require.Nil(t, loaded)
}

func TestFileSessionStore_LoginWithoutCredentials(t *testing.T) {
	store := NewFileSessionStore(t.TempDir(), utils.NewHTTPClient())

	_, err := store.Login(context.Background(), "", "")
	require.Error(t, err)
	require.Equal(t, internal.ErrAuthFailed, internal.KindOf(err))
}

func TestWriteNetscapeCookieFile(t *testing.T) {
	session := &internal.Session{
		AccountID: "erin",
		Cookies:   map[string]string{"sessionid": "abc123"},
	}

	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, WriteNetscapeCookieFile(session, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	require.True(t, strings.HasPrefix(content, "# Netscape HTTP Cookie File"))
	require.Contains(t, content, ".instagram.com\tTRUE\t/\tTRUE\t")
	require.Contains(t, content, "\tsessionid\tabc123\n")
}

func TestWriteNetscapeCookieFile_NoCookies(t *testing.T) {
	err := WriteNetscapeCookieFile(&internal.Session{AccountID: "x"}, filepath.Join(t.TempDir(), "cookies.txt"))
	require.Error(t, err)
}
