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

	"github.com/stretchr/testify/require"

	"instafetch/internal"
	"instafetch/utils"
)

func newDirectHTMLForTest(t *testing.T, baseURL string) *DirectHTMLStrategy {
	t.Helper()
	cfg := internal.DefaultConfig()
	cfg.QuietMode = true

	client := utils.NewHTTPClient()
	strategy := NewDirectHTMLStrategy(cfg, &stubSessionStore{}, NewFetcher(client, nil, cfg), client, DefaultSignatures())
	strategy.baseURL = baseURL
	strategy.oembedURL = baseURL + "/oembed/"
	return strategy
}

func TestDirectHTMLStrategy_LegacyShortcodeSkipsNetwork(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	strategy := newDirectHTMLForTest(t, server.URL)
	ws := testWorkspace(t)

	files, err := strategy.Resolve(context.Background(), &internal.PostReference{
		Shortcode: "abc12",
		Kind:      internal.KindPost,
	}, ws)

	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, filepath.Join(ws.Path, "instagram_archived_post.txt"), files[0])

	data, readErr := os.ReadFile(files[0])
	require.NoError(t, readErr)
	require.Contains(t, string(data), "abc12")
	require.Contains(t, string(data), "too old")

	require.EqualValues(t, 0, atomic.LoadInt32(&hits))
}

func TestDirectHTMLStrategy_SharedDataExtraction(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p/CxYzAbC1234/":
			fmt.Fprintf(w, `<html><head><script type="text/javascript">window._sharedData = {"entry_data": {"PostPage": [{"graphql": {"shortcode_media": {"shortcode": "CxYzAbC1234", "display_url": "%s/media.jpg", "dimensions": {"width": 640, "height": 640}}}}]}};</script></head><body></body></html>`, server.URL)
		case "/media.jpg":
			w.Write([]byte("image-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	strategy := newDirectHTMLForTest(t, server.URL)
	ws := testWorkspace(t)

	files, err := strategy.Resolve(context.Background(), &internal.PostReference{
		Shortcode: "CxYzAbC1234",
		Kind:      internal.KindPost,
	}, ws)

	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, filepath.Join(ws.Path, "instagram_media_0.jpg"), files[0])
}

func TestDirectHTMLStrategy_RegexFallback(t *testing.T) {
	// No recognizable embedded blob, only a raw display_url field.
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p/CxYzAbC1234/":
			fmt.Fprintf(w, `<html><script>{"display_url":"%s/media.jpg"}</script></html>`, server.URL)
		case "/media.jpg":
			w.Write([]byte("image-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	strategy := newDirectHTMLForTest(t, server.URL)

	files, err := strategy.Resolve(context.Background(), &internal.PostReference{
		Shortcode: "CxYzAbC1234",
		Kind:      internal.KindPost,
	}, testWorkspace(t))

	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestDirectHTMLStrategy_OEmbedThumbnail(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p/CxYzAbC1234/":
			w.Write([]byte("<html><body>nothing embedded</body></html>"))
		case "/oembed/":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"thumbnail_url": "%s/thumb.jpg"}`, server.URL)
		case "/thumb.jpg":
			w.Write([]byte("thumb-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	strategy := newDirectHTMLForTest(t, server.URL)
	ws := testWorkspace(t)

	files, err := strategy.Resolve(context.Background(), &internal.PostReference{
		Shortcode: "CxYzAbC1234",
		Kind:      internal.KindPost,
	}, ws)

	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, filepath.Join(ws.Path, "instagram_media_0.jpg"), files[0])
}

func TestDirectHTMLStrategy_UnavailablePost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p/CxYzAbC1234/":
			w.Write([]byte("<html><body>nothing embedded</body></html>"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	strategy := newDirectHTMLForTest(t, server.URL)
	ws := testWorkspace(t)

	files, err := strategy.Resolve(context.Background(), &internal.PostReference{
		Shortcode: "CxYzAbC1234",
		Kind:      internal.KindPost,
	}, ws)

	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, filepath.Join(ws.Path, "post_unavailable.txt"), files[0])
}

func TestDirectHTMLStrategy_NotFoundPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	strategy := newDirectHTMLForTest(t, server.URL)

	files, err := strategy.Resolve(context.Background(), &internal.PostReference{
		Shortcode: "CxYzAbC1234",
		Kind:      internal.KindPost,
	}, testWorkspace(t))

	require.Error(t, err)
	require.Equal(t, internal.ErrNotFound, internal.KindOf(err))
	require.Empty(t, files)
}
