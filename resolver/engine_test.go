package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"instafetch/internal"
)

// fakeStrategy is a scriptable Strategy for engine tests.
type fakeStrategy struct {
	name    string
	resolve func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error)
	calls   int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Resolve(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
	f.calls++
	return f.resolve(ctx, ref, ws)
}

func writeMediaFile(t *testing.T, ws *internal.Workspace, name string) string {
	t.Helper()
	path := filepath.Join(ws.Path, name)
	require.NoError(t, os.WriteFile(path, []byte("media-bytes"), 0644))
	return path
}

const testPostURL = "https://www.instagram.com/p/CxYzAbC1234/"

func TestEngine_FirstSuccessWins(t *testing.T) {
	second := &fakeStrategy{name: "second"}
	first := &fakeStrategy{
		name: "first",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return []string{writeMediaFile(t, ws, "instagram_media_0.jpg")}, nil
		},
	}
	second.resolve = func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
		return nil, nil
	}

	engine := NewEngine([]internal.Strategy{first, second}, NewWorkspaceManager(t.TempDir()))
	result := engine.Resolve(context.Background(), testPostURL)

	require.True(t, result.Success())
	require.Equal(t, "first", result.StrategyUsed)
	require.Len(t, result.Files, 1)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 0, second.calls, "later strategies must not run after a success")
}

func TestEngine_FallsThroughFailures(t *testing.T) {
	erroring := &fakeStrategy{
		name: "erroring",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return nil, internal.NewAuthBlockedError(401, "rejected")
		},
	}
	empty := &fakeStrategy{
		name: "empty",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return nil, nil
		},
	}
	winner := &fakeStrategy{
		name: "winner",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return []string{writeMediaFile(t, ws, "instagram_media_0.mp4")}, nil
		},
	}

	engine := NewEngine([]internal.Strategy{erroring, empty, winner}, NewWorkspaceManager(t.TempDir()))
	result := engine.Resolve(context.Background(), testPostURL)

	require.True(t, result.Success())
	require.Equal(t, "winner", result.StrategyUsed)
	require.Equal(t, 1, erroring.calls)
	require.Equal(t, 1, empty.calls)
}

func TestEngine_AllFailProducesSingleDiagnostic(t *testing.T) {
	failing := &fakeStrategy{
		name: "failing",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return nil, errors.New("boom")
		},
	}

	engine := NewEngine([]internal.Strategy{failing}, NewWorkspaceManager(t.TempDir()))
	result := engine.Resolve(context.Background(), testPostURL)

	require.False(t, result.Success())
	require.Len(t, result.Files, 1)
	require.Equal(t, "all_methods_failed.txt", filepath.Base(result.Files[0]))

	data, err := os.ReadFile(result.Files[0])
	require.NoError(t, err)
	require.Contains(t, string(data), testPostURL)
}

func TestEngine_FailureKindPrefersMostSpecific(t *testing.T) {
	generic := &fakeStrategy{
		name: "generic",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return nil, errors.New("boom")
		},
	}
	auth := &fakeStrategy{
		name: "auth",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return nil, internal.NewAuthBlockedError(401, "rejected")
		},
	}
	network := &fakeStrategy{
		name: "network",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return nil, internal.NewTransientNetworkError("fetch", errors.New("timeout"))
		},
	}

	engine := NewEngine([]internal.Strategy{generic, auth, network}, NewWorkspaceManager(t.TempDir()))
	result := engine.Resolve(context.Background(), testPostURL)

	require.False(t, result.Success())
	require.Equal(t, internal.ErrAuthBlocked, result.FailureKind)
}

func TestEngine_InvalidURLRunsNoStrategy(t *testing.T) {
	strategy := &fakeStrategy{
		name: "never",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return nil, nil
		},
	}

	engine := NewEngine([]internal.Strategy{strategy}, NewWorkspaceManager(t.TempDir()))
	result := engine.Resolve(context.Background(), "https://example.com/not-instagram")

	require.False(t, result.Success())
	require.Equal(t, internal.ErrInvalidURL, result.FailureKind)
	require.Equal(t, 0, strategy.calls)
}

func TestEngine_PanicIsolation(t *testing.T) {
	panicking := &fakeStrategy{
		name: "panicking",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			panic("extractor blew up")
		},
	}
	winner := &fakeStrategy{
		name: "winner",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return []string{writeMediaFile(t, ws, "instagram_media_0.jpg")}, nil
		},
	}

	engine := NewEngine([]internal.Strategy{panicking, winner}, NewWorkspaceManager(t.TempDir()))
	result := engine.Resolve(context.Background(), testPostURL)

	require.True(t, result.Success())
	require.Equal(t, "winner", result.StrategyUsed)
}

func TestEngine_DiscardsPhantomAndEmptyFiles(t *testing.T) {
	liar := &fakeStrategy{
		name: "liar",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			empty := filepath.Join(ws.Path, "empty.jpg")
			require.NoError(t, os.WriteFile(empty, nil, 0644))
			return []string{filepath.Join(ws.Path, "phantom.jpg"), empty}, nil
		},
	}
	honest := &fakeStrategy{
		name: "honest",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return []string{writeMediaFile(t, ws, "real.jpg")}, nil
		},
	}

	engine := NewEngine([]internal.Strategy{liar, honest}, NewWorkspaceManager(t.TempDir()))
	result := engine.Resolve(context.Background(), testPostURL)

	require.True(t, result.Success())
	require.Equal(t, "honest", result.StrategyUsed)
}

func TestEngine_CancelledContextStopsChain(t *testing.T) {
	strategy := &fakeStrategy{
		name: "never",
		resolve: func(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
			return nil, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine([]internal.Strategy{strategy}, NewWorkspaceManager(t.TempDir()))
	result := engine.Resolve(ctx, testPostURL)

	require.False(t, result.Success())
	require.Equal(t, 0, strategy.calls)
}
