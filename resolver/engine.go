package resolver

import (
	"context"
	"fmt"
	"path/filepath"

	"instafetch/internal"
	"instafetch/utils"
)

// Engine runs the configured strategies in priority order against a
// post URL until one of them produces verified files. It is total: a
// bad URL, a panicking strategy, or a full sweep of failures all come
// back as a populated result, never as an error, because the caller
// always owes the user an answer.
type Engine struct {
	strategies []internal.Strategy
	workspaces internal.WorkspaceManager
	parser     *utils.PostParser
	fileOps    *utils.FileOperations
}

// NewEngine creates a resolution engine over the given strategy chain.
func NewEngine(strategies []internal.Strategy, workspaces internal.WorkspaceManager) *Engine {
	return &Engine{
		strategies: strategies,
		workspaces: workspaces,
		parser:     utils.NewPostParser(),
		fileOps:    utils.NewFileOperations(),
	}
}

// DefaultStrategies builds the standard chain in priority order.
func DefaultStrategies(cfg *internal.Config, sessions internal.SessionStore, fetcher *Fetcher, client *utils.HTTPClient, sigs *ExtractionSignatures) []internal.Strategy {
	return []internal.Strategy{
		NewBrowserStrategy(cfg, sessions, fetcher, sigs),
		NewYtdlpStrategy(cfg, sessions),
		NewStructuredStrategy(cfg, sessions, fetcher, client),
		NewPrivateAPIStrategy(cfg, sessions, fetcher, client, sigs),
		NewDirectHTMLStrategy(cfg, sessions, fetcher, client, sigs),
	}
}

// Resolve turns a raw Instagram URL into downloaded files.
func (e *Engine) Resolve(ctx context.Context, rawURL string) *internal.ResolutionResult {
	ref, err := e.parser.Parse(rawURL)
	if err != nil {
		internal.LogResolutionError(err)
		return &internal.ResolutionResult{
			Failed:      true,
			FailureKind: internal.KindOf(err),
		}
	}

	ws, err := e.workspaces.Create()
	if err != nil {
		internal.LogError("Could not create workspace: %v", err)
		return &internal.ResolutionResult{
			Failed:      true,
			FailureKind: internal.ErrNoResult,
		}
	}

	worstKind := internal.ErrNoResult
	for _, strategy := range e.strategies {
		if ctx.Err() != nil {
			break
		}

		internal.LogInfo("Trying strategy %q for %s", strategy.Name(), ref.Shortcode)
		files, err := e.runStrategy(ctx, strategy, ref, ws)
		if err != nil {
			internal.LogResolutionError(err)
			if kind := internal.KindOf(err); moreSpecific(kind, worstKind) {
				worstKind = kind
			}
			continue
		}

		verified := e.verifyFiles(files)
		if len(verified) > 0 {
			internal.LogInfo("Strategy %q resolved %d file(s)", strategy.Name(), len(verified))
			return &internal.ResolutionResult{
				Files:        verified,
				StrategyUsed: strategy.Name(),
				Workspace:    ws,
			}
		}
	}

	// Every strategy came up empty. Leave one diagnostic behind.
	path := filepath.Join(ws.Path, "all_methods_failed.txt")
	content := fmt.Sprintf("All extraction methods failed for %s. The post may be private, deleted, or blocked in your region.", rawURL)
	if writeErr := e.fileOps.WriteTextFile(path, content); writeErr != nil {
		internal.LogError("Could not write failure diagnostic: %v", writeErr)
		path = ""
	}

	result := &internal.ResolutionResult{
		StrategyUsed: "",
		Workspace:    ws,
		Failed:       true,
		FailureKind:  worstKind,
	}
	if path != "" {
		result.Files = []string{path}
	}
	return result
}

// runStrategy isolates one strategy execution, converting a panic into
// an ordinary failure so one broken extractor cannot take down the run.
func (e *Engine) runStrategy(ctx context.Context, strategy internal.Strategy, ref *internal.PostReference, ws *internal.Workspace) (files []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			internal.LogError("Strategy %q panicked: %v", strategy.Name(), r)
			files = nil
			err = internal.NewResolutionError(internal.ErrNoResult,
				fmt.Sprintf("strategy %s aborted: %v", strategy.Name(), r))
		}
	}()
	return strategy.Resolve(ctx, ref, ws)
}

// verifyFiles keeps only files that exist and have content.
func (e *Engine) verifyFiles(files []string) []string {
	var out []string
	for _, f := range files {
		if e.fileOps.NonEmptyFile(f) {
			out = append(out, f)
		} else if f != "" {
			internal.LogDebug("Discarding empty or missing file %s", f)
		}
	}
	return out
}

// moreSpecific reports whether kind tells the user more than current.
// Auth and not-found outrank the generic no-result.
func moreSpecific(kind, current internal.ErrorKind) bool {
	rank := func(k internal.ErrorKind) int {
		switch k {
		case internal.ErrAuthBlocked, internal.ErrAuthFailed:
			return 3
		case internal.ErrNotFound:
			return 2
		case internal.ErrTransientNetwork:
			return 1
		default:
			return 0
		}
	}
	return rank(kind) > rank(current)
}
