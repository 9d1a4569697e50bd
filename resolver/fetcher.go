package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"instafetch/internal"
	"instafetch/utils"
)

// downloadChunkSize is the streaming buffer size for media transfers.
const downloadChunkSize = 8192

// FetchRequest describes one batch of media downloads into a workspace.
type FetchRequest struct {
	Candidates []internal.MediaCandidate
	Workspace  *internal.Workspace
	Session    *internal.Session // optional cookies for CDN requests
	Prefix     string            // file name prefix, e.g. "instagram_media"
}

// Fetcher downloads resolved media candidates into workspace files. It
// is shared by every HTTP-based strategy: candidates are deduplicated by
// exact URL, streamed in fixed-size chunks, and any individual transfer
// failure is logged and skipped rather than aborting the batch.
type Fetcher struct {
	client  *utils.HTTPClient
	limiter internal.RateLimiter
	fileOps *utils.FileOperations
	timeout time.Duration
	quiet   bool
}

// NewFetcher creates a media fetcher. The limiter may be nil for
// unthrottled downloads.
func NewFetcher(client *utils.HTTPClient, limiter internal.RateLimiter, cfg *internal.Config) *Fetcher {
	return &Fetcher{
		client:  client,
		limiter: limiter,
		fileOps: utils.NewFileOperations(),
		timeout: cfg.DownloadTimeout,
		quiet:   cfg.QuietMode,
	}
}

// FetchAll downloads every deduplicated candidate and returns the paths
// of the transfers that completed with non-empty files.
func (f *Fetcher) FetchAll(ctx context.Context, req *FetchRequest) []string {
	prefix := req.Prefix
	if prefix == "" {
		prefix = "instagram_media"
	}

	candidates := dedupeCandidates(req.Candidates)
	downloaded := make([]string, 0, len(candidates))

	for i, candidate := range candidates {
		path := filepath.Join(req.Workspace.Path, fmt.Sprintf("%s_%d%s", prefix, i, inferExtension(candidate.URL)))

		if err := f.fetchOne(ctx, candidate, path, req.Session); err != nil {
			internal.LogWarn("Skipping media %s: %v", candidate.URL, err)
			os.Remove(path)
			continue
		}

		if !f.fileOps.NonEmptyFile(path) {
			internal.LogWarn("Downloaded file is empty, discarding: %s", path)
			os.Remove(path)
			continue
		}

		internal.LogInfo("Downloaded media to %s", path)
		downloaded = append(downloaded, path)
	}

	return downloaded
}

func (f *Fetcher) fetchOne(ctx context.Context, candidate internal.MediaCandidate, path string, session *internal.Session) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.client.Get(ctx, candidate.URL, session, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return internal.NewResolutionError(internal.ErrTransientNetwork,
			fmt.Sprintf("media transfer returned status %d", resp.StatusCode)).WithStatus(resp.StatusCode)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	progress := utils.NewProgressTracker(resp.ContentLength, filepath.Base(path), f.quiet)
	defer progress.Finish()

	buf := make([]byte, downloadChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if f.limiter != nil {
				if err := f.limiter.Wait(ctx, n); err != nil {
					return err
				}
			}
			if _, err := file.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write media chunk: %w", err)
			}
			progress.Add(n)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return internal.NewTransientNetworkError("media transfer", readErr)
		}
	}
}

// dedupeCandidates removes candidates with identical URLs, keeping the
// first occurrence so the provider-reported ordering survives.
func dedupeCandidates(candidates []internal.MediaCandidate) []internal.MediaCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]internal.MediaCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.URL == "" {
			continue
		}
		if _, dup := seen[c.URL]; dup {
			continue
		}
		seen[c.URL] = struct{}{}
		out = append(out, c)
	}
	return out
}

// inferExtension picks a file extension from the media URL. Unrecognized
// URLs default to jpeg, matching what the CDN serves for bare image links.
func inferExtension(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, ".mp4"):
		return ".mp4"
	case strings.Contains(lower, ".webp"):
		return ".webp"
	case strings.Contains(lower, ".jpg"), strings.Contains(lower, ".jpeg"):
		return ".jpg"
	default:
		return ".jpg"
	}
}
