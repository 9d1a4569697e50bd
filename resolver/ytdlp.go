package resolver

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"instafetch/internal"
	"instafetch/utils"
)

// YtdlpStrategy shells out to the yt-dlp binary, which carries its own
// Instagram extractor. The session's cookies are handed over through a
// Netscape cookie file so yt-dlp reuses the authenticated state instead
// of logging in again. Output goes to a private subdirectory of the
// workspace so files left behind by other strategies are never claimed.
type YtdlpStrategy struct {
	cfg      *internal.Config
	sessions internal.SessionStore
	fileOps  *utils.FileOperations
}

// NewYtdlpStrategy creates the yt-dlp delegation strategy.
func NewYtdlpStrategy(cfg *internal.Config, sessions internal.SessionStore) *YtdlpStrategy {
	return &YtdlpStrategy{
		cfg:      cfg,
		sessions: sessions,
		fileOps:  utils.NewFileOperations(),
	}
}

// Name implements the Strategy interface
func (s *YtdlpStrategy) Name() string {
	return "ytdlp"
}

// Resolve implements the Strategy interface
func (s *YtdlpStrategy) Resolve(ctx context.Context, ref *internal.PostReference, ws *internal.Workspace) ([]string, error) {
	binary := s.cfg.YtdlpPath
	if binary == "" {
		binary = "yt-dlp"
	}
	if _, err := exec.LookPath(binary); err != nil {
		internal.LogDebug("yt-dlp binary not found, skipping: %v", err)
		return nil, nil
	}

	outDir := filepath.Join(ws.Path, "ytdlp")
	if err := s.fileOps.EnsureDir(outDir); err != nil {
		return nil, err
	}

	args := []string{
		"-o", filepath.Join(outDir, "%(id)s.%(ext)s"),
		"-f", "best",
		"--no-warnings",
		"--socket-timeout", "30",
		"--retries", "5",
	}

	if session, _ := s.sessions.Load(s.cfg.AccountUsername); session != nil {
		cookiePath := filepath.Join(outDir, "cookies.txt")
		if err := WriteNetscapeCookieFile(session, cookiePath); err == nil {
			args = append(args, "--cookies", cookiePath)
		}
	} else if s.cfg.HasCredentials() {
		args = append(args, "--username", s.cfg.AccountUsername, "--password", s.cfg.AccountPassword)
	}

	args = append(args, ref.PageURL())

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout*4)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		internal.LogDebug("yt-dlp exited with error: %v (%s)", err, msg)
		if strings.Contains(msg, "login") || strings.Contains(msg, "401") || strings.Contains(msg, "Unauthorized") {
			return nil, internal.NewAuthBlockedError(401, "yt-dlp was refused access")
		}
		return nil, nil
	}

	files, err := s.fileOps.ListFiles(outDir)
	if err != nil {
		return nil, err
	}

	var media []string
	for _, f := range files {
		if filepath.Base(f) == "cookies.txt" {
			continue
		}
		if s.fileOps.NonEmptyFile(f) {
			media = append(media, f)
		}
	}
	if len(media) > 0 {
		internal.LogInfo("yt-dlp produced %d file(s) for %s", len(media), ref.Shortcode)
	}
	return media, nil
}
