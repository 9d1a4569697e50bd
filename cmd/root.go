package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"instafetch/internal"
	"instafetch/resolver"
	"instafetch/store"
	"instafetch/utils"
)

var (
	storageRoot    string
	rateLimit      string
	quiet          bool
	proxyURL       string
	debug          bool
	logLevel       string
	logFile        string
	signaturesPath string
	config         *internal.Config
)

var rootCmd = &cobra.Command{
	Use:     "instafetch [OPTIONS] <URL>",
	Short:   "Download media from Instagram posts, reels, and stories",
	Version: "v1.0.0",
	Long: `InstaFetch resolves Instagram post URLs to downloadable media files.
It works through several extraction techniques in order, falling back
from a full browser render to yt-dlp, the structured JSON document,
Instagram's internal API, and finally raw HTML scraping, so a post is
retrieved whenever any technique still works.

Examples:
  instafetch https://www.instagram.com/p/CxYzAbC1234/
  instafetch -o ./media https://www.instagram.com/reel/CxYzAbC1234/
  instafetch --proxy socks5://proxy:1080 https://www.instagram.com/p/CxYzAbC1234/

Environment Variables:
  INSTAFETCH_USERNAME      Instagram account for authenticated access
  INSTAFETCH_PASSWORD      Password for the account
  INSTAFETCH_STORAGE_ROOT  Directory for downloads and session files
  INSTAFETCH_DATABASE_DSN  Postgres DSN for usage records (optional)
  INSTAFETCH_PROXY         Proxy URL
  INSTAFETCH_YTDLP         Path to the yt-dlp binary

DISCLAIMER: Respect Instagram's Terms of Service and copyright laws.`,
	Args: cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfiguration(); err != nil {
			return fmt.Errorf("configuration error: %v", err)
		}

		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %v", err)
		}

		internal.LogInfo("InstaFetch starting up")
		internal.LogDebug("Configuration loaded: storage=%s, debug=%v, quiet=%v",
			config.StorageRoot, config.EnableDebug, config.QuietMode)

		if !quiet {
			fmt.Fprintln(os.Stderr, "⚠️  DISCLAIMER: Respect Instagram's Terms of Service and copyright laws.")
			fmt.Fprintln(os.Stderr, "")
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]

		internal.LogInfo("Processing resolution request for URL: %s", url)

		parser := utils.NewPostParser()
		if err := parser.Validate(url); err != nil {
			internal.LogResolutionError(err)
			return fmt.Errorf("invalid URL: %v\n\nSupported URL formats:\n  - https://www.instagram.com/p/[shortcode]/\n  - https://www.instagram.com/reel/[shortcode]/\n  - https://www.instagram.com/tv/[shortcode]/\n  - https://www.instagram.com/stories/[user]/[story_id]/", err)
		}

		if rateLimit != "" {
			rateLimitBytes, err := utils.ParseRateLimit(rateLimit)
			if err != nil {
				return fmt.Errorf("invalid rate limit format: %v\n\nSupported formats:\n  - 1M (1 MB/s)\n  - 500K (500 KB/s)\n  - 1024 (1024 bytes/s)", err)
			}
			config.RateLimit = rateLimitBytes
			internal.LogDebug("Rate limit parsed: %s = %d bytes/sec", rateLimit, rateLimitBytes)
		}

		if !quiet {
			fmt.Printf("📥 Resolving: %s\n", url)
			fmt.Printf("📁 Storage root: %s\n", config.StorageRoot)
			if config.RateLimit > 0 {
				fmt.Printf("🚦 Rate limit: %s (%d bytes/sec)\n", rateLimit, config.RateLimit)
			}
			if config.ProxyURL != "" {
				fmt.Printf("🌐 Using proxy: %s\n", config.ProxyURL)
			}
			fmt.Println()
		}

		return executeResolutionWorkflow(url)
	},
}

// loadConfiguration merges the environment, an optional .env file, and
// the CLI flags into the process configuration. Flags win.
func loadConfiguration() error {
	// Optional; running without a .env file is normal.
	godotenv.Load()

	config = internal.DefaultConfig()
	config.LoadFromEnv()

	if storageRoot != "" {
		config.StorageRoot = storageRoot
	}
	if proxyURL != "" {
		config.ProxyURL = proxyURL
	}
	if signaturesPath != "" {
		config.SignaturesPath = signaturesPath
	}

	if debug {
		config.EnableDebug = true
		config.LogLevel = "debug"
	}
	if quiet {
		config.QuietMode = true
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if logFile != "" {
		config.LogFile = logFile
	}

	return config.ValidateConfig()
}

func init() {
	config = internal.DefaultConfig()

	rootCmd.Flags().StringVarP(&storageRoot, "output", "o", "", "Storage root for downloads and session files (env: INSTAFETCH_STORAGE_ROOT)")
	rootCmd.Flags().StringVarP(&rateLimit, "limit-rate", "r", "", "Bandwidth limit (e.g., 1M for 1MB/s)")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bar output")
	rootCmd.Flags().StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS proxy URL (env: INSTAFETCH_PROXY)")
	rootCmd.Flags().StringVar(&signaturesPath, "signatures", "", "Path to an extraction signatures YAML file (env: INSTAFETCH_SIGNATURES)")

	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging with file and line information (env: INSTAFETCH_DEBUG)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: INSTAFETCH_LOG_LEVEL)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr (env: INSTAFETCH_LOG_FILE)")
}

func Execute() error {
	return rootCmd.Execute()
}

// executeResolutionWorkflow wires the components together and runs one
// resolution end to end.
func executeResolutionWorkflow(url string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		internal.LogInfo("Received signal %v, initiating graceful shutdown...", sig)
		if !quiet {
			fmt.Printf("\n🛑 Received %v signal, shutting down gracefully...\n", sig)
		}
		cancel()
	}()

	client := utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		Timeout:  config.RequestTimeout * 2,
		ProxyURL: config.ProxyURL,
	})

	sigs := resolver.DefaultSignatures()
	if config.SignaturesPath != "" {
		loaded, err := resolver.LoadSignatures(config.SignaturesPath)
		if err != nil {
			internal.LogWarn("Could not load signatures file, using built-in defaults: %v", err)
		} else {
			sigs = loaded
		}
	}

	limiter := utils.NewTokenBucketLimiter(config.RateLimit)
	fetcher := resolver.NewFetcher(client, limiter, config)
	sessions := resolver.NewFileSessionStore(config.StorageRoot, client)
	workspaces := resolver.NewWorkspaceManager(config.StorageRoot)

	strategies := resolver.DefaultStrategies(config, sessions, fetcher, client, sigs)
	engine := resolver.NewEngine(strategies, workspaces)

	var usage internal.UsageStore
	if config.DatabaseDSN != "" {
		pg, err := store.NewPostgresStore(config.DatabaseDSN)
		if err != nil {
			internal.LogWarn("Usage database unavailable, continuing without it: %v", err)
		} else {
			usage = pg
			defer usage.Close()
		}
	}

	internal.LogInfo("Starting resolution for %s", url)
	if !quiet {
		fmt.Printf("🔍 Resolving media...\n")
	}

	result := engine.Resolve(ctx, url)

	if usage != nil && config.AccountUsername != "" {
		if err := usage.RecordUser(ctx, config.AccountUsername, config.AccountUsername, ""); err != nil {
			internal.LogWarn("Could not record user: %v", err)
		}
		for _, f := range result.Files {
			if err := usage.RecordDownload(ctx, config.AccountUsername, url, f); err != nil {
				internal.LogWarn("Could not record download: %v", err)
			}
		}
	}

	if !result.Success() {
		internal.LogError("Resolution failed: %s", result.FailureKind)
		if !quiet {
			fmt.Printf("❌ Resolution failed: %s\n", result.FailureKind)
			for _, f := range result.Files {
				fmt.Printf("📄 Diagnostic: %s\n", f)
			}
		}
		return fmt.Errorf("could not resolve %s: %s", url, result.FailureKind)
	}

	internal.LogInfo("Resolution succeeded via %q with %d file(s)", result.StrategyUsed, len(result.Files))
	if !quiet {
		fmt.Printf("✅ Resolved via %s\n", result.StrategyUsed)
		for _, f := range result.Files {
			fmt.Printf("%s %s\n", fileEmoji(f), f)
		}
		fmt.Println()
		fmt.Printf("📁 Files are kept under: %s\n", result.Workspace.Path)
	}

	return nil
}

// fileEmoji classifies a delivered file for display.
func fileEmoji(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "🎥"
	case ".jpg", ".jpeg", ".webp", ".png":
		return "🖼️ "
	default:
		return "📄"
	}
}
