package utils

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"instafetch/internal"
)

// instagramAppID is the web app identifier Instagram's own frontend sends.
const instagramAppID = "936619743392459"

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterPercent float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 0.1,
	}
}

// HTTPClientConfig contains configuration for the HTTP client
type HTTPClientConfig struct {
	Timeout     time.Duration
	ProxyURL    string
	RetryConfig *RetryConfig
}

// HTTPClient is a retrying HTTP client with user-agent rotation, a cookie
// jar for login handshakes, and optional proxy support. Shared by the
// session store, the HTTP-based strategies, and the media fetcher.
type HTTPClient struct {
	client       *http.Client
	userAgents   []string
	userAgentIdx int
	mutex        sync.RWMutex
	retryConfig  *RetryConfig
}

// Desktop browser user agents; Instagram serves markedly different
// markup to anything that looks like an automated client.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// NewHTTPClient creates a new HTTP client with default configuration
func NewHTTPClient() *HTTPClient {
	return NewHTTPClientWithConfig(&HTTPClientConfig{
		Timeout:     30 * time.Second,
		RetryConfig: DefaultRetryConfig(),
	})
}

// NewHTTPClientWithConfig creates a new HTTP client with custom configuration
func NewHTTPClientWithConfig(config *HTTPClientConfig) *HTTPClient {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	if config.ProxyURL != "" {
		if err := configureProxy(transport, config.ProxyURL); err != nil {
			internal.LogWarn("Failed to configure proxy %s: %v", config.ProxyURL, err)
		}
	}

	jar, _ := cookiejar.New(nil)

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &HTTPClient{
		client:      client,
		userAgents:  defaultUserAgents,
		retryConfig: config.RetryConfig,
	}
}

func configureProxy(transport *http.Transport, proxyURL string) error {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsed.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsed)
	case "socks5":
		dialer, err := proxy.SOCKS5("tcp", parsed.Host, nil, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsed.Scheme)
	}
	return nil
}

// UserAgent returns the currently selected user agent string.
func (c *HTTPClient) UserAgent() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.userAgents[c.userAgentIdx]
}

// RotateUserAgent advances to the next user agent string.
func (c *HTTPClient) RotateUserAgent() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.userAgentIdx = (c.userAgentIdx + 1) % len(c.userAgents)
}

// Jar exposes the underlying cookie jar.
func (c *HTTPClient) Jar() http.CookieJar {
	return c.client.Jar
}

// Get performs a GET request with the session's cookies (session may be
// nil for anonymous requests) and retry on transient failures.
func (c *HTTPClient) Get(ctx context.Context, rawURL string, session *internal.Session, headers map[string]string) (*http.Response, error) {
	return c.executeWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		c.applyDefaultHeaders(req)
		if cookie := session.CookieHeader(); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		return c.client.Do(req)
	})
}

// PostForm performs a form POST without retry. Login handshakes are not
// idempotent, so they get exactly one attempt per call.
func (c *HTTPClient) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.applyDefaultHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return c.client.Do(req)
}

func (c *HTTPClient) applyDefaultHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Referer", "https://www.instagram.com/")
	req.Header.Set("X-IG-App-ID", instagramAppID)
}

// executeWithRetry retries transient failures (connection errors, 5xx,
// 429) with exponential backoff and jitter. Authorization rejections are
// never retried here; the strategies own that policy.
func (c *HTTPClient) executeWithRetry(ctx context.Context, do func() (*http.Response, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			c.RotateUserAgent()
		}

		resp, err := do()
		if err != nil {
			lastErr = internal.NewTransientNetworkError("request", err)
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = internal.NewResolutionError(internal.ErrTransientNetwork,
				fmt.Sprintf("server returned %d", resp.StatusCode)).WithStatus(resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

func (c *HTTPClient) backoffDelay(attempt int) time.Duration {
	delay := float64(c.retryConfig.BaseDelay) * math.Pow(c.retryConfig.Multiplier, float64(attempt-1))
	if max := float64(c.retryConfig.MaxDelay); delay > max {
		delay = max
	}
	jitter := delay * c.retryConfig.JitterPercent * (rand.Float64()*2 - 1)
	return time.Duration(delay + jitter)
}
