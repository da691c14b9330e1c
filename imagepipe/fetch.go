package imagepipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FetchConfig configures the direct fetcher.
type FetchConfig struct {
	Timeout  time.Duration // per-request timeout. Default: 15s.
	MaxBytes int64         // response body cap. Default: 20MB.
	// UserAgent sent with requests.
	UserAgent string
}

func (c *FetchConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 20 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; mowenclip/1.0)"
	}
}

// Fetcher performs direct referrer-less image fetches. Anti-hotlinking
// CDNs that reject third-party referrers generally accept a request
// that carries none at all.
type Fetcher struct {
	client *http.Client
	config FetchConfig
}

// NewFetcher creates a direct fetcher with a bounded redirect chain.
func NewFetcher(cfg FetchConfig) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				// Keep redirects referrer-less too.
				req.Header.Del("Referer")
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves raw image bytes from rawURL with no referrer. Errors
// carry a classified failure reason.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Fetched, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, failf(FailureInvalidURL, "fetch %q: not an http(s) url", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, failf(FailureInvalidURL, "fetch %q: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, failf(FailureTimeoutOrNet, "fetch %q: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if reason, bad := classifyStatus(resp.StatusCode); bad {
		return nil, failf(reason, "fetch %q: http %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return nil, failf(FailureTimeoutOrNet, "read %q: %w", rawURL, err)
	}
	if int64(len(body)) > f.config.MaxBytes {
		return nil, failf(FailureUnknown, "fetch %q: body over %d bytes", rawURL, f.config.MaxBytes)
	}
	if len(body) == 0 {
		return nil, failf(FailureUnknown, "fetch %q: empty body", rawURL)
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(mime)
	if mime == "" {
		mime = http.DetectContentType(body)
	}
	return &Fetched{Data: body, MimeType: mime}, nil
}

func classifyStatus(status int) (FailureReason, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailureAuthOrHotlink, true
	case status == http.StatusNotFound || status == http.StatusGone:
		return FailureNotFound, true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return FailureTimeoutOrNet, true
	default:
		return FailureUnknown, true
	}
}

// Acquirer runs the layered acquisition strategy for one candidate.
type Acquirer struct {
	Direct   *Fetcher
	Delegate Delegate      // nil when no page context is available
	Timeout  time.Duration // per delegated attempt. Default: 10s.
}

// Acquire tries, in order: direct no-referrer fetch of the normalized
// URL, delegated page-context fetch of the normalized then the original
// URL, each attempt bounded by a timeout. The first success wins; the
// last classified error is returned otherwise.
func (a *Acquirer) Acquire(ctx context.Context, cand Candidate) (*Fetched, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	img, lastErr := a.Direct.Fetch(ctx, cand.BestURL())
	if lastErr == nil {
		return img, nil
	}

	if a.Delegate != nil {
		urls := []string{cand.NormalizedURL, cand.SourceURL}
		seen := map[string]bool{}
		for _, u := range urls {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			img, err := a.Delegate.FetchImage(attemptCtx, u)
			cancel()
			if err == nil {
				return img, nil
			}
			lastErr = err
			if ctx.Err() != nil {
				break
			}
		}
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, failf(FailureTimeoutOrNet, "acquire %s: %w", cand.ID, lastErr)
	}
	return nil, fmt.Errorf("acquire %s: %w", cand.ID, lastErr)
}
