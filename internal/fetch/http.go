package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
)

const (
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "mscbundle/1.0"
	// DefaultBackoff is the delay before the first retry; it doubles per
	// attempt.
	DefaultBackoff = time.Second

	maxRedirects = 10
)

// HTTPOptions tunes the downloader. The zero value blocks until the server
// is done and never retries.
type HTTPOptions struct {
	Timeout   time.Duration
	Retries   int
	Backoff   time.Duration
	UserAgent string
}

// HTTP downloads single files with GET requests.
type HTTP struct {
	client    *http.Client
	userAgent string
	retries   int
	backoff   time.Duration
	logger    config.Logger
}

// NewHTTP creates a downloader.
func NewHTTP(opts HTTPOptions, logger config.Logger) *HTTP {
	h := &HTTP{
		client: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		retries:   opts.Retries,
		backoff:   opts.Backoff,
		logger:    config.OrNop(logger),
	}
	if h.userAgent == "" {
		h.userAgent = DefaultUserAgent
	}
	if h.backoff <= 0 {
		h.backoff = DefaultBackoff
	}
	return h
}

// Download fetches url into destPath. The body is written to a temporary
// file next to destPath and renamed into place, so destPath only appears
// once the download completed.
func (h *HTTP) Download(ctx context.Context, url, destPath string) error {
	var lastErr error

	for attempt := 0; attempt <= h.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			backoff := h.backoff * time.Duration(1<<uint(attempt-1))
			h.logger.Warn("download failed, retrying", "url", url, "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		start := time.Now()
		n, err := h.downloadOnce(ctx, url, destPath)
		if err == nil {
			h.logger.Info("downloaded", "url", url, "path", destPath, "bytes", n, "elapsed", time.Since(start).Round(time.Millisecond))
			return nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if h.retries == 0 {
		return fmt.Errorf("download %s: %w", url, lastErr)
	}
	return fmt.Errorf("download %s failed after %d retries: %w", url, h.retries, lastErr)
}

func (h *HTTP) downloadOnce(ctx context.Context, url, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmpFile, resp.Body)
	if err != nil {
		return n, fmt.Errorf("copy response body: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return n, fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return n, nil
}
