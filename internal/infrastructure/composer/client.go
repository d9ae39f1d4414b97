package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ozonscraper/backend/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// maxBodySize caps how much of a response we read (page JSON is large but bounded)
const maxBodySize = 8 << 20

// Client talks to the storefront page JSON API that backs product detail pages
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiPath     string
	maxAttempts int
	userAgent   string
	rateLimiter *rate.Limiter
	backoff     func(attempt int) time.Duration
	debug       bool
	logger      *logrus.Entry
}

// ClientConfig holds composer API client settings
type ClientConfig struct {
	BaseURL     string
	APIPath     string
	Timeout     time.Duration
	MaxAttempts int
	UserAgent   string
}

// NewClient creates a new composer API client
func NewClient(cfg ClientConfig, logger *logrus.Entry) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	// Keep detail lookups polite: 5 requests/sec with a small burst
	limiter := rate.NewLimiter(rate.Limit(5), 5)

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiPath:     cfg.APIPath,
		maxAttempts: cfg.MaxAttempts,
		userAgent:   cfg.UserAgent,
		rateLimiter: limiter,
		backoff:     exponentialBackoff,
		logger:      logger.WithField("component", "composer"),
	}
}

// SetDebug enables verbose request logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

func (c *Client) debugLog(format string, args ...interface{}) {
	if c.debug {
		c.logger.Debugf(format, args...)
	}
}

// exponentialBackoff returns the wait before retry number attempt (1-based)
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// readLimitedBody reads at most limit bytes from r
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDetailsAPIFailure, err)
	}
	return resp, nil
}

// GetProductDetails fetches the page JSON for productPath (e.g. "/product/mylo-148297315/").
// 404 maps to domain.ErrProductNotFound; 5xx, 429 and transport errors are retried.
func (c *Client) GetProductDetails(ctx context.Context, productPath string) (*domain.ProductDetails, error) {
	reqURL := c.baseURL + c.apiPath + url.QueryEscape(productPath)
	c.debugLog("GetProductDetails %s", reqURL)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			c.debugLog("request error (attempt %d): %v", attempt, err)
			lastErr = err
			continue
		}

		body, readErr := readLimitedBody(resp.Body, maxBodySize)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, domain.ErrProductNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.debugLog("API error (attempt %d): status %d", attempt, resp.StatusCode)
			lastErr = fmt.Errorf("%w: status %d", domain.ErrDetailsAPIFailure, resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("%w: status %d", domain.ErrDetailsAPIFailure, resp.StatusCode)
		}

		if readErr != nil {
			lastErr = fmt.Errorf("%w: %v", domain.ErrDetailsAPIFailure, readErr)
			continue
		}

		var page PageResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return MapToProductDetails(&page)
	}

	c.logger.WithError(lastErr).WithField("path", productPath).Warn("all detail attempts failed")
	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
