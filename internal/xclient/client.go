// Package xclient is the HTTP transport for the X API v2. It owns
// authentication, pacing, and retries; response bodies come back raw
// and are decoded by the parse package.
package xclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/elfofmaxwell/sui-twitter-db/internal/metrics"
)

// Getter is the part of the transport the fetchers consume.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// Client is a bearer-token client for the X API v2.
type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
	limiter     Waiter
	maxAttempts int
	baseBackoff time.Duration
}

// Waiter paces outgoing requests.
type Waiter interface {
	Wait(ctx context.Context) error
}

func New(bearerToken string) *Client {
	return &Client{
		baseURL:     "https://api.twitter.com/2",
		bearerToken: bearerToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("TWITTER_API_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("TWITTER_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

func (c *Client) auth(req *http.Request) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	req.Header.Set("Accept", "application/json")
}

// Get issues an authenticated GET for path (e.g. "/users/by") with the
// given query parameters and returns the raw response body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("x api %s: status %d", path, resp.StatusCode)
	}
	return body, nil
}

// doWithRetry retries on transport errors, 429, and 5xx with capped
// exponential backoff, honoring Retry-After when present.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncAPIRetry(endpoint)
		}
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				lastErr = fmt.Errorf("x api %s: status %d", endpoint, resp.StatusCode)
				wait := retryWait(resp, backoff)
				_ = resp.Body.Close()
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func retryWait(resp *http.Response, fallback time.Duration) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(ra); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
