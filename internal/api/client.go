package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Retry and backoff constants.
const (
	defaultMaxRetries = 3
	baseBackoff       = 1 * time.Second
	maxBackoff        = 60 * time.Second
	backoffFactor     = 2.0
	jitterFraction    = 0.25
)

// TokenProvider supplies bearer tokens for authenticated requests.
// Defined at the consumer (api package) per Go convention "accept
// interfaces, return structs". The session manager provides the real
// implementation and may refresh the token before returning it, so the
// call can block on network I/O.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client is an HTTP client for the Stratus platform API.
// It handles request construction, authentication, retry with
// exponential backoff, and error classification.
type Client struct {
	baseURL    string
	userAgent  string
	maxRetries int
	httpClient *http.Client
	tokens     TokenProvider
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Stratus API client. baseURL is the service root,
// e.g. "https://api.stratus.example.com/v1". maxRetries <= 0 selects the
// default. The token provider is attached separately via SetTokenProvider
// because the session manager that implements it needs the client first.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, userAgent string, maxRetries int) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		maxRetries: maxRetries,
		httpClient: httpClient,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// SetTokenProvider attaches the bearer token source for authenticated
// requests. Must be called before the first authenticated request.
func (c *Client) SetTokenProvider(tp TokenProvider) {
	c.tokens = tp
}

// BaseURL returns the service root the client was constructed with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes an authenticated HTTP request against the platform API.
// The path is appended to the client's base URL. A non-nil body is sent
// as application/json; it is kept as a byte slice so retries can replay
// it. The caller is responsible for closing the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	return c.doRetry(ctx, method, path, body, true)
}

// doPreAuth executes a request without a bearer token. Used by the
// credential exchange endpoints, which run before a session exists.
func (c *Client) doPreAuth(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	return c.doRetry(ctx, method, path, body, false)
}

func (c *Client) doRetry(ctx context.Context, method, path string, body []byte, authed bool) (*http.Response, error) {
	url := c.baseURL + path

	var attempt int
	for {
		reqID := uuid.NewString()

		resp, err := c.doOnce(ctx, method, url, body, reqID, authed)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
			}

			// Network errors are retryable.
			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.String("request_id", reqID),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("api: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("api: %s %s failed after %d retries: %w: %w", method, path, c.maxRetries, ErrUnreachable, err)
		}

		// 2xx: success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		// Read and close body for error responses.
		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		// The server echoes request IDs back; fall back to ours so the
		// failure stays correlatable even when it doesn't.
		if serverID := resp.Header.Get("request-id"); serverID != "" {
			reqID = serverID
		}

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.String("request_id", reqID),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("api: request canceled: %w", err)
			}

			attempt++

			continue
		}

		sentinel := classifyStatus(resp.StatusCode)
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  reqID,
			Message:    string(errBody),
			Err:        sentinel,
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("path", path),
				slog.String("request_id", reqID),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, apiErr
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, reqID string, authed bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if authed {
		if c.tokens == nil {
			return nil, fmt.Errorf("api: no token provider configured")
		}

		tok, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("obtaining token: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+tok)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", reqID)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	// Apply ±25% jitter.
	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
