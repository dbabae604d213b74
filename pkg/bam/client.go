package bam

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/netgrove/bamsync/internal/logger"
)

// Config holds the client connection settings.
type Config struct {
	// URL is the Address Manager base URL (scheme + host).
	URL string

	// Username and Password authenticate the session exchange.
	Username string
	Password string

	// APIVersion selects the REST API version path segment. Default "v2".
	APIVersion string

	// VerifySSL controls TLS certificate verification. Default true.
	VerifySSL bool

	// Timeout is the per-request timeout. Default 30s.
	Timeout time.Duration

	// MaxConnections caps the socket count to the server. Default 50.
	MaxConnections int

	// MaxKeepalive caps idle pooled connections. Default 20.
	MaxKeepalive int

	// AllowDangerous permits deletion of protected kinds.
	AllowDangerous bool

	// RetryBase, RetryCap, and RetryAttempts tune the transient-error
	// backoff. Defaults: 1s, 10s, 3.
	RetryBase     time.Duration
	RetryCap      time.Duration
	RetryAttempts int

	// RateLimitRetries caps dedicated 429 retries. Default 3.
	// RateLimitDefaultWait applies when the server omits Retry-After.
	RateLimitRetries     int
	RateLimitDefaultWait time.Duration
}

// applyDefaults fills unset tuning knobs.
func (c *Config) applyDefaults() {
	if c.APIVersion == "" {
		c.APIVersion = "v2"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 50
	}
	if c.MaxKeepalive == 0 {
		c.MaxKeepalive = 20
	}
	if c.RetryBase == 0 {
		c.RetryBase = time.Second
	}
	if c.RetryCap == 0 {
		c.RetryCap = 10 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RateLimitRetries == 0 {
		c.RateLimitRetries = 3
	}
	if c.RateLimitDefaultWait == 0 {
		c.RateLimitDefaultWait = 5 * time.Second
	}
}

// Client is the Address Manager API client. It is safe for concurrent use;
// authentication is serialized internally.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client

	auth authState
}

// New creates a client from the given configuration. No network traffic
// happens until the first request.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("server URL must not be empty")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("username and password are required when a server URL is set")
	}
	cfg.applyDefaults()

	transport := &http.Transport{
		MaxConnsPerHost:     cfg.MaxConnections,
		MaxIdleConnsPerHost: cfg.MaxKeepalive,
		IdleConnTimeout:     90 * time.Second,
	}
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		cfg:     cfg,
		baseURL: fmt.Sprintf("%s/api/%s", trimSlash(cfg.URL), cfg.APIVersion),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}, nil
}

// AllowDangerous reports whether protected-kind deletion is permitted.
func (c *Client) AllowDangerous() bool {
	return c.cfg.AllowDangerous
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// do performs one logical request with the full retry policy: transient
// errors use exponential backoff, a 401 forces at most one
// re-authentication, and 429 honours Retry-After up to a dedicated retry
// budget.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reauthed bool
	var rateRetries int
	var attempts int

	attempt := func() error {
		if attempts > 0 {
			markRetry(ctx)
		}
		attempts++
		for {
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}
			if err := c.ensureAuthenticated(ctx); err != nil {
				return backoff.Permanent(err)
			}

			status, respBody, header, err := c.send(ctx, method, endpoint, payload)
			if err != nil {
				if retryable(err) {
					return err // retried by the backoff policy
				}
				return backoff.Permanent(err)
			}

			switch {
			case status == http.StatusUnauthorized:
				if reauthed {
					return backoff.Permanent(fmt.Errorf("%s %s: %w", method, path, ErrAuthFailed))
				}
				reauthed = true
				c.invalidateSession()
				markRetry(ctx)
				logger.Debug("session expired, re-authenticating", "endpoint", path)
				continue

			case status == http.StatusTooManyRequests:
				rateRetries++
				if rateRetries > c.cfg.RateLimitRetries {
					return backoff.Permanent(fmt.Errorf("%s %s: %w", method, path, ErrRateLimitExhausted))
				}
				wait := retryAfter(header, c.cfg.RateLimitDefaultWait)
				markRetry(ctx)
				logger.Warn("rate limited, waiting",
					"endpoint", path, "wait", wait.String(), "attempt", rateRetries)
				if err := sleepCtx(ctx, wait); err != nil {
					return backoff.Permanent(err)
				}
				continue

			case status >= 400:
				apiErr := &APIError{
					Kind:       classifyStatus(status),
					StatusCode: status,
					Message:    errorMessage(respBody),
					Endpoint:   path,
				}
				if apiErr.Kind == KindTransientNetwork {
					return apiErr // 5xx: retried by the backoff policy
				}
				return backoff.Permanent(apiErr)
			}

			if result != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, result); err != nil {
					return backoff.Permanent(fmt.Errorf("failed to decode response from %s: %w", path, err))
				}
			}
			return nil
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBase
	bo.MaxInterval = c.cfg.RetryCap
	bo.RandomizationFactor = 0.2

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.RetryAttempts-1)), ctx)
	return backoff.Retry(attempt, policy)
}

// send performs a single HTTP round trip and drains the response body.
func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, http.Header, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/hal+json")
	req.Header.Set("Accept", "application/hal+json")
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, respBody, resp.Header, nil
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(body []byte) string {
	var decoded struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	if json.Unmarshal(body, &decoded) == nil {
		if decoded.Message != "" {
			return decoded.Message
		}
		if decoded.Reason != "" {
			return decoded.Reason
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// retryAfter parses the Retry-After header (seconds form), falling back to
// the configured default.
func retryAfter(header http.Header, fallback time.Duration) time.Duration {
	if header == nil {
		return fallback
	}
	raw := header.Get("Retry-After")
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
