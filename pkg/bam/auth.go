package bam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/netgrove/bamsync/internal/logger"
)

// session holds the credentials returned by the session exchange: an
// opaque API token and a pre-encoded basic-credential blob. Requests read
// the slot lock-free; only authenticate writes it.
type session struct {
	token     string
	basicCred string
}

// authState serializes authentication. Any goroutine that finds the
// credential slot empty takes the mutex, re-checks the slot, and either
// authenticates or proceeds with the fresh session another goroutine
// installed. K concurrent 401 recoveries therefore produce exactly one
// session exchange.
type authState struct {
	mu   sync.Mutex
	slot atomic.Pointer[session]
}

// current returns the session slot without locking.
func (c *Client) currentSession() *session {
	return c.auth.slot.Load()
}

// ensureAuthenticated installs a session if the slot is empty.
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if c.auth.slot.Load() != nil {
		return nil
	}

	c.auth.mu.Lock()
	defer c.auth.mu.Unlock()

	// Double-checked: another goroutine may have authenticated while we
	// waited for the mutex.
	if c.auth.slot.Load() != nil {
		return nil
	}

	sess, err := c.authenticate(ctx)
	if err != nil {
		return err
	}
	c.auth.slot.Store(sess)
	return nil
}

// invalidateSession clears the credential slot so the next request
// re-authenticates. Concurrent invalidations are harmless.
func (c *Client) invalidateSession() {
	c.auth.slot.Store(nil)
}

// authenticate performs the session exchange. Callers must hold auth.mu.
func (c *Client) authenticate(ctx context.Context) (*session, error) {
	payload, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	endpoint := c.baseURL + "/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindTransientNetwork, Message: err.Error(), Endpoint: "/sessions"}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindTransientNetwork, Message: err.Error(), Endpoint: "/sessions"}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &APIError{
			Kind:       KindAuthExpired,
			StatusCode: resp.StatusCode,
			Message:    "invalid credentials",
			Endpoint:   "/sessions",
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			Endpoint:   "/sessions",
		}
	}

	var decoded struct {
		APIToken                       string `json:"apiToken"`
		BasicAuthenticationCredentials string `json:"basicAuthenticationCredentials"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	if decoded.APIToken == "" && decoded.BasicAuthenticationCredentials == "" {
		return nil, &APIError{Kind: KindAuthExpired, Message: "session response carried no credentials", Endpoint: "/sessions"}
	}

	logger.Debug("authenticated against address manager", "endpoint", "/sessions")
	return &session{
		token:     decoded.APIToken,
		basicCred: decoded.BasicAuthenticationCredentials,
	}, nil
}

// setAuthHeader attaches the current session credentials to a request.
// The basic-credential blob takes precedence; some endpoints only accept
// the token form.
func (c *Client) setAuthHeader(req *http.Request) {
	sess := c.currentSession()
	if sess == nil {
		return
	}
	if sess.basicCred != "" {
		req.Header.Set("Authorization", "Basic "+sess.basicCred)
		return
	}
	req.Header.Set("Authorization", "Bearer "+sess.token)
}
