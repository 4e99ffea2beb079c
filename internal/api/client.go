// Package api is the REST collaborator client: persistence, polling, and the
// thin request/response endpoints around the sync core.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/observerhq/observer/internal/storage"
	"github.com/observerhq/observer/pkg/logger"
)

const (
	// defaultHTTPTimeout is the per-request timeout.
	defaultHTTPTimeout = 15 * time.Second
	// refreshWindow triggers a proactive token refresh when the access token
	// expires this soon.
	refreshWindow = 30 * time.Second
)

// CredentialStore abstracts persisted token storage.
type CredentialStore interface {
	Save(storage.Credentials) error
	Load() (storage.Credentials, error)
}

// Client talks to the Observer REST API with bearer authentication and a
// single refresh-and-retry on 401.
type Client struct {
	baseURL string
	http    *http.Client
	store   CredentialStore

	mu    sync.Mutex
	creds storage.Credentials
}

// NewClient creates a REST client. store may be nil for unauthenticated use
// (login only).
func NewClient(baseURL string, store CredentialStore) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		store:   store,
	}
	if store != nil {
		if creds, err := store.Load(); err == nil {
			c.creds = creds
		}
	}
	return c
}

// AccessToken returns the current access token, refreshing proactively when
// it is about to expire. Returns "" when unauthenticated.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	token := c.creds.AccessToken
	refresh := c.creds.RefreshToken
	c.mu.Unlock()

	if token == "" {
		return ""
	}
	if expiring, _ := isTokenExpiringSoon(token, refreshWindow); expiring && refresh != "" {
		if err := c.refreshAccess(); err != nil {
			logger.Warnf("api: proactive token refresh failed: %v", err)
		}
		c.mu.Lock()
		token = c.creds.AccessToken
		c.mu.Unlock()
	}
	return token
}

// SetCredentials installs a token pair (after login) and persists it.
func (c *Client) SetCredentials(creds storage.Credentials) error {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	if c.store != nil {
		return c.store.Save(creds)
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Code, e.Body)
}

// do issues one JSON request. On a 401 it refreshes the access token once and
// retries the original request, mirroring the interceptor behavior the web
// client had.
func (c *Client) do(method, path string, body, out any) error {
	resp, err := c.roundTrip(method, path, body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		if err := c.refreshAccess(); err != nil {
			return fmt.Errorf("api: unauthorized and refresh failed: %w", err)
		}
		resp, err = c.roundTrip(method, path, body)
		if err != nil {
			return err
		}
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) roundTrip(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	token := c.creds.AccessToken
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// refreshAccess exchanges the refresh token for a new access token.
func (c *Client) refreshAccess() error {
	c.mu.Lock()
	refresh := c.creds.RefreshToken
	c.mu.Unlock()
	if refresh == "" {
		return fmt.Errorf("no refresh token")
	}

	// Bypass do(): the refresh call itself must not recurse into refresh.
	resp, err := c.roundTrip(http.MethodPost, "/api/auth/token/refresh/", map[string]string{"refresh": refresh})
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}
	var payload struct {
		Access string `json:"access"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if payload.Access == "" {
		return fmt.Errorf("refresh response missing access token")
	}

	c.mu.Lock()
	c.creds.AccessToken = payload.Access
	creds := c.creds
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Save(creds); err != nil {
			logger.Warnf("api: failed to persist refreshed token: %v", err)
		}
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
