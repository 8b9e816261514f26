// Package api is the authenticated request client for the match service
// HTTP endpoints. Every call carries the stored bearer token; a 401 is
// retried exactly once after refreshing the token pair.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"uniqsocial/client/internal/credentials"
	"uniqsocial/client/internal/models"
)

var (
	// ErrUnauthorized matches any *StatusError carrying 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoRefreshToken is returned when a refresh is needed but none is stored.
	ErrNoRefreshToken = errors.New("no refresh token")
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Client talks to {baseURL}/api.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  credentials.TokenStore

	refreshMu sync.Mutex
}

// NewClient builds a client for the server at baseURL (scheme://host[:port]).
func NewClient(baseURL string, tokens credentials.TokenStore, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/") + "/api",
		HTTP:    &http.Client{Timeout: timeout},
		Tokens:  tokens,
	}
}

// Do sends an authorized request. On 401 it refreshes the token pair and
// retries once; if the refresh is impossible or the retry is also
// rejected, stored credentials are cleared and the 401 is returned.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	payload, err := encode(in)
	if err != nil {
		return err
	}

	err = c.send(ctx, method, path, payload, out, true)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	if refreshErr := c.refresh(ctx); refreshErr != nil {
		log.Printf("WARNING: token refresh failed for %s %s: %v", method, path, refreshErr)
		c.clearTokens(ctx)
		return err
	}

	err = c.send(ctx, method, path, payload, out, true)
	if errors.Is(err, ErrUnauthorized) {
		c.clearTokens(ctx)
	}
	return err
}

// doPublic sends a request without credentials and without the refresh path.
func (c *Client) doPublic(ctx context.Context, method, path string, in, out any) error {
	payload, err := encode(in)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, payload, out, false)
}

func (c *Client) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	tokens, err := c.Tokens.Tokens(ctx)
	if err != nil {
		return err
	}
	if tokens.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	var fresh models.TokenPair
	err = c.doPublic(ctx, http.MethodPost, "/auth/refresh", models.RefreshRequest{RefreshToken: tokens.RefreshToken}, &fresh)
	if err != nil {
		return err
	}
	return c.Tokens.SetTokens(ctx, fresh)
}

func (c *Client) clearTokens(ctx context.Context) {
	if err := c.Tokens.Clear(ctx); err != nil {
		log.Printf("ERROR: failed to clear stored credentials: %v", err)
	}
}

func encode(in any) ([]byte, error) {
	if in == nil {
		return nil, nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any, authorized bool) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if authorized {
		tokens, err := c.Tokens.Tokens(ctx)
		if err != nil {
			return fmt.Errorf("read credentials: %w", err)
		}
		if tokens.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &StatusError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
