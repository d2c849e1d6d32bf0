// Package keyservice implements the decryption capability by delegating to
// a remote key service over HTTP.
package keyservice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

// DecryptPath is the endpoint the client posts to, relative to the base URL.
const DecryptPath = "/v1/decrypt"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// Compile-time interface satisfaction check.
var _ driven.Decrypter = (*Client)(nil)

// DecryptRequest is the body posted to the key service.
type DecryptRequest struct {
	Ciphertext string `json:"ciphertext"`
	Key        string `json:"key"`
}

// DecryptResponse is the body returned by the key service on success.
type DecryptResponse struct {
	Plaintext string `json:"plaintext"`
}

// Client talks to a remote key service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for the key service at baseURL. token is sent
// as a bearer token when non-empty. A nil httpClient gets a default one with
// a 30s timeout; callers normally bound each call with a context instead.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// SetRateLimit caps outbound decrypt calls at perSecond requests per second
// with no burst. Zero or less removes the cap. Must be called before the
// client is shared.
func (c *Client) SetRateLimit(perSecond float64) {
	if perSecond <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// BaseURL returns the configured key service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Decrypt posts the ciphertext and key material to the key service. A 401,
// 403 or 422 answer means the key was rejected; any other failure to get a
// plaintext back means the capability is unavailable.
func (c *Client) Decrypt(ctx context.Context, ciphertext []byte, keyMaterial string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("keyservice: wait for rate limit: %w", ctxErr)
			}
			// The wait would outlast the deadline.
			return "", fmt.Errorf("keyservice: wait for rate limit: %w", context.DeadlineExceeded)
		}
	}

	body, err := json.Marshal(DecryptRequest{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Key:        keyMaterial,
	})
	if err != nil {
		return "", fmt.Errorf("keyservice: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+DecryptPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("keyservice: create request: %w: %w", driven.ErrCapabilityUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("keyservice: send request: %w", ctxErr)
		}
		return "", fmt.Errorf("keyservice: send request: %w: %w", driven.ErrCapabilityUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("keyservice: read response: %w", ctxErr)
		}
		return "", fmt.Errorf("keyservice: read response: %w: %w", driven.ErrCapabilityUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
		return "", fmt.Errorf("keyservice: status %d: %w", resp.StatusCode, driven.ErrWrongKey)
	default:
		return "", fmt.Errorf("keyservice: unexpected status %d: %w", resp.StatusCode, driven.ErrCapabilityUnavailable)
	}

	var out DecryptResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("keyservice: decode response: %w: %w", driven.ErrCapabilityUnavailable, err)
	}

	return out.Plaintext, nil
}
