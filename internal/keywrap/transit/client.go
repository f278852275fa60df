// Package transit is a client for a Vault-transit style key management
// service that wraps and unwraps data keys under a per-principal named key.
package transit

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTimeout = 5 * time.Second

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transit %s: unexpected status %d", e.Op, e.StatusCode)
}

// Rejected reports whether the service refused the input itself rather than
// failing to process it.
func (e *StatusError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != http.StatusRequestTimeout && e.StatusCode != http.StatusTooManyRequests
}

// Client talks to {baseURL}/transit/{encrypt,decrypt}/{principalID}.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithToken sends token in the X-Vault-Token header.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type encryptRequest struct {
	Plaintext string `json:"plaintext"`
}

type decryptRequest struct {
	Ciphertext string `json:"ciphertext"`
}

// The service may answer with a flat body or with a Vault-style "data"
// envelope; both are accepted.
type encryptResponse struct {
	Ciphertext string `json:"ciphertext"`
	Data       struct {
		Ciphertext string `json:"ciphertext"`
	} `json:"data"`
}

type decryptResponse struct {
	Plaintext string `json:"plaintext"`
	Data      struct {
		Plaintext string `json:"plaintext"`
	} `json:"data"`
}

// Wrap encrypts key under principalID's named key.
func (c *Client) Wrap(ctx context.Context, key []byte, principalID string) ([]byte, error) {
	var resp encryptResponse
	req := encryptRequest{Plaintext: base64.StdEncoding.EncodeToString(key)}
	if err := c.post(ctx, "encrypt", principalID, req, &resp); err != nil {
		return nil, err
	}
	ct := firstNonEmpty(resp.Ciphertext, resp.Data.Ciphertext)
	if ct == "" {
		return nil, errors.New("transit encrypt: empty ciphertext")
	}
	out, err := base64.StdEncoding.DecodeString(ct)
	if err != nil {
		return nil, fmt.Errorf("transit encrypt: decode ciphertext: %w", err)
	}
	return out, nil
}

// Unwrap decrypts a blob produced by Wrap for the same principal.
func (c *Client) Unwrap(ctx context.Context, wrapped []byte, principalID string) ([]byte, error) {
	var resp decryptResponse
	req := decryptRequest{Ciphertext: base64.StdEncoding.EncodeToString(wrapped)}
	if err := c.post(ctx, "decrypt", principalID, req, &resp); err != nil {
		return nil, err
	}
	pt := firstNonEmpty(resp.Plaintext, resp.Data.Plaintext)
	if pt == "" {
		return nil, errors.New("transit decrypt: empty plaintext")
	}
	out, err := base64.StdEncoding.DecodeString(pt)
	if err != nil {
		return nil, fmt.Errorf("transit decrypt: decode plaintext: %w", err)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, op, principalID string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("transit %s: encode request: %w", op, err)
	}
	endpoint := c.baseURL + "/transit/" + op + "/" + url.PathEscape(principalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("transit %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Vault-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transit %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Op: op, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("transit %s: decode response: %w", op, err)
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
