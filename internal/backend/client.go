// Package backend talks to the business REST API that owns every record the
// dashboard displays.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 20 * time.Second

// Client is a minimal JSON client for the backend API.
type Client struct {
	baseURL    string
	loginPath  string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLoginPath overrides the login endpoint path.
func WithLoginPath(path string) Option {
	return func(c *Client) {
		if path = strings.TrimSpace(path); path != "" {
			c.loginPath = path
		}
	}
}

// NewClient constructs a backend client.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: empty base url")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:    baseURL,
		loginPath:  "/api/web-login",
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// DoJSON issues an authenticated request and decodes the JSON response into out.
func (c *Client) DoJSON(ctx context.Context, creds Credentials, method, path string, body, out any) error {
	if creds.Empty() {
		return ErrNoCredentials
	}
	resp, err := c.do(ctx, creds, method, path, body, "application/json")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrDecode, method, path, err)
	}
	return nil
}

// Download posts body to path and returns the raw response payload with its
// content type.
func (c *Client) Download(ctx context.Context, creds Credentials, path string, body any) ([]byte, string, error) {
	if creds.Empty() {
		return nil, "", ErrNoCredentials
	}
	resp, err := c.do(ctx, creds, http.MethodPost, path, body, "*/*")
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %v", ErrTransport, path, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	UserInfo struct {
		Token string `json:"token"`
	} `json:"UserInfo"`
}

// Login exchanges username and password for backend credentials.
func (c *Client) Login(ctx context.Context, username, password string) (Credentials, error) {
	resp, err := c.do(ctx, Credentials{}, http.MethodPost, c.loginPath, loginRequest{Username: username, Password: password}, "application/json")
	if err != nil {
		return Credentials{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	var payload loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Credentials{}, fmt.Errorf("%w: login: %v", ErrDecode, err)
	}
	token := payload.Token
	if token == "" {
		token = payload.UserInfo.Token
	}
	if strings.TrimSpace(token) == "" {
		return Credentials{}, ErrUnauthorized
	}
	return ParseToken(token), nil
}

func (c *Client) do(ctx context.Context, creds Credentials, method, path string, body any, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	if !creds.Empty() {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		_ = resp.Body.Close()
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}
	return resp, nil
}
