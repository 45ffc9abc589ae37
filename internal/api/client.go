package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oneauth/internal/intent"
)

// Client talks to the credential/session server. All requests carry the
// x-client-id header when a client identifier is configured.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
}

// New builds a Client for the given API base URL.
func New(baseURL, clientID string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithHTTPClient is for tests and embedders with custom transports.
func NewWithHTTPClient(baseURL, clientID string, hc *http.Client) *Client {
	c := New(baseURL, clientID)
	c.http = hc
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return intent.E(intent.CodeInvalidRequest, "encode request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return intent.E(intent.CodeInvalidRequest, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.clientID != "" {
		req.Header.Set("x-client-id", c.clientID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return intent.E(intent.CodeNetworkError, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return intent.E(intent.CodeNetworkError, "read response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.mapError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return intent.E(intent.CodeNetworkError, "decode response: %v", err)
	}
	return nil
}

// mapError turns a non-2xx response into a coded error. A message reporting
// a missing user record maps to USER_NOT_FOUND so callers can invalidate the
// stored user.
func (c *Client) mapError(status int, raw []byte) error {
	var body errorResponse
	_ = json.Unmarshal(raw, &body)

	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("http %d", status)
	}

	code := body.Code
	if code == "" {
		switch {
		case IsUserNotFound(msg):
			code = intent.CodeUserNotFound
		case status == http.StatusBadRequest:
			code = intent.CodeInvalidRequest
		default:
			code = intent.CodeNetworkError
		}
	}
	return intent.E(code, "%s", msg)
}

// IsUserNotFound reports whether an error message indicates the user record
// is gone on the server.
func IsUserNotFound(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "user not found")
}

// PrepareIntent calls POST /api/intent/prepare.
func (c *Client) PrepareIntent(ctx context.Context, req PrepareRequest) (*PrepareResponse, error) {
	var out PrepareResponse
	if err := c.do(ctx, http.MethodPost, "/api/intent/prepare", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteIntent calls POST /api/intent/execute.
func (c *Client) ExecuteIntent(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	var out ExecuteResponse
	if err := c.do(ctx, http.MethodPost, "/api/intent/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchPrepare calls POST /api/intent/batch-prepare.
func (c *Client) BatchPrepare(ctx context.Context, req BatchPrepareRequest) (*BatchPrepareResponse, error) {
	var out BatchPrepareResponse
	if err := c.do(ctx, http.MethodPost, "/api/intent/batch-prepare", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IntentStatus calls GET /api/intent/status/{id}.
func (c *Client) IntentStatus(ctx context.Context, intentID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/intent/status/"+url.PathEscape(intentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IntentHistory calls GET /api/intent/history.
func (c *Client) IntentHistory(ctx context.Context, username string) ([]HistoryEntry, error) {
	path := "/api/intent/history"
	if username != "" {
		path += "?username=" + url.QueryEscape(username)
	}
	var out []HistoryEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserAccount calls GET /api/users/{username}/account.
func (c *Client) UserAccount(ctx context.Context, username string) (*AccountResponse, error) {
	var out AccountResponse
	if err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(username)+"/account", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserPasskeys calls GET /api/users/{username}/passkeys.
func (c *Client) UserPasskeys(ctx context.Context, username string) ([]Passkey, error) {
	var out []Passkey
	if err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(username)+"/passkeys", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserPortfolio calls GET /api/users/{username}/portfolio.
func (c *Client) UserPortfolio(ctx context.Context, username string) ([]PortfolioEntry, error) {
	var out []PortfolioEntry
	if err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(username)+"/portfolio", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSignRequest calls POST /api/sign/request (redirect-mode flows).
func (c *Client) CreateSignRequest(ctx context.Context, req SignRequestBody) (*SignRequestResult, error) {
	var out SignRequestResult
	if err := c.do(ctx, http.MethodPost, "/api/sign/request", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSignRequest calls GET /api/sign/request/{id}.
func (c *Client) GetSignRequest(ctx context.Context, requestID string) (*SignRequestResult, error) {
	var out SignRequestResult
	if err := c.do(ctx, http.MethodGet, "/api/sign/request/"+url.PathEscape(requestID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
