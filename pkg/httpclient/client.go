// Package httpclient is a client for the bridge admin API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNotAuthenticated is returned by calls that need a token before
// Authenticate succeeded
var ErrNotAuthenticated = errors.New("client not authenticated - call Authenticate() first")

// Client provides HTTP client for the bridge admin API
type Client struct {
	config     Config
	httpClient *http.Client
	token      string
	isAdmin    bool
	baseURL    *url.URL
}

// NewClient creates a new admin API client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("ClientID is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// Authenticate logs in and stores the token
func (c *Client) Authenticate(ctx context.Context) error {
	req := AuthRequest{
		ClientID: c.config.ClientID,
		Secret:   c.config.AdminSecret,
	}

	var resp AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp, false); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	c.token = resp.Token
	c.isAdmin = resp.IsAdmin
	return nil
}

// GetHealth returns the health of the bridge. An unhealthy bridge answers
// 503 with a full status, which is returned without error.
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp, false)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		if jsonErr := json.Unmarshal(apiErr.Body, &resp); jsonErr == nil {
			return &resp, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get health status: %w", err)
	}
	return &resp, nil
}

// ListRoutes returns every route of the bridge
func (c *Client) ListRoutes(ctx context.Context) (*RoutesResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp RoutesResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/routes", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	return &resp, nil
}

// ListEvents reads a page of the route journal
func (c *Client) ListEvents(ctx context.Context, q EventsQuery) (*EventsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	params := url.Values{}
	if q.Key != "" {
		params.Set("key", q.Key)
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.FormatInt(q.Offset, 10))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/v1/events"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp EventsResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return &resp, nil
}

// AdminGetStats returns the control loop counters (admin only)
func (c *Client) AdminGetStats(ctx context.Context) (*AdminStatsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp AdminStatsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/stats", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &resp, nil
}

// IsAuthenticated returns whether the client has a token
func (c *Client) IsAuthenticated() bool {
	return c.token != ""
}

// IsAdmin returns whether the last login granted admin access
func (c *Client) IsAdmin() bool {
	return c.isAdmin
}

// GetToken returns the current authentication token
func (c *Client) GetToken() string {
	return c.token
}

// SetToken sets the authentication token (useful for testing or token reuse)
func (c *Client) SetToken(token string) {
	c.token = token
}

// doRequest performs an HTTP request with optional authentication. GET
// requests are retried with backoff when the server cannot be reached.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody, respBody any, requireAuth bool) error {
	var jsonBody []byte
	if reqBody != nil {
		var err error
		if jsonBody, err = json.Marshal(reqBody); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid request path %q: %w", path, err)
	}
	fullURL := c.baseURL.ResolveReference(ref)

	attempts := 1
	if method == http.MethodGet {
		attempts += c.config.MaxRetries
	}
	backoff := c.config.RetryBackoff

	var resp *http.Response
	for attempt := 1; ; attempt++ {
		var bodyReader io.Reader
		if jsonBody != nil {
			bodyReader = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if requireAuth && c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err = c.httpClient.Do(req)
		if err == nil {
			break
		}
		if attempt >= attempts || ctx.Err() != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("request failed: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: bodyBytes}
		var errResp ErrorResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil {
			apiErr.Message = errResp.Message
		}
		return apiErr
	}

	if respBody != nil {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
