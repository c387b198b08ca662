package httpclient

import (
	"fmt"
	"time"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bridge"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/eventlog"
)

// Config holds client configuration
type Config struct {
	// ServerURL is the base URL of the bridge admin API (e.g., "http://localhost:8000")
	ServerURL string

	// ClientID is the identifier for this client
	ClientID string

	// AdminSecret, when set, is presented at login to obtain an admin token
	AdminSecret string

	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxRetries for GET requests that fail before reaching the server
	MaxRetries int

	// RetryBackoff is the wait before the first retry, doubled each attempt
	RetryBackoff time.Duration
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}

// AuthRequest represents a login request
type AuthRequest struct {
	ClientID string `json:"clientId"`
	Secret   string `json:"secret,omitempty"`
}

// AuthResponse represents the response from authentication
type AuthResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"clientId"`
	IsAdmin   bool      `json:"isAdmin"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RoutesResponse lists the bridge routes
type RoutesResponse struct {
	Routes        []bridge.RouteInfo `json:"routes"`
	Publications  int                `json:"publications"`
	Subscriptions int                `json:"subscriptions"`
}

// EventsQuery selects a page of the route journal. Zero values mean the
// whole journal from the oldest retained entry with the server's page size.
type EventsQuery struct {
	Key    string
	Offset int64
	Limit  int
}

// EventsResponse is a page of the route journal
type EventsResponse struct {
	Events     []eventlog.Event `json:"events"`
	NextOffset int64            `json:"nextOffset"`
}

// HealthResponse represents health check response
type HealthResponse = bridge.HealthStatus

// AdminStatsResponse represents the control loop counters
type AdminStatsResponse struct {
	bridge.Stats
	Uptime string `json:"uptime"`
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// APIError is returned for responses with a status of 400 or above
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, string(e.Body))
}
