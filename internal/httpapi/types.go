package httpapi

import (
	"time"

	bridgepkg "github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bridge"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/eventlog"
)

// AuthRequest represents a login request. A Secret matching the server's
// admin secret yields an admin token.
type AuthRequest struct {
	ClientID string `json:"clientId"`
	Secret   string `json:"secret,omitempty"`
}

// AuthResponse represents a login response
type AuthResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"clientId"`
	IsAdmin   bool      `json:"isAdmin"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RoutesResponse lists the bridge routes
type RoutesResponse struct {
	Routes        []bridgepkg.RouteInfo `json:"routes"`
	Publications  int                   `json:"publications"`
	Subscriptions int                   `json:"subscriptions"`
}

// EventsResponse is a page of the route journal. NextOffset is where the
// following page starts.
type EventsResponse struct {
	Events     []eventlog.Event `json:"events"`
	NextOffset int64            `json:"nextOffset"`
}

// HealthResponse represents health check response
type HealthResponse = bridgepkg.HealthStatus

// AdminStatsResponse represents the admin view of control loop counters
type AdminStatsResponse struct {
	bridgepkg.Stats
	Uptime string `json:"uptime"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
