package bridge

import (
	"context"
	"time"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/eventlog"
)

// RouteInfo describes one route of the bridge
type RouteInfo struct {
	Key       string    `json:"key"`
	Direction string    `json:"direction"`
	Topic     string    `json:"topic"`
	Type      string    `json:"type"`
	Partition string    `json:"partition,omitempty"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	Endpoints int       `json:"endpoints"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthStatus represents the overall health of a bridge
type HealthStatus struct {
	// Healthy indicates the control loop is running and no route failed
	Healthy bool `json:"healthy"`

	// Running indicates the control loop is processing events
	Running bool `json:"running"`

	// SessionID is the overlay session the bridge publishes through
	SessionID string `json:"session_id"`

	// DomainID is the DDS domain the bridge joined
	DomainID uint32 `json:"domain_id"`

	// ConnectedPeers is the number of overlay peers currently linked
	ConnectedPeers int `json:"connected_peers"`

	Publications  int `json:"publications"`
	Subscriptions int `json:"subscriptions"`
	FailedRoutes  int `json:"failed_routes"`

	// Message provides additional health information
	Message string `json:"message,omitempty"`
}

// Stats are cumulative counters of the control loop
type Stats struct {
	EventsProcessed      uint64 `json:"events_processed"`
	RoutesCreated        uint64 `json:"routes_created"`
	RoutesRemoved        uint64 `json:"routes_removed"`
	RouteErrors          uint64 `json:"route_errors"`
	RouteFailures        uint64 `json:"route_failures"`
	AllowRejected        uint64 `json:"allow_rejected"`
	DuplicateDiscoveries uint64 `json:"duplicate_discoveries"`
}

// Bridge is the read-only view served to operators
type Bridge interface {
	// Routes returns every route sorted by direction and key.
	Routes(ctx context.Context) ([]RouteInfo, error)

	// Health returns the current health of the bridge.
	Health(ctx context.Context) (HealthStatus, error)

	// Stats returns the control loop counters.
	Stats() Stats

	// Events returns up to limit route journal entries from offset on. A
	// non-empty key restricts them to one route.
	Events(ctx context.Context, key string, offset int64, limit int) ([]eventlog.Event, error)
}
