package grpclink

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/overlay"
)

// DefaultScoutAddress is the multicast group and port used for scouting
const DefaultScoutAddress = "224.0.0.224:7446"

// ErrNilOverlayConfig is returned when Config.Overlay is not set
var ErrNilOverlayConfig = errors.New("overlay config cannot be nil")

// Config holds configuration for a gRPC overlay session
type Config struct {
	Overlay *overlay.Config

	// NodeID identifies the session on the overlay. Generated when empty.
	NodeID string

	SendQueueSize     int
	StreamSize        int
	HeartbeatInterval time.Duration
	ReconnectInterval time.Duration
	MaxMessageSize    int

	ScoutAddress  string
	ScoutInterval time.Duration

	Logger *slog.Logger
}

// NewConfig returns a Config wrapping ov with defaults applied
func NewConfig(ov *overlay.Config) *Config {
	c := &Config{Overlay: ov}
	c.SetDefaults()
	return c
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Overlay == nil {
		return ErrNilOverlayConfig
	}
	return c.Overlay.Validate()
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.Overlay != nil {
		c.Overlay.SetDefaults()
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 1024
	}
	if c.StreamSize <= 0 {
		c.StreamSize = 256
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 16 * 1024 * 1024 // 16MB
	}
	if c.ScoutAddress == "" {
		c.ScoutAddress = DefaultScoutAddress
	}
	if c.ScoutInterval <= 0 {
		c.ScoutInterval = 3 * time.Second
	}
}
