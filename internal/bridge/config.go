package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/discovery"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/coder"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/eventlog"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/overlay"
)

var (
	// ErrInvalidScope is returned for a scope containing wildcards
	ErrInvalidScope = errors.New("scope cannot contain wildcards")
	// ErrNilParticipant is returned when Dependencies has no participant
	ErrNilParticipant = errors.New("participant cannot be nil")
	// ErrNilSession is returned when Dependencies has no overlay session
	ErrNilSession = errors.New("overlay session cannot be nil")
	// ErrNilEvents is returned when Dependencies has no event channel
	ErrNilEvents = errors.New("event channel cannot be nil")
)

// Config represents configuration for a bridge Controller
type Config struct {
	// Scope prefixes every RouteKey
	Scope string

	// Allow, when set, must match a RouteKey for the route to be created
	Allow *regexp.Regexp
}

// NewConfig creates a configuration with the given scope and no filter
func NewConfig(scope string) *Config {
	return &Config{Scope: scope}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if strings.Contains(c.Scope, "*") {
		return fmt.Errorf("%w: %q", ErrInvalidScope, c.Scope)
	}
	return nil
}

// Allowed reports whether key passes the allow filter
func (c *Config) Allowed(key string) bool {
	return c.Allow == nil || c.Allow.MatchString(key)
}

// Dependencies are the long-lived handles a Controller works with
type Dependencies struct {
	Participant bus.Participant
	Session     overlay.Session
	// Coders may be nil, in which case every route uses the identity coder.
	Coders *coder.Registry
	Events <-chan discovery.Event
	Logger *slog.Logger
	// Metrics may be nil, in which case the controller creates its own.
	Metrics *Metrics
	// Journal may be nil, in which case route events are kept in memory.
	Journal eventlog.EventLog
}

// Validate checks the required handles are set
func (d *Dependencies) Validate() error {
	switch {
	case d.Participant == nil:
		return ErrNilParticipant
	case d.Session == nil:
		return ErrNilSession
	case d.Events == nil:
		return ErrNilEvents
	}
	return nil
}
