package routingtable

import (
	"errors"
	"time"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/coder"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/overlay"
)

var (
	// ErrRouteExists is returned when inserting a key that is already routed
	ErrRouteExists = errors.New("route already exists")

	// ErrNilRoute is returned when inserting a nil route
	ErrNilRoute = errors.New("route cannot be nil")

	// ErrEmptyKey is returned when inserting a route without a key
	ErrEmptyKey = errors.New("route key cannot be empty")
)

// Direction tells which map a route lives in
type Direction int

const (
	// Publication routes forward from the bus to the overlay
	Publication Direction = iota

	// Subscription routes forward from the overlay to the bus
	Subscription
)

func (d Direction) String() string {
	switch d {
	case Publication:
		return "publication"
	case Subscription:
		return "subscription"
	default:
		return "unknown"
	}
}

// State is the health of a route
type State int

const (
	// StateActive routes are forwarding
	StateActive State = iota

	// StateFailed routes lost their forwarding task and are not retried
	StateFailed
)

func (s State) String() string {
	if s == StateFailed {
		return "failed"
	}
	return "active"
}

// Task is the running forwarding goroutine of a subscription route
type Task interface {
	// Stop cancels the task and waits for it to return.
	Stop()
}

// Route is one table entry
type Route struct {
	Key       string
	Direction Direction
	TopicName string
	TypeName  string
	Partition *string
	CreatedAt time.Time
	State     State
	// Err is set when the route failed.
	Err error

	// Publication resources.
	Resource  overlay.ResourceID
	Publisher overlay.Publisher
	Reader    bus.Reader
	Encoder   coder.Coder

	// Subscription resources.
	Writer     bus.Writer
	Subscriber overlay.Subscriber
	Decoder    coder.Coder
	Task       Task

	endpoints map[bus.EndpointKey]struct{}
}

// NewRoute creates an active route with an empty endpoint set
func NewRoute(dir Direction, key, topicName, typeName string, partition *string) *Route {
	var p *string
	if partition != nil {
		v := *partition
		p = &v
	}
	return &Route{
		Key:       key,
		Direction: dir,
		TopicName: topicName,
		TypeName:  typeName,
		Partition: p,
		CreatedAt: time.Now(),
		State:     StateActive,
		endpoints: make(map[bus.EndpointKey]struct{}),
	}
}

// AddEndpoint folds a discovered endpoint into the route. It reports
// whether the endpoint was new.
func (r *Route) AddEndpoint(k bus.EndpointKey) bool {
	if r.endpoints == nil {
		r.endpoints = make(map[bus.EndpointKey]struct{})
	}
	if _, ok := r.endpoints[k]; ok {
		return false
	}
	r.endpoints[k] = struct{}{}
	return true
}

// RemoveEndpoint drops an undiscovered endpoint. It reports whether the
// endpoint was part of the route.
func (r *Route) RemoveEndpoint(k bus.EndpointKey) bool {
	if _, ok := r.endpoints[k]; !ok {
		return false
	}
	delete(r.endpoints, k)
	return true
}

// HasEndpoint reports whether k is folded into the route
func (r *Route) HasEndpoint(k bus.EndpointKey) bool {
	_, ok := r.endpoints[k]
	return ok
}

// EndpointCount returns the number of endpoints keeping the route alive
func (r *Route) EndpointCount() int {
	return len(r.endpoints)
}

// MarkFailed records err and moves the route to StateFailed
func (r *Route) MarkFailed(err error) {
	r.State = StateFailed
	r.Err = err
}

// PartitionName returns the partition or "" when the route has none
func (r *Route) PartitionName() string {
	if r.Partition == nil {
		return ""
	}
	return *r.Partition
}

// RoutingTable holds the publication and subscription routes
type RoutingTable interface {
	// Lookup returns the route for key in the given direction.
	Lookup(dir Direction, key string) (*Route, bool)

	// Insert adds r to the map selected by r.Direction. It returns
	// ErrRouteExists when the key is already routed in that direction.
	Insert(r *Route) error

	// Delete removes and returns the route for key.
	Delete(dir Direction, key string) (*Route, bool)

	// Routes returns the routes of one direction sorted by key.
	Routes(dir Direction) []*Route

	// Count returns the number of routes in one direction.
	Count(dir Direction) int
}
