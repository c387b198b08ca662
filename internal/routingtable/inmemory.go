package routingtable

import (
	"slices"
	"strings"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/routingtable"
)

// InMemoryRoutingTable keeps routes in two maps keyed by RouteKey. It has no
// locks; the owner serializes access.
type InMemoryRoutingTable struct {
	publications  map[string]*routingtable.Route
	subscriptions map[string]*routingtable.Route
}

var _ routingtable.RoutingTable = (*InMemoryRoutingTable)(nil)

// NewInMemoryRoutingTable creates an empty table
func NewInMemoryRoutingTable() *InMemoryRoutingTable {
	return &InMemoryRoutingTable{
		publications:  make(map[string]*routingtable.Route),
		subscriptions: make(map[string]*routingtable.Route),
	}
}

func (t *InMemoryRoutingTable) routes(dir routingtable.Direction) map[string]*routingtable.Route {
	if dir == routingtable.Subscription {
		return t.subscriptions
	}
	return t.publications
}

// Lookup returns the route for key in the given direction
func (t *InMemoryRoutingTable) Lookup(dir routingtable.Direction, key string) (*routingtable.Route, bool) {
	r, ok := t.routes(dir)[key]
	return r, ok
}

// Insert adds r to its direction's map
func (t *InMemoryRoutingTable) Insert(r *routingtable.Route) error {
	if r == nil {
		return routingtable.ErrNilRoute
	}
	if r.Key == "" {
		return routingtable.ErrEmptyKey
	}
	m := t.routes(r.Direction)
	if _, ok := m[r.Key]; ok {
		return routingtable.ErrRouteExists
	}
	m[r.Key] = r
	return nil
}

// Delete removes and returns the route for key
func (t *InMemoryRoutingTable) Delete(dir routingtable.Direction, key string) (*routingtable.Route, bool) {
	m := t.routes(dir)
	r, ok := m[key]
	if ok {
		delete(m, key)
	}
	return r, ok
}

// Routes returns the routes of one direction sorted by key
func (t *InMemoryRoutingTable) Routes(dir routingtable.Direction) []*routingtable.Route {
	m := t.routes(dir)
	out := make([]*routingtable.Route, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *routingtable.Route) int {
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

// Count returns the number of routes in one direction
func (t *InMemoryRoutingTable) Count(dir routingtable.Direction) int {
	return len(t.routes(dir))
}
