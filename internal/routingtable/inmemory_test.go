package routingtable

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bus"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/routingtable"
)

func partition(s string) *string { return &s }

func TestInMemoryRoutingTable_Insert(t *testing.T) {
	rt := NewInMemoryRoutingTable()

	route := routingtable.NewRoute(routingtable.Publication, "robot1/Chatter", "Chatter", "std_msgs::String", partition("robot1"))
	if err := rt.Insert(route); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, ok := rt.Lookup(routingtable.Publication, "robot1/Chatter")
	if !ok {
		t.Fatal("Expected route to be found")
	}
	if got != route {
		t.Errorf("Expected the inserted route, got %+v", got)
	}
	if got.State != routingtable.StateActive {
		t.Errorf("Expected active route, got %v", got.State)
	}
	if got.PartitionName() != "robot1" {
		t.Errorf("Expected partition 'robot1', got '%s'", got.PartitionName())
	}
}

func TestInMemoryRoutingTable_Insert_Duplicate(t *testing.T) {
	rt := NewInMemoryRoutingTable()

	first := routingtable.NewRoute(routingtable.Publication, "Chatter", "Chatter", "T", nil)
	if err := rt.Insert(first); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := rt.Insert(routingtable.NewRoute(routingtable.Publication, "Chatter", "Chatter", "T", nil))
	if !errors.Is(err, routingtable.ErrRouteExists) {
		t.Fatalf("Expected ErrRouteExists, got %v", err)
	}
	if got, _ := rt.Lookup(routingtable.Publication, "Chatter"); got != first {
		t.Error("Expected the first route to be kept")
	}
}

func TestInMemoryRoutingTable_Insert_Invalid(t *testing.T) {
	rt := NewInMemoryRoutingTable()

	if err := rt.Insert(nil); !errors.Is(err, routingtable.ErrNilRoute) {
		t.Errorf("Expected ErrNilRoute, got %v", err)
	}
	if err := rt.Insert(routingtable.NewRoute(routingtable.Publication, "", "t", "T", nil)); !errors.Is(err, routingtable.ErrEmptyKey) {
		t.Errorf("Expected ErrEmptyKey, got %v", err)
	}
}

// TestInMemoryRoutingTable_DirectionsAreIndependent tests a key can be routed both ways
func TestInMemoryRoutingTable_DirectionsAreIndependent(t *testing.T) {
	rt := NewInMemoryRoutingTable()

	if err := rt.Insert(routingtable.NewRoute(routingtable.Publication, "Chatter", "Chatter", "T", nil)); err != nil {
		t.Fatalf("Insert publication failed: %v", err)
	}
	if err := rt.Insert(routingtable.NewRoute(routingtable.Subscription, "Chatter", "Chatter", "T", nil)); err != nil {
		t.Fatalf("Insert subscription failed: %v", err)
	}

	if rt.Count(routingtable.Publication) != 1 || rt.Count(routingtable.Subscription) != 1 {
		t.Fatalf("Expected one route per direction, got %d/%d",
			rt.Count(routingtable.Publication), rt.Count(routingtable.Subscription))
	}

	if _, ok := rt.Delete(routingtable.Publication, "Chatter"); !ok {
		t.Fatal("Expected publication to be deleted")
	}
	if _, ok := rt.Lookup(routingtable.Subscription, "Chatter"); !ok {
		t.Error("Expected subscription to survive the publication delete")
	}
}

func TestInMemoryRoutingTable_Delete_Unknown(t *testing.T) {
	rt := NewInMemoryRoutingTable()

	if r, ok := rt.Delete(routingtable.Subscription, "missing"); ok || r != nil {
		t.Errorf("Expected no route, got %+v", r)
	}
}

func TestInMemoryRoutingTable_RoutesSorted(t *testing.T) {
	rt := NewInMemoryRoutingTable()

	for _, key := range []string{"c", "a", "b"} {
		if err := rt.Insert(routingtable.NewRoute(routingtable.Subscription, key, key, "T", nil)); err != nil {
			t.Fatalf("Insert %s failed: %v", key, err)
		}
	}

	routes := rt.Routes(routingtable.Subscription)
	var keys []string
	for _, r := range routes {
		keys = append(keys, r.Key)
	}
	if fmt.Sprint(keys) != "[a b c]" {
		t.Errorf("Expected [a b c], got %v", keys)
	}
	if len(rt.Routes(routingtable.Publication)) != 0 {
		t.Error("Expected no publication routes")
	}
}

// TestRoute_Endpoints tests the endpoint set that keeps a route alive
func TestRoute_Endpoints(t *testing.T) {
	route := routingtable.NewRoute(routingtable.Publication, "Chatter", "Chatter", "T", nil)
	a := bus.EndpointKey{1}
	b := bus.EndpointKey{2}

	if !route.AddEndpoint(a) {
		t.Error("Expected first add to report a new endpoint")
	}
	if route.AddEndpoint(a) {
		t.Error("Expected second add of the same endpoint to report false")
	}
	route.AddEndpoint(b)
	if route.EndpointCount() != 2 {
		t.Fatalf("Expected 2 endpoints, got %d", route.EndpointCount())
	}

	if !route.RemoveEndpoint(a) {
		t.Error("Expected remove to succeed")
	}
	if route.RemoveEndpoint(a) {
		t.Error("Expected second remove to report false")
	}
	if route.HasEndpoint(a) || !route.HasEndpoint(b) {
		t.Error("Expected only endpoint b to remain")
	}
	if route.EndpointCount() != 1 {
		t.Errorf("Expected 1 endpoint, got %d", route.EndpointCount())
	}
}

func TestRoute_MarkFailed(t *testing.T) {
	route := routingtable.NewRoute(routingtable.Subscription, "Chatter", "Chatter", "T", nil)
	cause := errors.New("stream closed")

	route.MarkFailed(cause)

	if route.State != routingtable.StateFailed {
		t.Errorf("Expected failed state, got %v", route.State)
	}
	if !errors.Is(route.Err, cause) {
		t.Errorf("Expected error %v, got %v", cause, route.Err)
	}
	if route.State.String() != "failed" {
		t.Errorf("Expected 'failed', got '%s'", route.State.String())
	}
}

// TestNewRoute_CopiesPartition tests the route does not alias the caller's partition
func TestNewRoute_CopiesPartition(t *testing.T) {
	p := "robot1"
	route := routingtable.NewRoute(routingtable.Publication, "robot1/Chatter", "Chatter", "T", &p)
	p = "robot2"

	if route.PartitionName() != "robot1" {
		t.Errorf("Expected 'robot1', got '%s'", route.PartitionName())
	}
}

// BenchmarkInMemoryRoutingTable_Lookup measures lookups against a populated table
func BenchmarkInMemoryRoutingTable_Lookup(b *testing.B) {
	rt := NewInMemoryRoutingTable()
	const numRoutes = 1000
	for i := 0; i < numRoutes; i++ {
		key := fmt.Sprintf("robot%d/Chatter", i)
		_ = rt.Insert(routingtable.NewRoute(routingtable.Publication, key, "Chatter", "T", nil))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := rt.Lookup(routingtable.Publication, "robot500/Chatter"); !ok {
			b.Fatal("Lookup failed")
		}
	}
}
