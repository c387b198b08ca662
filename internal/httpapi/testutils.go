package httpapi

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	bridgepkg "github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bridge"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/eventlog"
)

// FakeBridge is a canned Bridge for handler tests
type FakeBridge struct {
	mu        sync.Mutex
	RouteList []bridgepkg.RouteInfo
	Status    bridgepkg.HealthStatus
	Counters  bridgepkg.Stats
	EventList []eventlog.Event
	Err       error
}

var _ bridgepkg.Bridge = (*FakeBridge)(nil)

// Update mutates the fake under its lock
func (f *FakeBridge) Update(fn func(f *FakeBridge)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// Routes implements bridgepkg.Bridge
func (f *FakeBridge) Routes(context.Context) ([]bridgepkg.RouteInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.RouteList, f.Err
}

// Health implements bridgepkg.Bridge
func (f *FakeBridge) Health(context.Context) (bridgepkg.HealthStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Status, f.Err
}

// Stats implements bridgepkg.Bridge
func (f *FakeBridge) Stats() bridgepkg.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Counters
}

// Events implements bridgepkg.Bridge
func (f *FakeBridge) Events(_ context.Context, key string, offset int64, limit int) ([]eventlog.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := []eventlog.Event{}
	for _, e := range f.EventList {
		if len(out) == limit {
			break
		}
		if e.Offset < offset || (key != "" && e.Key != key) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// TestServerSetup holds common test dependencies
type TestServerSetup struct {
	Bridge   *FakeBridge
	Registry *prometheus.Registry
	Server   *Server
	Auth     *JWTAuth
}

// TestAdminSecret is the admin secret of servers built by NewTestServerSetup
const TestAdminSecret = "test-admin-secret"

// NewTestServerSetup creates a server over a healthy FakeBridge
func NewTestServerSetup(t *testing.T) *TestServerSetup {
	t.Helper()

	fake := &FakeBridge{Status: bridgepkg.HealthStatus{Healthy: true, Running: true}}
	registry := prometheus.NewRegistry()
	server := NewServer(fake, registry, Config{
		Addr:        "127.0.0.1:0",
		SecretKey:   "test-secret-key",
		AdminSecret: TestAdminSecret,
	})
	if server == nil {
		t.Fatal("Expected server to be created, got nil")
	}

	return &TestServerSetup{
		Bridge:   fake,
		Registry: registry,
		Server:   server,
		Auth:     server.jwtAuth,
	}
}

// GenerateTestToken creates a JWT token for testing
func (setup *TestServerSetup) GenerateTestToken(t *testing.T, clientID string, isAdmin bool) string {
	t.Helper()

	token, _, err := setup.Auth.GenerateToken(clientID, isAdmin)
	if err != nil {
		t.Fatalf("Failed to generate test token: %v", err)
	}
	return token
}
