package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	bridgepkg "github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bridge"
)

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

// TestNewServer tests that we can create a new server instance
func TestNewServer(t *testing.T) {
	setup := NewTestServerSetup(t)
	server := setup.Server

	if server.bridge == nil {
		t.Error("Expected bridge to be initialized")
	}
	if server.jwtAuth == nil {
		t.Error("Expected jwtAuth to be initialized")
	}
	if server.handlers == nil {
		t.Error("Expected handlers to be initialized")
	}
	if server.middleware == nil {
		t.Error("Expected middleware to be initialized")
	}
	if server.server == nil {
		t.Error("Expected HTTP server to be initialized")
	}
}

// TestNewServerGeneratesSecret tests that servers without a secret key do
// not accept each other's tokens
func TestNewServerGeneratesSecret(t *testing.T) {
	a := NewServer(&FakeBridge{}, nil, Config{})
	b := NewServer(&FakeBridge{}, nil, Config{})

	token, _, err := a.jwtAuth.GenerateToken("client", false)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := b.jwtAuth.ValidateToken(token); err == nil {
		t.Error("Expected generated secrets to differ")
	}
}

// TestHealthEndpoint tests health status codes and body
func TestHealthEndpoint(t *testing.T) {
	setup := NewTestServerSetup(t)
	setup.Bridge.Status = bridgepkg.HealthStatus{
		Healthy:        true,
		Running:        true,
		SessionID:      "abc",
		DomainID:       7,
		ConnectedPeers: 2,
		Publications:   1,
	}

	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	decode(t, w, &resp)
	if diff := cmp.Diff(setup.Bridge.Status, resp); diff != "" {
		t.Errorf("Health mismatch (-want +got):\n%s", diff)
	}

	setup.Bridge.Status = bridgepkg.HealthStatus{Running: false, Message: "control loop stopped"}
	w = httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}

	setup.Bridge.Err = errors.New("boom")
	w = httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
}

// TestRoutesEndpoint tests the authenticated route listing
func TestRoutesEndpoint(t *testing.T) {
	setup := NewTestServerSetup(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	setup.Bridge.RouteList = []bridgepkg.RouteInfo{
		{Key: "/robot1/Chatter", Direction: "publication", Topic: "Chatter", Type: "std_msgs::String", Partition: "robot1", State: "active", Endpoints: 1, CreatedAt: created},
		{Key: "/cmd_vel", Direction: "subscription", Topic: "cmd_vel", Type: "geometry_msgs::Twist", State: "failed", Error: "stream closed", Endpoints: 2, CreatedAt: created},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/routes", nil)
	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/routes", nil)
	req.Header.Set("Authorization", "Bearer "+setup.GenerateTestToken(t, "operator", false))
	w = httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp RoutesResponse
	decode(t, w, &resp)
	want := RoutesResponse{Routes: setup.Bridge.RouteList, Publications: 1, Subscriptions: 1}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("Routes mismatch (-want +got):\n%s", diff)
	}
}

// TestRoutesEndpointEmptyAndError tests the empty list and a stopped bridge
func TestRoutesEndpointEmptyAndError(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "operator", false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/routes", nil)
	req.Header.Set("Authorization", token)
	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"routes":[]`) {
		t.Errorf("Expected empty routes array, got %s", w.Body.String())
	}

	setup.Bridge.Err = errors.New("control loop stopped")
	w = httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}
}

// TestNoAuthMode tests that NoAuth opens routes but not admin stats
func TestNoAuthMode(t *testing.T) {
	server := NewServer(&FakeBridge{}, nil, Config{SecretKey: "k", AdminSecret: "s", NoAuth: true})

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/routes", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 in no-auth mode, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected admin stats to require a token, got %d", w.Code)
	}
}

// TestMetricsEndpoint tests that the registry is exposed on /metrics
func TestMetricsEndpoint(t *testing.T) {
	setup := NewTestServerSetup(t)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "bridge_test_total", Help: "test"})
	setup.Registry.MustRegister(counter)
	counter.Add(3)

	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "bridge_test_total 3") {
		t.Errorf("Expected counter in metrics output, got:\n%s", w.Body.String())
	}

	bare := NewServer(&FakeBridge{}, nil, Config{})
	w = httptest.NewRecorder()
	bare.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a registry, got %d", w.Code)
	}
}

// TestRootAndUnknownPaths tests the API info and 404 handling
func TestRootAndUnknownPaths(t *testing.T) {
	setup := NewTestServerSetup(t)

	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/api/v1/routes") {
		t.Errorf("Expected endpoint listing, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
}

// TestCORSPreflight tests OPTIONS handling
func TestCORSPreflight(t *testing.T) {
	setup := NewTestServerSetup(t)

	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/routes", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected CORS origin *, got %q", got)
	}
}

// TestRecovery tests that a panicking handler yields a JSON 500
func TestRecovery(t *testing.T) {
	m := NewMiddleware(NewJWTAuth("k"), nil, false)
	h := m.Recovery(func(http.ResponseWriter, *http.Request) { panic("boom") })

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
}

// TestServeShutsDownOnContext tests the serve lifecycle over a real listener
func TestServeShutsDownOnContext(t *testing.T) {
	setup := NewTestServerSetup(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- setup.Server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("Failed to reach server: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected nil after shutdown, got %v", err)
		}
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
