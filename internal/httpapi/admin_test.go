package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	bridgepkg "github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bridge"
)

// TestAdminGetStats tests the admin stats endpoint authorization and body
func TestAdminGetStats(t *testing.T) {
	setup := NewTestServerSetup(t)
	setup.Bridge.Counters = bridgepkg.Stats{
		EventsProcessed:      10,
		RoutesCreated:        3,
		RoutesRemoved:        1,
		AllowRejected:        2,
		DuplicateDiscoveries: 4,
	}

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"invalid token", "garbage", http.StatusUnauthorized},
		{"non-admin", setup.GenerateTestToken(t, "operator", false), http.StatusForbidden},
		{"admin", setup.GenerateTestToken(t, "ops", true), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			setup.Server.Handler().ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp AdminStatsResponse
			decode(t, w, &resp)
			if resp.Stats != setup.Bridge.Counters {
				t.Errorf("Expected stats %+v, got %+v", setup.Bridge.Counters, resp.Stats)
			}
			if resp.Uptime == "" {
				t.Error("Expected uptime to be set")
			}
		})
	}
}

// TestAdminStatsMethodNotAllowed tests that stats only accepts GET
func TestAdminStatsMethodNotAllowed(t *testing.T) {
	setup := NewTestServerSetup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/stats", nil)
	req.Header.Set("Authorization", setup.GenerateTestToken(t, "ops", true))
	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected status 405, got %d", w.Code)
	}
}
