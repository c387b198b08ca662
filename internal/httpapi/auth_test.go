package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestJWTAuth tests token generation and validation round trip
func TestJWTAuth(t *testing.T) {
	auth := NewJWTAuth("test-secret")

	token, expiresAt, err := auth.GenerateToken("test-client", true)
	if err != nil {
		t.Fatalf("Expected no error generating token, got %v", err)
	}
	if token == "" {
		t.Fatal("Expected non-empty token")
	}
	if d := time.Until(expiresAt); d < TokenTTL-time.Minute || d > TokenTTL {
		t.Errorf("Expected expiry about %v from now, got %v", TokenTTL, d)
	}

	claims, err := auth.ValidateToken("Bearer " + token)
	if err != nil {
		t.Fatalf("Expected no error validating token, got %v", err)
	}
	if claims.ClientID != "test-client" {
		t.Errorf("Expected client ID test-client, got %s", claims.ClientID)
	}
	if !claims.IsAdmin {
		t.Error("Expected admin claim to survive the round trip")
	}
}

// TestJWTAuthRejects tests the tokens ValidateToken must refuse
func TestJWTAuthRejects(t *testing.T) {
	auth := NewJWTAuth("test-secret")

	if _, _, err := auth.GenerateToken("", false); err == nil {
		t.Error("Expected error for empty client ID")
	}
	if _, err := auth.ValidateToken(""); err == nil {
		t.Error("Expected error for empty token")
	}
	if _, err := auth.ValidateToken("not-a-token"); err == nil {
		t.Error("Expected error for malformed token")
	}

	other := NewJWTAuth("other-secret")
	foreign, _, err := other.GenerateToken("client", false)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := auth.ValidateToken(foreign); err == nil {
		t.Error("Expected error for token signed with another key")
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		ClientID: "client",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "zenoh-bridge-dds",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	if _, err := auth.ValidateToken(signed); err == nil {
		t.Error("Expected error for expired token")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{ClientID: "client"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("Failed to build unsigned token: %v", err)
	}
	if _, err := auth.ValidateToken(unsigned); err == nil {
		t.Error("Expected error for unsigned token")
	}
}

// TestLogin tests the login endpoint with and without the admin secret
func TestLogin(t *testing.T) {
	setup := NewTestServerSetup(t)
	handler := setup.Server.Handler()

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantAdmin   bool
	}{
		{"plain client", "application/json", `{"clientId":"operator"}`, http.StatusOK, false},
		{"admin secret", "application/json; charset=utf-8", `{"clientId":"ops","secret":"` + TestAdminSecret + `"}`, http.StatusOK, true},
		{"wrong secret", "application/json", `{"clientId":"ops","secret":"nope"}`, http.StatusUnauthorized, false},
		{"missing client", "application/json", `{}`, http.StatusBadRequest, false},
		{"short client", "application/json", `{"clientId":"x"}`, http.StatusBadRequest, false},
		{"bad body", "application/json", `{`, http.StatusBadRequest, false},
		{"wrong content type", "text/plain", `{"clientId":"operator"}`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				var resp ErrorResponse
				decode(t, w, &resp)
				if resp.Code != tt.wantStatus {
					t.Errorf("Expected error code %d, got %d", tt.wantStatus, resp.Code)
				}
				return
			}

			var resp AuthResponse
			decode(t, w, &resp)
			if resp.IsAdmin != tt.wantAdmin {
				t.Errorf("Expected isAdmin %v, got %v", tt.wantAdmin, resp.IsAdmin)
			}
			claims, err := setup.Auth.ValidateToken(resp.Token)
			if err != nil {
				t.Fatalf("Expected issued token to validate, got %v", err)
			}
			if claims.IsAdmin != tt.wantAdmin {
				t.Errorf("Expected admin claim %v, got %v", tt.wantAdmin, claims.IsAdmin)
			}
		})
	}
}

// TestLoginWithoutAdminSecret tests that no secret can unlock admin access
// when the server has none configured
func TestLoginWithoutAdminSecret(t *testing.T) {
	server := NewServer(&FakeBridge{}, nil, Config{SecretKey: "k"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"clientId":"ops","secret":"anything"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}
}

// TestLoginMethodNotAllowed tests that login only accepts POST
func TestLoginMethodNotAllowed(t *testing.T) {
	setup := NewTestServerSetup(t)

	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected status 405, got %d", w.Code)
	}
}
