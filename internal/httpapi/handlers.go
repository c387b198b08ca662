package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	bridgepkg "github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bridge"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/eventlog"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	bridge      bridgepkg.Bridge
	jwtAuth     *JWTAuth
	adminSecret []byte
	startedAt   time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(bridge bridgepkg.Bridge, jwtAuth *JWTAuth, adminSecret string) *Handlers {
	return &Handlers{
		bridge:      bridge,
		jwtAuth:     jwtAuth,
		adminSecret: []byte(adminSecret),
		startedAt:   time.Now(),
	}
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.validateJSON(r); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validateAuthRequest(&req); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	isAdmin := false
	if req.Secret != "" {
		if subtle.ConstantTimeCompare([]byte(req.Secret), h.adminSecret) != 1 {
			h.writeError(w, "Invalid admin secret", http.StatusUnauthorized)
			return
		}
		isAdmin = true
	}

	token, expiresAt, err := h.jwtAuth.GenerateToken(req.ClientID, isAdmin)
	if err != nil {
		h.writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, AuthResponse{
		Token:     token,
		ClientID:  req.ClientID,
		IsAdmin:   isAdmin,
		ExpiresAt: expiresAt,
	}, http.StatusOK)
}

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	health, err := h.bridge.Health(r.Context())
	if err != nil {
		h.writeError(w, "Failed to get health status", http.StatusInternalServerError)
		return
	}

	statusCode := http.StatusOK
	if !health.Healthy {
		statusCode = http.StatusServiceUnavailable
	}
	h.writeJSON(w, HealthResponse(health), statusCode)
}

// ListRoutes handles GET /api/v1/routes
func (h *Handlers) ListRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	routes, err := h.bridge.Routes(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list routes: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	resp := RoutesResponse{Routes: routes}
	if resp.Routes == nil {
		resp.Routes = []bridgepkg.RouteInfo{}
	}
	for _, route := range routes {
		if route.Direction == "publication" {
			resp.Publications++
		} else {
			resp.Subscriptions++
		}
	}
	h.writeJSON(w, resp, http.StatusOK)
}

const (
	// DefaultEventsLimit is the page size when no limit is given
	DefaultEventsLimit = 100
	// MaxEventsLimit caps the page size
	MaxEventsLimit = 1000
)

// ListEvents handles GET /api/v1/events?key=&offset=&limit=
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()

	offset := int64(0)
	if v := query.Get("offset"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			h.writeError(w, "offset must be a non-negative integer", http.StatusBadRequest)
			return
		}
		offset = n
	}
	limit := DefaultEventsLimit
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, MaxEventsLimit)
	}

	events, err := h.bridge.Events(r.Context(), query.Get("key"), offset, limit)
	if err != nil {
		h.writeError(w, "Failed to read events: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	resp := EventsResponse{Events: events, NextOffset: offset}
	if resp.Events == nil {
		resp.Events = []eventlog.Event{}
	}
	if n := len(events); n > 0 {
		resp.NextOffset = events[n-1].Offset + 1
	}
	h.writeJSON(w, resp, http.StatusOK)
}

// AdminGetStats handles GET /api/v1/admin/stats
func (h *Handlers) AdminGetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, AdminStatsResponse{
		Stats:  h.bridge.Stats(),
		Uptime: time.Since(h.startedAt).Truncate(time.Second).String(),
	}, http.StatusOK)
}

func (h *Handlers) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// validateJSON validates that the request has valid JSON content-type
func (h *Handlers) validateJSON(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return errors.New("Content-Type must be application/json")
	}
	return nil
}

// validateAuthRequest validates authentication request fields
func (h *Handlers) validateAuthRequest(req *AuthRequest) error {
	if req.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if len(req.ClientID) < 2 {
		return fmt.Errorf("clientId must be at least 2 characters")
	}
	return nil
}
