package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/zenoh-bridge-dds/internal/httpapi"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bridge"
	"github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/eventlog"
)

func TestNewClient(t *testing.T) {
	t.Run("valid_config", func(t *testing.T) {
		client, err := NewClient(Config{ServerURL: "http://localhost:8000", ClientID: "test-client"})
		require.NoError(t, err)
		assert.Equal(t, "test-client", client.config.ClientID)
		assert.Equal(t, 30*time.Second, client.config.Timeout)
		assert.Equal(t, 3, client.config.MaxRetries)
		assert.False(t, client.IsAuthenticated())
	})

	t.Run("missing_server_url", func(t *testing.T) {
		client, err := NewClient(Config{ClientID: "test-client"})
		require.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "ServerURL is required")
	})

	t.Run("missing_client_id", func(t *testing.T) {
		client, err := NewClient(Config{ServerURL: "http://localhost:8000"})
		require.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "ClientID is required")
	})

	t.Run("invalid_server_url", func(t *testing.T) {
		client, err := NewClient(Config{ServerURL: "://invalid-url", ClientID: "test-client"})
		require.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "invalid ServerURL")
	})
}

func TestClient_Authenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req AuthRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "ops", req.ClientID)
		assert.Equal(t, "s3cret", req.Secret)

		_ = json.NewEncoder(w).Encode(AuthResponse{Token: "tok", ClientID: req.ClientID, IsAdmin: true})
	}))
	defer server.Close()

	client, err := NewClient(Config{ServerURL: server.URL, ClientID: "ops", AdminSecret: "s3cret"})
	require.NoError(t, err)
	require.NoError(t, client.Authenticate(context.Background()))
	assert.True(t, client.IsAuthenticated())
	assert.True(t, client.IsAdmin())
	assert.Equal(t, "tok", client.GetToken())
}

func TestClient_RequiresToken(t *testing.T) {
	client, err := NewClient(Config{ServerURL: "http://localhost:1", ClientID: "c"})
	require.NoError(t, err)

	_, err = client.ListRoutes(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = client.AdminGetStats(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = client.ListEvents(context.Background(), EventsQuery{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "Forbidden", Message: "Admin privileges required", Code: 403})
	}))
	defer server.Close()

	client, err := NewClient(Config{ServerURL: server.URL, ClientID: "c"})
	require.NoError(t, err)
	client.SetToken("tok")

	_, err = client.AdminGetStats(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "Admin privileges required")
}

func TestClient_RetriesUnreachableGet(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(HealthResponse{Healthy: true})
	}))
	url := server.URL
	server.Close()

	client, err := NewClient(Config{ServerURL: url, ClientID: "c", MaxRetries: 2, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	_, err = client.GetHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
	assert.Zero(t, hits.Load())
}

func TestClient_AgainstAdminAPI(t *testing.T) {
	fake := &httpapi.FakeBridge{
		Status: bridge.HealthStatus{Healthy: false, Running: true, FailedRoutes: 1, Message: "1 route failed"},
		RouteList: []bridge.RouteInfo{
			{Key: "/robot1/Chatter", Direction: "publication", Topic: "Chatter", State: "active", Endpoints: 1},
			{Key: "/cmd_vel", Direction: "subscription", Topic: "cmd_vel", State: "failed", Endpoints: 1},
		},
		Counters: bridge.Stats{EventsProcessed: 5, RoutesCreated: 2, RouteFailures: 1},
		EventList: []eventlog.Event{
			{Offset: 0, Kind: eventlog.RouteCreated, Key: "/robot1/Chatter"},
			{Offset: 1, Kind: eventlog.RouteCreated, Key: "/cmd_vel"},
			{Offset: 2, Kind: eventlog.RouteFailed, Key: "/cmd_vel", Message: "stream closed"},
		},
	}
	api := httpapi.NewServer(fake, nil, httpapi.Config{SecretKey: "k", AdminSecret: "admin-secret"})
	server := httptest.NewServer(api.Handler())
	defer server.Close()
	ctx := context.Background()

	t.Run("unhealthy_health_is_not_an_error", func(t *testing.T) {
		client, err := NewClient(Config{ServerURL: server.URL, ClientID: "viewer"})
		require.NoError(t, err)

		health, err := client.GetHealth(ctx)
		require.NoError(t, err)
		assert.False(t, health.Healthy)
		assert.Equal(t, 1, health.FailedRoutes)
		assert.Equal(t, "1 route failed", health.Message)
	})

	t.Run("viewer_lists_routes_but_not_stats", func(t *testing.T) {
		client, err := NewClient(Config{ServerURL: server.URL, ClientID: "viewer"})
		require.NoError(t, err)
		require.NoError(t, client.Authenticate(ctx))
		assert.False(t, client.IsAdmin())

		routes, err := client.ListRoutes(ctx)
		require.NoError(t, err)
		assert.Len(t, routes.Routes, 2)
		assert.Equal(t, 1, routes.Publications)
		assert.Equal(t, 1, routes.Subscriptions)

		_, err = client.AdminGetStats(ctx)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	})

	t.Run("viewer_pages_through_events", func(t *testing.T) {
		client, err := NewClient(Config{ServerURL: server.URL, ClientID: "viewer"})
		require.NoError(t, err)
		require.NoError(t, client.Authenticate(ctx))

		page, err := client.ListEvents(ctx, EventsQuery{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page.Events, 2)
		assert.Equal(t, int64(2), page.NextOffset)

		page, err = client.ListEvents(ctx, EventsQuery{Offset: page.NextOffset, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Events, 1)
		assert.Equal(t, eventlog.RouteFailed, page.Events[0].Kind)

		page, err = client.ListEvents(ctx, EventsQuery{Key: "/cmd_vel"})
		require.NoError(t, err)
		assert.Len(t, page.Events, 2)
	})

	t.Run("admin_reads_stats", func(t *testing.T) {
		client, err := NewClient(Config{ServerURL: server.URL, ClientID: "ops", AdminSecret: "admin-secret"})
		require.NoError(t, err)
		require.NoError(t, client.Authenticate(ctx))
		assert.True(t, client.IsAdmin())

		stats, err := client.AdminGetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, fake.Counters, stats.Stats)
	})

	t.Run("wrong_secret_fails_login", func(t *testing.T) {
		client, err := NewClient(Config{ServerURL: server.URL, ClientID: "ops", AdminSecret: "wrong"})
		require.NoError(t, err)
		err = client.Authenticate(ctx)
		require.Error(t, err)
		assert.False(t, client.IsAuthenticated())
	})
}
