// Package httpapi serves the bridge's admin API: a JWT login, health,
// the route table, the route journal, control loop counters and
// Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	bridgepkg "github.com/rmacdonaldsmith/zenoh-bridge-dds/pkg/bridge"
)

// ShutdownTimeout bounds graceful shutdown once the serve context ends
const ShutdownTimeout = 5 * time.Second

// Server represents the HTTP API server
type Server struct {
	bridge     bridgepkg.Bridge
	jwtAuth    *JWTAuth
	handlers   *Handlers
	middleware *Middleware
	registry   *prometheus.Registry
	server     *http.Server
	logger     *slog.Logger
}

// Config holds server configuration
type Config struct {
	// Addr is the listen address, for example ":8000"
	Addr string

	// SecretKey signs tokens. A random key is generated when empty, which
	// invalidates tokens across restarts.
	SecretKey string

	// AdminSecret must be presented at login to obtain an admin token.
	// Admin endpoints are unreachable when it is empty.
	AdminSecret string

	// NoAuth lets unauthenticated requests through AuthRequired routes
	NoAuth bool

	Logger *slog.Logger
}

// NewServer creates a new HTTP API server. registry may be nil, in which
// case /metrics is not served.
func NewServer(bridge bridgepkg.Bridge, registry *prometheus.Registry, config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "httpapi")

	secretKey := config.SecretKey
	if secretKey == "" {
		secretKey = uuid.NewString()
	}
	if config.AdminSecret == "" {
		logger.Warn("no admin secret configured, admin endpoints are disabled")
	}

	jwtAuth := NewJWTAuth(secretKey)
	server := &Server{
		bridge:     bridge,
		jwtAuth:    jwtAuth,
		handlers:   NewHandlers(bridge, jwtAuth, config.AdminSecret),
		middleware: NewMiddleware(jwtAuth, logger, config.NoAuth),
		registry:   registry,
		logger:     logger,
	}

	server.server = &http.Server{
		Addr:              config.Addr,
		Handler:           server.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return server
}

// Handler returns the server's routing handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe listens on the configured address and serves until ctx is
// done
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully. It
// returns nil after a shutdown caused by ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("admin API listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	withMiddleware := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.CORS(
					s.middleware.ContentType(handler))))
	}

	mux.Handle("/api/v1/auth/login", withMiddleware(s.handlers.Login))
	mux.Handle("/api/v1/health", withMiddleware(s.handlers.Health))
	mux.Handle("/api/v1/routes", withMiddleware(s.middleware.AuthRequired(s.handlers.ListRoutes)))
	mux.Handle("/api/v1/events", withMiddleware(s.middleware.AuthRequired(s.handlers.ListEvents)))
	mux.Handle("/api/v1/admin/stats", withMiddleware(s.middleware.AdminRequired(s.handlers.AdminGetStats)))

	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
			Registry:          s.registry,
			EnableOpenMetrics: true,
		}))
	}

	mux.Handle("/", withMiddleware(s.handleRoot))
	return mux
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.handlers.writeError(w, "Not found", http.StatusNotFound)
		return
	}

	info := map[string]any{
		"service": "zenoh-bridge-dds admin API",
		"endpoints": map[string]string{
			"login":   "POST /api/v1/auth/login",
			"health":  "GET /api/v1/health",
			"routes":  "GET /api/v1/routes",
			"events":  "GET /api/v1/events?key=&offset=&limit=",
			"stats":   "GET /api/v1/admin/stats",
			"metrics": "GET /metrics",
		},
		"authentication": "Bearer JWT token required for routes, events and stats",
	}
	s.handlers.writeJSON(w, info, http.StatusOK)
}
