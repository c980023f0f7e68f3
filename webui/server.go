// Package webui serves the dashboard's HTTP surface.
// This file contains the Server that wires the endpoints together.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"realtime_dashboard/dashboard"
	"realtime_dashboard/metrics"
)

// AuthProvider guards write endpoints. auth.AdminGuard implements it; the
// interface keeps this package free of the auth import.
type AuthProvider interface {
	Middleware(next http.Handler) http.Handler
}

// ServerConfig configures the Server.
type ServerConfig struct {
	// Port to listen on (default: 3000)
	Port int

	// Host to bind to (default: "localhost")
	Host string

	// ReadTimeout for HTTP requests (default: 30s)
	ReadTimeout time.Duration

	// WriteTimeout for plain responses (default: 30s). Streams lift it.
	WriteTimeout time.Duration

	// IdleTimeout for keep-alive connections (default: 120s)
	IdleTimeout time.Duration

	// Stream configures /stream and /ws
	Stream StreamConfig

	// HealthCheck configures the store health monitor
	HealthCheck HealthMonitorConfig

	// SimulateRatePerMinute limits simulated updates per client IP (0 disables)
	SimulateRatePerMinute int

	// LogSkipPaths are paths to skip logging
	LogSkipPaths []string

	// Version is reported by /health
	Version string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:                  3000,
		Host:                  "localhost",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		Stream:                DefaultStreamConfig(),
		HealthCheck:           DefaultHealthMonitorConfig(),
		SimulateRatePerMinute: 30,
		LogSkipPaths:          []string{"/health", "/metrics"},
		Version:               "dev",
	}
}

// Dependencies are the collaborators the Server routes to.
type Dependencies struct {
	Repo      *dashboard.Repository
	Writer    *dashboard.Writer
	Collector *metrics.Collector

	// Tracker registers live streams with graceful shutdown (optional)
	Tracker StreamTracker

	// Auth guards the simulate endpoint (optional)
	Auth AuthProvider
}

// Server is the dashboard's HTTP server. It wires together:
//   - StreamHandler for /stream and /ws
//   - DataAPI for /data and /simulate-update
//   - StoreHealthMonitor for /health
//   - metrics.Collector for /metrics
//   - LoggingMiddleware around everything
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	config     ServerConfig
	logger     *zap.Logger
	collector  *metrics.Collector
	loggingMw  *LoggingMiddleware
	stream     *StreamHandler
	dataAPI    *DataAPI
	health     *StoreHealthMonitor
	limiter    *RateLimiter
}

// NewServer creates a Server. Repo and Writer are required.
func NewServer(config ServerConfig, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Repo == nil || deps.Writer == nil {
		return nil, errors.New("webui: repository and writer are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := deps.Collector
	if collector == nil {
		collector = metrics.NewCollector()
	}

	limiter := NewRateLimiter(config.SimulateRatePerMinute)
	guard := func(next http.Handler) http.Handler {
		if deps.Auth != nil {
			next = deps.Auth.Middleware(next)
		}
		return limiter.Middleware(next)
	}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    config,
		logger:    logger,
		collector: collector,
		loggingMw: NewLoggingMiddleware(LoggingMiddlewareConfig{
			Logger:    logger.Named("http"),
			Collector: collector,
			SkipPaths: config.LogSkipPaths,
		}),
		stream:  NewStreamHandler(deps.Repo, deps.Tracker, collector, config.Stream, logger.Named("stream")),
		dataAPI: NewDataAPI(deps.Repo, deps.Writer, collector, guard, logger.Named("api")),
		health:  NewStoreHealthMonitor(deps.Repo, collector, config.HealthCheck, logger.Named("health")),
		limiter: limiter,
	}
	s.setupRoutes()

	addr := net.JoinHostPort(config.Host, fmt.Sprint(config.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.loggingMw.Handler(s.mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	logger.Info("Dashboard server created",
		zap.String("addr", addr),
		zap.Bool("admin_guard", deps.Auth != nil),
		zap.Duration("stream_poll_interval", s.stream.config.PollInterval),
	)
	return s, nil
}

// setupRoutes configures all the HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.collector.Handler())
	s.stream.RegisterRoutes(s.mux)
	s.dataAPI.RegisterRoutes(s.mux)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string       `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptimeSeconds"`
	ActiveStreams int64        `json:"activeStreams"`
	Store         *StoreStatus `json:"store,omitempty"`
}

// handleHealth reports 200 unless the last store check failed.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.config.Version,
		UptimeSeconds: int64(s.collector.Uptime().Seconds()),
		ActiveStreams: s.collector.ActiveStreams(),
	}

	status := http.StatusOK
	if store, checked := s.health.Status(); checked {
		resp.Store = &store
		if !store.Up {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer exposes the underlying server for shutdown registration.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// HealthMonitor returns the store health monitor.
func (s *Server) HealthMonitor() *StoreHealthMonitor {
	return s.health
}

// Addr returns the server's address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the background workers and serves HTTP until the server is
// shut down. Background workers stop when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.health.Start(ctx)
	s.limiter.StartCleanupTicker(ctx, 5*time.Minute)

	s.logger.Info("Dashboard server starting", zap.String("addr", ln.Addr().String()))

	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down dashboard server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	s.logger.Info("Dashboard server stopped")
	return nil
}
