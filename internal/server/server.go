package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rs/cors"
	"github.com/sanonone/embedreduce/internal/config"
	"github.com/sanonone/embedreduce/internal/mcp"
	"github.com/sanonone/embedreduce/pkg/reduce"
)

// Version is reported by /healthz and the MCP implementation info. Set at build time with -ldflags.
var Version = "dev"

// Server holds the HTTP interface and the reduction core.
type Server struct {
	cfg     *config.Config
	reducer *reduce.Service

	handler    http.Handler
	httpServer *http.Server
}

// NewServer wires the HTTP surface around reducer.
func NewServer(cfg *config.Config, reducer *reduce.Service) (*Server, error) {
	if cfg == nil || reducer == nil {
		return nil, fmt.Errorf("server: config and reducer are required")
	}

	s := &Server{
		cfg:     cfg,
		reducer: reducer,
	}

	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Chain middlewares: Recovery -> CORS -> Logging -> Mux
	// Recovery must be outer-most to catch everything. CORS answers
	// preflight requests before they reach the router.

	var handler http.Handler = mux

	// 1. Logging (Inner) - request ID, duration, status, metrics
	handler = s.LoggingMiddleware(handler)

	// 2. CORS (Middle)
	handler = cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.CORSMethods(),
		AllowedHeaders: cfg.CORS.AllowedHeaders,
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(handler)

	// 3. Recovery (Outer) - Catches panics
	handler = s.RecoveryMiddleware(handler)

	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /healthz", s.handleHealthz)
	rootMux.Handle("/", handler)
	s.handler = rootMux

	s.httpServer = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      rootMux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return s, nil
}

func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /pca", s.handlePCA)
	mux.HandleFunc("GET /pca/schema", s.handleSchema)

	if s.cfg.Metrics.Enabled {
		mux.Handle("GET "+s.cfg.Metrics.Path, metricsHandler())
	}
	if s.cfg.MCP.Enabled {
		mux.Handle(s.cfg.MCP.Path, mcp.NewHTTPHandler(mcp.NewMCPServer(s.reducer, Version)))
	}
}

// Handler returns the root handler, for embedding in another server or in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	info := DetectCPU()
	slog.Info("Compute engine",
		"cpu", info.Brand,
		"logical_cores", info.LogicalCores,
		"avx2", info.AVX2,
		"fma", info.FMA,
		"max_concurrent_reductions", s.reducer.MaxConcurrent(),
	)

	slog.Info("HTTP server listening", "addr", s.httpServer.Addr, "error_status", s.cfg.Reduce.ErrorStatus)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight reductions up to http.shutdown_timeout.
func (s *Server) Shutdown() {
	slog.Info("Starting graceful shutdown of HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
}
