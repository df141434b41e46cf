package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthChecker interface for checking component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	IsHealthy() bool
	GetStatus() map[string]string
}

// Server represents the HTTP server for health and metrics.
type Server struct {
	healthServer  *http.Server
	metricsServer *http.Server
	logger        *zap.Logger
}

// NewServer creates a new HTTP server. A port of zero disables that server;
// equal ports serve both on one listener.
func NewServer(
	healthPort int,
	metricsPort int,
	healthChecker HealthChecker,
	registry *prometheus.Registry,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{logger: logger}

	var healthMux, metricsMux *http.ServeMux
	if healthPort > 0 {
		healthMux = http.NewServeMux()
		healthMux.HandleFunc("GET /health/live", LivenessHandler(healthChecker, logger))
		healthMux.HandleFunc("GET /health/ready", ReadinessHandler(healthChecker, logger))
		s.healthServer = newHTTPServer(healthPort, healthMux)
	}

	if metricsPort > 0 {
		metricsMux = http.NewServeMux()
		if metricsPort == healthPort {
			metricsMux = healthMux
		}
		metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if metricsPort != healthPort {
			s.metricsServer = newHTTPServer(metricsPort, metricsMux)
		}
	}

	return s
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func (s *Server) servers() []*http.Server {
	var out []*http.Server
	for _, srv := range []*http.Server{s.healthServer, s.metricsServer} {
		if srv != nil {
			out = append(out, srv)
		}
	}
	return out
}

// Start binds the listeners and serves in the background.
func (s *Server) Start() error {
	for _, srv := range s.servers() {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
		}
		go func(srv *http.Server, ln net.Listener) {
			s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server failed", zap.String("addr", srv.Addr), zap.Error(err))
			}
		}(srv, ln)
	}
	return nil
}

// Shutdown gracefully shuts down both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP servers")

	servers := s.servers()
	errChan := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			errChan <- srv.Shutdown(ctx)
		}(srv)
	}

	var lastErr error
	for range servers {
		if err := <-errChan; err != nil {
			s.logger.Error("Error shutting down server", zap.Error(err))
			lastErr = err
		}
	}

	return lastErr
}
