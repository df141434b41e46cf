package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_metric_total",
		Help: "Test metric",
	})
	registry.MustRegister(counter)
	counter.Inc()
	return registry
}

func TestServer_NewServer(t *testing.T) {
	tests := []struct {
		name        string
		healthPort  int
		metricsPort int
		servers     int
	}{
		{name: "separate ports", healthPort: 8080, metricsPort: 9090, servers: 2},
		{name: "shared port", healthPort: 8080, metricsPort: 8080, servers: 1},
		{name: "metrics only", healthPort: 0, metricsPort: 9090, servers: 1},
		{name: "health only", healthPort: 8080, metricsPort: 0, servers: 1},
		{name: "disabled", healthPort: 0, metricsPort: 0, servers: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(tt.healthPort, tt.metricsPort, NewRunStatus("out.mcap"), prometheus.NewRegistry(), nil)
			if got := len(s.servers()); got != tt.servers {
				t.Errorf("servers = %d, want %d", got, tt.servers)
			}
		})
	}
}

func TestServer_SharedPortRoutes(t *testing.T) {
	status := NewRunStatus("out.mcap")
	status.SetPhase(PhaseConverting)
	s := NewServer(8080, 8080, status, testRegistry(), zap.NewNop())

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.healthServer.Handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestServer_HTTPMethods(t *testing.T) {
	tests := []struct {
		method     string
		statusCode int
	}{
		{http.MethodGet, http.StatusOK},
		{http.MethodHead, http.StatusOK},
		{http.MethodPost, http.StatusMethodNotAllowed},
		{http.MethodDelete, http.StatusMethodNotAllowed},
	}

	s := NewServer(8080, 9090, NewRunStatus("out.mcap"), prometheus.NewRegistry(), zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health/live", nil)
			w := httptest.NewRecorder()

			s.healthServer.Handler.ServeHTTP(w, req)

			if w.Code != tt.statusCode {
				t.Errorf("%s /health/live = %d, want %d", tt.method, w.Code, tt.statusCode)
			}
		})
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	healthPort, metricsPort := freePort(t), freePort(t)
	status := NewRunStatus("out.mcap")
	status.SetPhase(PhaseConverting)

	s := NewServer(healthPort, metricsPort, status, testRegistry(), zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get("http://localhost:" + strconv.Itoa(healthPort) + "/health/ready")
	if err != nil {
		t.Fatalf("health server unreachable: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readiness = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp, err = client.Get("http://localhost:" + strconv.Itoa(metricsPort) + "/metrics")
	if err != nil {
		t.Fatalf("metrics server unreachable: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "test_metric_total 1") {
		t.Errorf("metrics body missing test metric:\n%s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	if _, err := client.Get("http://localhost:" + strconv.Itoa(healthPort) + "/health/live"); err == nil {
		t.Error("expected error connecting to stopped health server")
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	s := NewServer(port, 0, NewRunStatus("out.mcap"), prometheus.NewRegistry(), zap.NewNop())
	if err := s.Start(); err == nil {
		t.Error("Start() should fail when the port is taken")
	}
}
