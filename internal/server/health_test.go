package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

// mockHealthChecker implements HealthChecker for testing
type mockHealthChecker struct {
	liveness  bool
	readiness bool
	healthy   bool
	status    map[string]string
}

func (m *mockHealthChecker) Liveness() bool {
	return m.liveness
}

func (m *mockHealthChecker) Readiness(ctx context.Context) bool {
	return m.readiness
}

func (m *mockHealthChecker) IsHealthy() bool {
	return m.healthy
}

func (m *mockHealthChecker) GetStatus() map[string]string {
	return m.status
}

func TestLivenessHandler_Alive(t *testing.T) {
	checker := &mockHealthChecker{
		liveness: true,
	}

	handler := LivenessHandler(checker, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "alive" {
		t.Errorf("status = %s, want alive", response.Status)
	}
}

func TestLivenessHandler_NotAlive(t *testing.T) {
	checker := &mockHealthChecker{
		liveness: false,
	}

	handler := LivenessHandler(checker, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "not alive" {
		t.Errorf("status = %s, want not alive", response.Status)
	}
}

func TestReadinessHandler_Ready(t *testing.T) {
	checker := &mockHealthChecker{
		readiness: true,
		status: map[string]string{
			"phase":  PhaseConverting,
			"output": "out.mcap",
		},
	}

	handler := ReadinessHandler(checker, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ready" {
		t.Errorf("status = %s, want ready", response.Status)
	}

	if len(response.Checks) != 2 {
		t.Errorf("len(checks) = %d, want 2", len(response.Checks))
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	checker := &mockHealthChecker{
		readiness: false,
		status:    map[string]string{"phase": PhaseDone},
	}

	handler := ReadinessHandler(checker, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "not ready" {
		t.Errorf("status = %s, want not ready", response.Status)
	}
}

func TestRunStatus_Phases(t *testing.T) {
	tests := []struct {
		phase string
		live  bool
		ready bool
	}{
		{PhaseStarting, true, false},
		{PhaseConverting, true, true},
		{PhaseUploading, true, true},
		{PhaseDone, true, false},
		{PhaseFailed, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			s := NewRunStatus("out.mcap")
			s.SetPhase(tt.phase)

			if got := s.Liveness(); got != tt.live {
				t.Errorf("Liveness() = %v, want %v", got, tt.live)
			}
			if got := s.Readiness(context.Background()); got != tt.ready {
				t.Errorf("Readiness() = %v, want %v", got, tt.ready)
			}
			if got := s.IsHealthy(); got != tt.live {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.live)
			}
		})
	}
}

func TestRunStatus_GetStatus(t *testing.T) {
	s := NewRunStatus("s3://bucket/out.mcap")
	if got := s.GetStatus(); got["phase"] != PhaseStarting || got["output"] != "s3://bucket/out.mcap" {
		t.Errorf("GetStatus() = %v", got)
	}
	if _, ok := s.GetStatus()["file"]; ok {
		t.Error("file should be omitted before conversion starts")
	}

	s.SetPhase(PhaseConverting)
	s.SetFile("data/gps.csv")
	if got := s.GetStatus()["file"]; got != "data/gps.csv" {
		t.Errorf("file = %q", got)
	}

	s.Fail(errors.New("boom"))
	status := s.GetStatus()
	if status["phase"] != PhaseFailed || status["error"] != "boom" {
		t.Errorf("GetStatus() after Fail = %v", status)
	}
}

func TestRunStatus_ReadinessCancelled(t *testing.T) {
	s := NewRunStatus("out.mcap")
	s.SetPhase(PhaseConverting)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if s.Readiness(ctx) {
		t.Error("Readiness() should be false for a cancelled request")
	}
}

func TestHealthResponse(t *testing.T) {
	response := HealthResponse{
		Status:    "alive",
		Timestamp: "2024-01-01T00:00:00Z",
		Checks: map[string]string{
			"test": "ok",
		},
	}

	data, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}

	var decoded HealthResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if decoded.Status != response.Status {
		t.Errorf("status = %s, want %s", decoded.Status, response.Status)
	}
}
