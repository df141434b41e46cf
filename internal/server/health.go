// Package server implements health check handlers.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Run phases reported by RunStatus.
const (
	PhaseStarting   = "starting"
	PhaseConverting = "converting"
	PhaseUploading  = "uploading"
	PhaseDone       = "done"
	PhaseFailed     = "failed"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// RunStatus tracks the phase of a conversion run. It is ready while a
// conversion or upload is in progress.
type RunStatus struct {
	mu     sync.RWMutex
	phase  string
	file   string
	output string
	err    error
}

// NewRunStatus returns a status in the starting phase.
func NewRunStatus(output string) *RunStatus {
	return &RunStatus{phase: PhaseStarting, output: output}
}

// SetPhase moves the run to phase.
func (s *RunStatus) SetPhase(phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// SetFile records the input file being converted.
func (s *RunStatus) SetFile(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = file
}

// Fail moves the run to the failed phase.
func (s *RunStatus) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseFailed
	s.err = err
}

// Phase returns the current phase.
func (s *RunStatus) Phase() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Liveness reports false only once the run failed.
func (s *RunStatus) Liveness() bool {
	return s.Phase() != PhaseFailed
}

// Readiness reports whether the run is converting or uploading.
func (s *RunStatus) Readiness(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	switch s.Phase() {
	case PhaseConverting, PhaseUploading:
		return true
	}
	return false
}

// IsHealthy reports whether the run has not failed.
func (s *RunStatus) IsHealthy() bool {
	return s.Liveness()
}

// GetStatus returns the run details.
func (s *RunStatus) GetStatus() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := map[string]string{
		"phase":  s.phase,
		"output": s.output,
	}
	if s.file != "" {
		status["file"] = s.file
	}
	if s.err != nil {
		status["error"] = s.err.Error()
	}
	return status
}

// LivenessHandler returns a handler for liveness probes.
func LivenessHandler(checker HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for readiness probes.
func ReadinessHandler(checker HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

func writeHealth(w http.ResponseWriter, statusCode int, response HealthResponse, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode health response", zap.Error(err))
	}
}
