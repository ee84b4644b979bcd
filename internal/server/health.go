package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/scrutineering/scrutineer/internal/analysis"
	"github.com/scrutineering/scrutineer/internal/bus"
)

// HealthChecker probes the server's internal components.
type HealthChecker struct {
	registry *analysis.Registry
	eventBus bus.Bus
	busType  string
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(registry *analysis.Registry, eventBus bus.Bus, busType string) *HealthChecker {
	return &HealthChecker{
		registry: registry,
		eventBus: eventBus,
		busType:  busType,
	}
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status     string               `json:"status"` // healthy, degraded, unhealthy
	Timestamp  time.Time            `json:"timestamp"`
	Version    string               `json:"version,omitempty"`
	Uptime     string               `json:"uptime,omitempty"`
	Components map[string]Component `json:"components"`
}

// Component represents a component's health.
type Component struct {
	Status  string `json:"status"` // healthy, degraded, unhealthy
	Message string `json:"message,omitempty"`
}

// Check performs a full health check.
func (h *HealthChecker) Check() HealthStatus {
	status := HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Components: make(map[string]Component),
	}

	engines := h.checkEngines()
	status.Components["engines"] = engines
	if engines.Status != "healthy" {
		status.Status = "unhealthy"
	}

	eventBus := h.checkBus()
	status.Components["bus"] = eventBus
	if eventBus.Status == "degraded" && status.Status == "healthy" {
		status.Status = "degraded"
	}

	return status
}

// checkEngines verifies that voting systems are registered.
func (h *HealthChecker) checkEngines() Component {
	if h.registry == nil {
		return Component{
			Status:  "unhealthy",
			Message: "system registry not configured",
		}
	}

	n := len(h.registry.Systems())
	if n == 0 {
		return Component{
			Status:  "unhealthy",
			Message: "no voting systems registered",
		}
	}

	return Component{
		Status:  "healthy",
		Message: fmt.Sprintf("%d voting systems registered", n),
	}
}

// checkBus reports on the event bus. The bus is optional; analyses
// still run without one, so a missing bus only degrades readiness.
func (h *HealthChecker) checkBus() Component {
	if h.eventBus == nil {
		return Component{
			Status:  "degraded",
			Message: "event bus not configured",
		}
	}

	return Component{
		Status:  "healthy",
		Message: h.busType,
	}
}

// HealthHandler handles health check HTTP requests.
type HealthHandler struct {
	checker   *HealthChecker
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checker *HealthChecker, version string) *HealthHandler {
	return &HealthHandler{
		checker:   checker,
		startTime: time.Now(),
		version:   version,
	}
}

// HandleHealth handles GET /healthz (simple liveness check).
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HandleReady handles GET /readyz (readiness check).
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	status := h.checker.Check()
	status.Version = h.version
	status.Uptime = time.Since(h.startTime).Round(time.Second).String()

	w.Header().Set("Content-Type", "application/json")

	if status.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		// Degraded still serves traffic, just with warnings.
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// HandleVersion handles GET /v1/version.
func (h *HealthHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"version":    h.version,
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
		"go_version": runtime.Version(),
	})
}
