package handlers

import (
	"net/http"
	"time"

	"github.com/maplecart/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
}

func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system}
}

// Healthz reports process liveness only.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Readyz checks downstream dependencies and fails the probe when any is
// unreachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	report, err := h.system.Health(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	status := http.StatusOK
	body := map[string]any{
		"status":     "ok",
		"components": report.Components,
		"checked_at": report.CheckedAt.UTC().Format(time.RFC3339),
	}
	if !report.Healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	}
	writeJSONResponse(w, status, body)
}
