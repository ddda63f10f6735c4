package api

import (
	"net/http"
	"time"

	"github.com/rightsguard/incident-core/internal/api/respond"
)

// CheckHealth handles GET /api/health.
// Always returns 200; the body reports healthy or unhealthy.
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.Healthy != nil && !h.Healthy() {
		status = "unhealthy"
	}
	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if h.Components != nil {
		response["components"] = h.Components()
	}
	respond.WriteJSON(w, http.StatusOK, response)
}
