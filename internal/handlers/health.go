package handlers

import (
	"net/http"
)

// Health reports process liveness and token store reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	payload := map[string]string{"status": "ok", "store": "ok"}
	status := http.StatusOK

	if err := h.store.Health(); err != nil {
		payload["status"] = "degraded"
		payload["store"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, payload)
}
