package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apperrors "locate-gateway/internal/common/errors"
	"locate-gateway/internal/common/logging"
)

// Token cache management handlers

// GetTokenStats returns cache counters plus rate limiter and sweeper state.
func (h *Handlers) GetTokenStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	payload := map[string]interface{}{
		"tokens": stats,
	}
	if h.limiter != nil {
		payload["rate_limit"] = h.limiter.Stats()
	}
	if h.scheduler != nil {
		payload["cleanup"] = h.scheduler.Stats()
	}
	respondJSON(w, http.StatusOK, payload)
}

// CleanupTokens triggers an immediate cleanup sweep.
func (h *Handlers) CleanupTokens(w http.ResponseWriter, r *http.Request) {
	removed, err := h.scheduler.RunNow(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// DeleteToken invalidates a tenant's cached token. Idempotent.
func (h *Handlers) DeleteToken(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	if err := h.manager.Invalidate(r.Context(), tenantID); err != nil {
		respondError(w, err)
		return
	}
	h.logger.Info("token invalidated via API", logging.String("tenant_id", tenantID))
	w.WriteHeader(http.StatusNoContent)
}

// GetTokenStatus reports whether a tenant holds a token and its expiry state.
func (h *Handlers) GetTokenStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	status, err := h.manager.Status(r.Context(), tenantID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type storeTokenRequest struct {
	Token      string `json:"token"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// StoreToken pre-seeds a token for a tenant, typically one obtained out of
// band.
func (h *Handlers) StoreToken(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	var req storeTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.ValidationError("invalid request body"))
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := h.manager.StoreToken(r.Context(), tenantID, req.Token, ttl); err != nil {
		respondError(w, err)
		return
	}
	h.logger.Info("token pre-seeded via API", logging.String("tenant_id", tenantID))
	respondJSON(w, http.StatusCreated, map[string]string{"tenant_id": tenantID})
}
