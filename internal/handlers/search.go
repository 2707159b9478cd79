package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	apperrors "locate-gateway/internal/common/errors"
	"locate-gateway/internal/token"
	"locate-gateway/internal/upstream"
)

type searchRequest struct {
	Username string            `json:"username"`
	Password string            `json:"password"`
	Search   map[string]string `json:"search"`
}

// SearchTickets proxies a ticket search through the authenticated request
// path: cached token when fresh, transparent refresh and single retry when
// the upstream rejects it.
func (h *Handlers) SearchTickets(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.ValidationError("invalid request body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, apperrors.ValidationError("username and password are required"))
		return
	}

	query := url.Values{}
	for key, value := range req.Search {
		query.Set(key, value)
	}

	creds := token.Credentials{Username: req.Username, Password: req.Password}
	resp, err := h.executor.Execute(r.Context(), tenantID, creds, &upstream.Request{
		Method: http.MethodGet,
		Path:   "/tickets/search",
		Query:  query,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
