package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "locate-gateway/internal/common/errors"
	"locate-gateway/internal/token"
)

type testCredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type testCredentialsResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// TestCredentials checks a username/password pair against the upstream
// without caching anything. Rejected credentials are a normal outcome here,
// not an error status.
func (h *Handlers) TestCredentials(w http.ResponseWriter, r *http.Request) {
	var req testCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.ValidationError("invalid request body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, apperrors.ValidationError("username and password are required"))
		return
	}

	creds := token.Credentials{Username: req.Username, Password: req.Password}
	_, _, err := h.auth.Authenticate(r.Context(), creds)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrTypeInvalidCredentials) {
			respondJSON(w, http.StatusOK, testCredentialsResponse{
				Valid:  false,
				Reason: "upstream rejected the credentials",
			})
			return
		}
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, testCredentialsResponse{Valid: true})
}
