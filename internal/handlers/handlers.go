// Package handlers implements the management HTTP API: token cache
// inspection and control, credential checks, and ticket search proxying.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "locate-gateway/internal/common/errors"
	"locate-gateway/internal/common/logging"
	"locate-gateway/internal/executor"
	"locate-gateway/internal/ratelimit"
	"locate-gateway/internal/scheduler"
	"locate-gateway/internal/token"
)

// Handlers holds the dependencies shared by all HTTP handlers.
type Handlers struct {
	manager   *token.Manager
	store     token.Store
	executor  *executor.Executor
	auth      token.Authenticator
	limiter   *ratelimit.Limiter
	scheduler *scheduler.Scheduler
	logger    logging.Logger
}

// New creates the handler set.
func New(
	manager *token.Manager,
	store token.Store,
	exec *executor.Executor,
	auth token.Authenticator,
	limiter *ratelimit.Limiter,
	sched *scheduler.Scheduler,
	logger logging.Logger,
) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		manager:   manager,
		store:     store,
		executor:  exec,
		auth:      auth,
		limiter:   limiter,
		scheduler: sched,
		logger:    logger,
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"
	errType := apperrors.ErrTypeInternal

	if appErr := apperrors.GetAppError(err); appErr != nil {
		errType = appErr.Type
		message = appErr.Message
		switch appErr.Type {
		case apperrors.ErrTypeInvalidCredentials:
			status = http.StatusUnauthorized
		case apperrors.ErrTypeValidation:
			status = http.StatusBadRequest
		case apperrors.ErrTypeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrTypeRateLimited:
			status = http.StatusTooManyRequests
		case apperrors.ErrTypeTimeout:
			status = http.StatusGatewayTimeout
		case apperrors.ErrTypeServiceUnavailable:
			status = http.StatusBadGateway
		}
	}

	respondJSON(w, status, map[string]string{
		"error": message,
		"type":  string(errType),
	})
}
