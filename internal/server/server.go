package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"locate-gateway/internal/handlers"
	"locate-gateway/internal/middleware"
)

// Server represents the management HTTP server
type Server struct {
	srv *http.Server
}

// NewRouter builds the management API routes.
func NewRouter(h *handlers.Handlers, apiKey string) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.APIKeyMiddleware(apiKey))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tokens/stats", h.GetTokenStats).Methods(http.MethodGet)
	api.HandleFunc("/tokens/cleanup", h.CleanupTokens).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{tenant}", h.StoreToken).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{tenant}", h.DeleteToken).Methods(http.MethodDelete)
	api.HandleFunc("/tokens/{tenant}/status", h.GetTokenStatus).Methods(http.MethodGet)
	api.HandleFunc("/credentials/test", h.TestCredentials).Methods(http.MethodPost)
	api.HandleFunc("/tenants/{tenant}/tickets/search", h.SearchTickets).Methods(http.MethodPost)

	return r
}

// New creates a new server instance
func New(handler http.Handler, port string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start starts the server in a goroutine. Errors other than a clean shutdown
// are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
