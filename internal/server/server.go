// Package server implements the automation engine HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fixl-developer/tma-automation/internal/dispatch"
	"github.com/fixl-developer/tma-automation/internal/health"
	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/internal/workflow"
)

const maxBodyBytes = 1 << 20

// Deps carries the engine components the API surfaces.
type Deps struct {
	Store      store.Store
	Dispatcher *dispatch.Dispatcher
	Machine    *workflow.Machine
	Health     *health.Aggregator
	APIKey     string
}

// Server is the automation HTTP API server.
type Server struct {
	deps   Deps
	router chi.Router
	addr   string
	srv    *http.Server
}

// New creates a new HTTP server.
func New(addr string, deps Deps) *Server {
	s := &Server{
		deps: deps,
		addr: addr,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))
	r.Use(MaxBodyMiddleware(maxBodyBytes))
	r.Use(APIKeyMiddleware(deps.APIKey))

	s.router = r
	s.registerRoutes(r)
	return s
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
