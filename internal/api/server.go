// Package api exposes the search, status, and job-control surface over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mediadex/internal/app"
)

// Server is the mediadex HTTP API.
type Server struct {
	app    *app.App
	router *chi.Mux
	server *http.Server
}

// NewServer creates an API server over the given app.
func NewServer(a *app.App) *Server {
	s := &Server{app: a, router: chi.NewRouter()}

	s.router.Use(middleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/stats", s.handleStats)
		r.Get("/jobs", s.handleJobs)
		r.Post("/jobs/sync/start", s.handleSyncStart)
		r.Post("/jobs/sync/stop", s.handleSyncStop)
		r.Post("/jobs/sync/pause", s.handleSyncPause)
		r.Post("/jobs/sync/resume", s.handleSyncResume)
		r.Post("/jobs/process/start", s.handleProcessStart)
		r.Post("/jobs/process/stop", s.handleProcessStop)
		r.Post("/jobs/process/pause", s.handleProcessPause)
		r.Post("/jobs/process/resume", s.handleProcessResume)
		r.Get("/debug/vectors", s.handleCheckVectors)
	})

	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves the API on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	s.app.Logger().Info("api server starting", "addr", addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
