// internal/api/server.go

// Package api exposes the validation pipeline over HTTP for callers
// that are not workflow-engine tasks: dashboards polling progress,
// operators starting or cancelling runs, and requirement-level
// revalidation.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assessment-workers/internal/common/logger"
)

const gracefulShutdownTimeout = 10 * time.Second

type Server struct {
	httpServer *http.Server
	logger     logger.Logger
}

func NewServer(bindAddress string, handlers *Handlers, log logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    bindAddress,
			Handler: newRouter(handlers),
		},
		logger: log.With(map[string]interface{}{"component": "api"}),
	}
}

func newRouter(handlers *Handlers) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", handlers.Health)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", handlers.StartRun)
		r.Get("/runs", handlers.ListRuns)
		r.Get("/runs/{runID}", handlers.GetRun)
		r.Get("/runs/{runID}/progress", handlers.GetProgress)
		r.Get("/runs/{runID}/results", handlers.GetResults)
		r.Post("/runs/{runID}/cancel", handlers.CancelRun)
		r.Post("/runs/{runID}/requirements/{requirementID}/revalidate", handlers.Revalidate)
	})

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.httpServer.SetKeepAlivesEnabled(false)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("api server shutdown failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	s.logger.Info("api server listening", map[string]interface{}{
		"address": s.httpServer.Addr,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
