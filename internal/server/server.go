// Package server provides the REST API for article generation.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/inkwell-go/internal/service"
)

// Server wires the job manager to HTTP routes with lifecycle management.
type Server struct {
	manager *service.Manager
	logger  *slog.Logger
	httpSrv *http.Server
}

// New creates a server listening on the given port.
func New(manager *service.Manager, port string, logger *slog.Logger) *Server {
	s := &Server{manager: manager, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/articles", s.handleCreateArticle)
	mux.HandleFunc("GET /v1/articles/{id}", s.handleGetArticle)
	mux.HandleFunc("POST /v1/articles/{id}/regenerate", s.handleRegenerate)
	mux.HandleFunc("GET /v1/articles/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /v1/announcements", s.handleAnnounce)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	s.httpSrv = &http.Server{
		Addr:         ":" + port,
		Handler:      LoggingMiddleware(logger)(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // Long for LLM-backed announcements
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the full HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("REST API listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
