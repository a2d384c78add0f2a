// Package api exposes read-only run results and funnel health over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/seolwon/ivscreen/pkg/config"
	"github.com/seolwon/ivscreen/pkg/logger"
)

// Server is the HTTP API server. Server configuration lives here and
// nowhere else.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	cfg        *config.Config
}

// New creates the API server around a prepared router.
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
		cfg: cfg,
	}
}

// Start runs the server until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.WithFields(map[string]interface{}{
		"port": s.cfg.Port,
		"env":  s.cfg.Env,
	}).Info("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
