package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
)

// Server wraps the standard http.Server with lifecycle management.
type Server struct {
	srv    *http.Server
	logger logging.Logger
}

// NewServer creates an HTTP server around the given handler.
func NewServer(cfg config.ServerConfig, handler http.Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Start blocks serving requests until Stop is called or the listener
// fails. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("http server listening", logging.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}
