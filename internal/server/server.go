package server

import (
	"context"
	"net/http"
	"time"
)

// Server wraps an http.Server with sensible timeouts for a gateway that
// proxies arbitrary upstream traffic.
type Server struct {
	srv *http.Server
}

// New creates a new server instance listening on the given port.
func New(handler http.Handler, port string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start starts the server in a background goroutine. Errors other than a
// clean shutdown are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
