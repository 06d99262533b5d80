package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cpumon/internal/logger"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	srv *http.Server
	log logger.Logger
}

func NewServer(handler http.Handler, address string, log logger.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Start serves until ctx is canceled, then shuts down gracefully. It returns
// nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http: starting server", "address", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("http: server shutdown error", "error", err)
			return err
		}
		s.log.Info("http: server stopped")
		return nil

	case err := <-errCh:
		return err
	}
}
