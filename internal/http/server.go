// Package http arma y corre el servidor HTTP del gateway.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
	"go.uber.org/zap"
)

const shutdownGrace = 10 * time.Second

// Server envuelve http.Server con apagado ordenado.
type Server struct {
	srv *http.Server
}

// NewServer crea el servidor con timeouts sanos para una API de auth.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Run atiende hasta que ctx se cancele, después apaga con gracia.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.L().Info("http server listening", zap.String("addr", s.srv.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(shutCtx); err != nil {
		return s.srv.Close()
	}
	logger.L().Info("http server stopped")
	return nil
}
