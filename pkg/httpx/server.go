// Package httpx holds the HTTP plumbing shared by the risk server: the
// listener with graceful shutdown, failure responses keyed on the error
// taxonomy in pkg/errs, request middleware and the outbound client used
// for remote classifiers.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	glucotls "github.com/HatiCode/glucoguard/pkg/tls"
)

// Server is an http.Server that serves plain HTTP or HTTPS depending on its
// TLS settings and drains in-flight requests on Shutdown.
type Server struct {
	srv    *http.Server
	tls    glucotls.Config
	logger *slog.Logger
}

// NewServer binds handler to addr. Requests are bounded by read and write
// deadlines sized for small JSON bodies.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// WithTLS makes Serve listen over HTTPS using cfg. A disabled cfg keeps
// plain HTTP.
func (s *Server) WithTLS(cfg glucotls.Config) *Server {
	s.tls = cfg
	return s
}

// Serve blocks until the listener fails or Shutdown is called. A clean
// shutdown returns nil.
func (s *Server) Serve() error {
	var err error
	if s.tls.Enabled {
		s.srv.TLSConfig, err = glucotls.NewServerTLSConfig(s.tls)
		if err != nil {
			return fmt.Errorf("server TLS: %w", err)
		}
		s.logger.Info("serving HTTPS", "addr", s.srv.Addr, "mutual_tls", s.tls.Mutual())
		err = s.srv.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
	} else {
		s.logger.Info("serving HTTP", "addr", s.srv.Addr)
		err = s.srv.ListenAndServe()
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
}

// Shutdown stops accepting connections and waits up to timeout for active
// requests to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info("draining HTTP server", "timeout", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("drain HTTP server: %w", err)
	}
	return nil
}
