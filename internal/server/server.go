package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server serves the REST router on a TCP listener. Serve blocks until
// its context is cancelled and in-flight requests drain.
type Server struct {
	address         string
	handler         http.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration

	ready chan struct{}
	addr  net.Addr
}

// Config configures a Server.
type Config struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:8088". Required.
	Address string
	Handler http.Handler
	// ShutdownTimeout defaults to 10 seconds.
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// New creates a server. It panics when Address or Handler is missing.
func New(cfg Config) *Server {
	if cfg.Address == "" {
		panic("server: Address is required")
	}
	if cfg.Handler == nil {
		panic("server: Handler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		address:         cfg.Address,
		handler:         cfg.Handler,
		logger:          cfg.Logger,
		shutdownTimeout: cfg.ShutdownTimeout,
		ready:           make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the resolved listen address. Only valid after Ready is closed.
func (s *Server) Addr() net.Addr { return s.addr }

// Serve accepts connections until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // core updates can be slow
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("http server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
