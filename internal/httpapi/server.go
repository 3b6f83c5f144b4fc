// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

// Package httpapi exposes the broker over HTTP: the pre-authentication
// endpoint, the promo signup and telemetry endpoints, and a health check.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/waypost/waypost/internal/broker"
	"github.com/waypost/waypost/internal/httpapi/ratelimit"
	"github.com/waypost/waypost/internal/observability"
)

// Options configures the public API server.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// CORSOrigins lists allowed origins; "*" or empty allows all.
	CORSOrigins []string

	// RateLimiter guards the POST endpoints. nil disables limiting (tests).
	RateLimiter *ratelimit.Limiter

	// Metrics receives endpoint counters. nil disables them (tests).
	Metrics *observability.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server runs the public HTTP API.
type Server struct {
	addr       string
	engine     http.Handler
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer wires handlers and middleware into a runnable server.
func NewServer(opts Options, service *broker.Service, mappings broker.MappingRepository) (*Server, error) {
	if opts.Addr == "" {
		return nil, oops.Errorf("listen address is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler, err := NewHandler(service, mappings, opts.Metrics, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		addr:   opts.Addr,
		engine: newRouter(handler, opts.RateLimiter, opts.CORSOrigins, opts.Metrics, logger),
	}, nil
}

// Start begins serving. The returned channel receives any serve error and is
// closed on graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown api server").Wrap(err)
		}
	}

	slog.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
