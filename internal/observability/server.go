// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

// Package observability provides HTTP endpoints for metrics and health probes.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports whether the service can serve traffic. The broker
// wires a database ping here.
type ReadinessChecker func(ctx context.Context) bool

// Metrics contains the broker's Prometheus metrics.
type Metrics struct {
	PreAuthTotal         *prometheus.CounterVec
	PromoSignupsTotal    *prometheus.CounterVec
	TelemetryEventsTotal *prometheus.CounterVec
	RateLimitedTotal     prometheus.Counter
}

// NewMetrics creates and registers the broker metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PreAuthTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypost_preauth_total",
				Help: "Total pre-authentication attempts by outcome",
			},
			[]string{"outcome"},
		),
		PromoSignupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypost_promo_signups_total",
				Help: "Total promo signup submissions by result",
			},
			[]string{"result"},
		),
		TelemetryEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypost_telemetry_events_total",
				Help: "Total telemetry events stored by event name",
			},
			[]string{"event"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "waypost_rate_limited_total",
				Help: "Total requests rejected by the rate limiter",
			},
		),
	}

	reg.MustRegister(m.PreAuthTotal)
	reg.MustRegister(m.PromoSignupsTotal)
	reg.MustRegister(m.TelemetryEventsTotal)
	reg.MustRegister(m.RateLimitedTotal)

	return m
}

// Server exposes /metrics and Kubernetes-style health probes on its own
// listener, separate from the public API.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates an observability server listening on addr.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Dedicated registry; the global one stays clean.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the registered broker metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving. The returned channel receives any serve error and is
// closed on graceful shutdown; callers should monitor it.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Restore running state so the server can be stopped again.
			s.running.Store(true)
			return oops.With("operation", "shutdown observability server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady(r.Context()) {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
