// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/waypost/waypost/internal/broker"
	"github.com/waypost/waypost/internal/broker/couchdb"
	"github.com/waypost/waypost/internal/broker/postgres"
	"github.com/waypost/waypost/internal/config"
	"github.com/waypost/waypost/internal/httpapi"
	"github.com/waypost/waypost/internal/httpapi/ratelimit"
	"github.com/waypost/waypost/internal/logging"
	"github.com/waypost/waypost/internal/observability"
	"github.com/waypost/waypost/internal/store"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the serve subcommand.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the broker API and metrics servers",
		Long: `Start the public HTTP API (pre-authentication, promo signup,
telemetry, health) and the separate metrics/health-probe listener.`,
		RunE: runServe,
	}

	// Flag names mirror the config keys so posflag can merge them.
	cmd.Flags().String("http.addr", ":8080", "public API listen address")
	cmd.Flags().StringSlice("http.cors_origins", []string{"*"}, "allowed CORS origins")
	cmd.Flags().String("metrics.addr", "127.0.0.1:9100", "metrics listen address")
	cmd.Flags().String("database.url", "", "PostgreSQL connection string")
	cmd.Flags().Duration("remote.timeout", 5*time.Second, "remote verification timeout")
	cmd.Flags().Int("ratelimit.limit", ratelimit.DefaultLimit, "requests allowed per window")
	cmd.Flags().Duration("ratelimit.window", ratelimit.DefaultWindow, "rate limit window")
	cmd.Flags().String("log.format", "json", "log format (json or text)")
	cmd.Flags().String("log.level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("waypost", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	mappings := postgres.NewMappingRepository(pool)
	verifier := couchdb.NewVerifier(cfg.Remote.Timeout)
	service, err := broker.NewService(mappings, verifier)
	if err != nil {
		return err
	}

	obs := observability.NewServer(cfg.Metrics.Addr, func(ctx context.Context) bool {
		return pool.Ping(ctx) == nil
	})
	obsErrCh, err := obs.Start()
	if err != nil {
		return oops.With("operation", "start observability server").Wrap(err)
	}

	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), cfg.RateLimit.Limit, cfg.RateLimit.Window)
	api, err := httpapi.NewServer(httpapi.Options{
		Addr:        cfg.HTTP.Addr,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		RateLimiter: limiter,
		Metrics:     obs.Metrics(),
		Logger:      slog.Default(),
	}, service, mappings)
	if err != nil {
		return err
	}
	apiErrCh, err := api.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}

	slog.Info("waypost serving",
		"api_addr", api.Addr(),
		"metrics_addr", obs.Addr(),
		"version", version)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-apiErrCh:
		if err != nil {
			runErr = oops.With("component", "api").Wrap(err)
		}
	case err := <-obsErrCh:
		if err != nil {
			runErr = oops.With("component", "observability").Wrap(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := api.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := obs.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
