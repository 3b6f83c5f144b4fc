// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package httpapi

import (
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/waypost/waypost/internal/httpapi/ratelimit"
	"github.com/waypost/waypost/internal/observability"
)

// maxBodyBytes caps request bodies. The broker only ever receives small JSON
// payloads; anything larger is abuse.
const maxBodyBytes = 10 << 10

// newRouter assembles the gin engine: recovery, request logging, CORS, body
// cap, then the endpoints. The rate limiter guards the three POST endpoints
// but not /health.
func newRouter(h *Handler, limiter *ratelimit.Limiter, corsOrigins []string, metrics *observability.Metrics, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(corsMiddleware(corsOrigins))
	engine.Use(bodyLimit(maxBodyBytes))

	engine.GET("/health", h.handleHealth)

	limited := engine.Group("/", rateLimitMiddleware(limiter, metrics))
	limited.POST("/pre-authenticate", h.handlePreAuthenticate)
	limited.POST("/ephemeral/launch-promo-signup", h.handlePromoSignup)
	limited.POST("/telemetry/offline-onboarding", h.handleTelemetry)

	return engine
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type"}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// bodyLimit rejects oversized request bodies before the handlers read them.
func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", ratelimit.ClientKey(c.Request),
		)
	}
}

// rateLimitMiddleware applies the fixed-window limit keyed by client address.
// Exhausted windows answer 429 with a Retry-After hint.
func rateLimitMiddleware(limiter *ratelimit.Limiter, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		ok, retryAfter := limiter.Allow(ratelimit.ClientKey(c.Request), time.Now())
		if !ok {
			if metrics != nil {
				metrics.RateLimitedTotal.Inc()
			}
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: msgRateLimited})
			return
		}
		c.Next()
	}
}
