// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/waypost/waypost/internal/broker"
	"github.com/waypost/waypost/internal/observability"
	"github.com/waypost/waypost/pkg/errutil"
)

// telemetryEventOfflineOnboarding names the only telemetry stream the broker
// currently accepts.
const telemetryEventOfflineOnboarding = "offline-onboarding"

const msgBadBody = "Invalid request."

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	service  *broker.Service
	mappings broker.MappingRepository
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewHandler creates the endpoint handler set. metrics may be nil, for tests.
func NewHandler(service *broker.Service, mappings broker.MappingRepository, metrics *observability.Metrics, logger *slog.Logger) (*Handler, error) {
	if service == nil {
		return nil, oops.Errorf("broker service is required")
	}
	if mappings == nil {
		return nil, oops.Errorf("mapping repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  service,
		mappings: mappings,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

type preAuthResponse struct {
	ServerURL string `json:"serverUrl"`
	Domain    string `json:"domain"`
	Username  string `json:"username"`
}

func (h *Handler) handlePreAuthenticate(c *gin.Context) {
	var req preAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: msgBadCredentials})
		return
	}
	if violation := req.validate(); violation != "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: violation})
		return
	}

	result, err := h.service.PreAuthenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		status, message, outcome := brokerOutcome(err)
		if status >= http.StatusInternalServerError {
			errutil.LogError(c.Request.Context(), h.logger, "pre-authentication failed", err)
		}
		h.countPreAuth(outcome)
		c.JSON(status, errorResponse{Error: message})
		return
	}

	h.countPreAuth("success")
	c.JSON(http.StatusOK, preAuthResponse{
		ServerURL: result.ServerURL,
		Domain:    result.Domain,
		Username:  result.Username,
	})
}

type promoSignupResponse struct {
	Message              string `json:"message"`
	WasAlreadyRegistered bool   `json:"wasAlreadyRegistered"`
}

func (h *Handler) handlePromoSignup(c *gin.Context) {
	var req promoSignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: msgBadEmail})
		return
	}
	if violation := req.validate(); violation != "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: violation})
		return
	}

	alreadyRegistered, err := h.mappings.RegisterPromoSignup(c.Request.Context(), req.Email, req.Fullname)
	if err != nil {
		errutil.LogError(c.Request.Context(), h.logger, "promo signup failed", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		return
	}

	message := "Registered successfully"
	result := "created"
	if alreadyRegistered {
		message = "Already registered"
		result = "existing"
	}
	if h.metrics != nil {
		h.metrics.PromoSignupsTotal.WithLabelValues(result).Inc()
	}
	c.JSON(http.StatusOK, promoSignupResponse{
		Message:              message,
		WasAlreadyRegistered: alreadyRegistered,
	})
}

type telemetryResponse struct {
	Message string `json:"message"`
}

func (h *Handler) handleTelemetry(c *gin.Context) {
	var req telemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		message := msgBadBody
		var oopsErr oops.OopsError
		if errors.As(err, &oopsErr) && oopsErr.Code() == "TELEMETRY_INVALID_CURRENCY" {
			message = msgBadCurrency
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: message})
		return
	}
	if violation := req.validate(); violation != "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: violation})
		return
	}

	payload := broker.TelemetryPayload{
		Username: req.Username,
		Currency: req.Currency,
		Email:    req.Email,
	}
	if err := h.mappings.StoreTelemetry(c.Request.Context(), telemetryEventOfflineOnboarding, payload); err != nil {
		errutil.LogError(c.Request.Context(), h.logger, "telemetry storage failed", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		return
	}

	if h.metrics != nil {
		h.metrics.TelemetryEventsTotal.WithLabelValues(telemetryEventOfflineOnboarding).Inc()
	}
	c.JSON(http.StatusOK, telemetryResponse{Message: "Telemetry recorded successfully"})
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) countPreAuth(outcome string) {
	if h.metrics != nil {
		h.metrics.PreAuthTotal.WithLabelValues(outcome).Inc()
	}
}
