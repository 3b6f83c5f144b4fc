// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package httpapi

import (
	"errors"
	"net/http"

	"github.com/samber/oops"

	"github.com/waypost/waypost/internal/broker"
)

// Client-visible messages for failures that don't map to a broker code.
const (
	msgInternalError = "An internal server error occurred. Please try again later."
	msgRateLimited   = "Too many authentication attempts. Please try again later."
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
}

// brokerOutcome translates a broker error into an HTTP status, a generic
// client message, and a metrics outcome label. Internal detail never leaves
// this function; it belongs in the server log.
func brokerOutcome(err error) (status int, message, outcome string) {
	var oopsErr oops.OopsError
	if errors.As(err, &oopsErr) {
		switch oopsErr.Code() {
		case broker.CodeInvalidCredentials:
			return http.StatusUnauthorized, broker.MsgInvalidCredentials, "invalid_credentials"
		case broker.CodeAccountInactive:
			return http.StatusForbidden, broker.MsgAccountInactive, "account_inactive"
		case broker.CodeLoginUnavailable:
			return http.StatusInternalServerError, broker.MsgLoginUnavailable, "unavailable"
		}
	}
	return http.StatusInternalServerError, msgInternalError, "error"
}
