// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package httpapi

import (
	"regexp"
	"strings"

	"github.com/waypost/waypost/internal/broker"
	"github.com/waypost/waypost/internal/sanitize"
)

// Validation messages. One per field-shape violation; the first violation
// encountered wins, so no response ever aggregates several.
const (
	msgBadCredentials = "Invalid request. Username and password are required."
	msgBadEmail       = "Invalid request. A valid email address is required."
	msgBadFullname    = "Invalid request. Fullname is required."
	msgBadUsername    = "Invalid request. Username is required."
	msgBadCurrency    = "Invalid request. Currency must be a code or a name/sign pair."
)

// local@domain.tld shape. Deliberately loose; the remote store is the
// authority on which addresses exist.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type preAuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// validate normalizes the username and reports the first violation. The
// password is never modified.
func (r *preAuthRequest) validate() (violation string) {
	username, err := sanitize.Key(r.Username)
	if err != nil {
		return msgBadCredentials
	}
	if r.Password == "" {
		return msgBadCredentials
	}
	r.Username = username
	return ""
}

type promoSignupRequest struct {
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
}

func (r *promoSignupRequest) validate() (violation string) {
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if !emailPattern.MatchString(email) {
		return msgBadEmail
	}
	email, err := sanitize.EmailKey(email)
	if err != nil {
		return msgBadEmail
	}

	fullname := sanitize.FreeText(r.Fullname, sanitize.MaxKeyLength)
	if fullname == "" {
		return msgBadFullname
	}

	r.Email = email
	r.Fullname = fullname
	return ""
}

type telemetryRequest struct {
	Username string          `json:"username"`
	Currency broker.Currency `json:"currency"`
	Email    string          `json:"email,omitempty"`
}

func (r *telemetryRequest) validate() (violation string) {
	username := sanitize.FreeText(r.Username, sanitize.MaxKeyLength)
	if username == "" {
		return msgBadUsername
	}

	r.Currency.Code = sanitize.FreeText(r.Currency.Code, sanitize.MaxKeyLength)
	r.Currency.Name = sanitize.FreeText(r.Currency.Name, sanitize.MaxKeyLength)
	r.Currency.Sign = sanitize.FreeText(r.Currency.Sign, sanitize.MaxKeyLength)
	// Either form must be complete: a non-empty code, or both name and sign.
	if r.Currency.Code == "" && (r.Currency.Name == "" || r.Currency.Sign == "") {
		return msgBadCurrency
	}

	email := ""
	if strings.TrimSpace(r.Email) != "" {
		email = strings.ToLower(strings.TrimSpace(r.Email))
		if !emailPattern.MatchString(email) {
			return msgBadEmail
		}
		var err error
		email, err = sanitize.EmailKey(email)
		if err != nil {
			return msgBadEmail
		}
	}

	r.Username = username
	r.Email = email
	return ""
}
