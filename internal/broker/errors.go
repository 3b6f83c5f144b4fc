// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package broker

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Error codes attached to broker failures. The HTTP layer maps them to
// response statuses.
const (
	// CodeInvalidCredentials covers both "unknown account" and "wrong
	// password". The message is identical for both causes so callers cannot
	// enumerate valid usernames.
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"

	// CodeAccountInactive marks accounts explicitly disabled in their
	// routing record. Checked before remote verification.
	CodeAccountInactive = "AUTH_ACCOUNT_INACTIVE"

	// CodeLoginUnavailable marks server-side faults: remote store
	// unreachable or failing for reasons other than bad credentials, or the
	// post-verification login-timestamp update failing.
	CodeLoginUnavailable = "AUTH_LOGIN_UNAVAILABLE"
)

// Client-visible messages. Kept generic; detail stays in server logs.
const (
	MsgInvalidCredentials = "Invalid username or password."
	MsgAccountInactive    = "Account is inactive."
	MsgLoginUnavailable   = "Unable to log in."
)
