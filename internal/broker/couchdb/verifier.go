// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

// Package couchdb verifies credentials against a remote CouchDB endpoint.
package couchdb

import (
	"context"
	"net/http"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/go-kivik/kivik/v4/couchdb"
	"github.com/samber/oops"

	"github.com/waypost/waypost/internal/broker"
)

// DefaultTimeout bounds a single remote verification call.
const DefaultTimeout = 5 * time.Second

// Verifier implements broker.CredentialVerifier by issuing an authenticated
// read against the account's database on the remote CouchDB server. Only an
// explicit success from the remote store counts as proof of a valid password.
type Verifier struct {
	timeout time.Duration
}

// NewVerifier creates a Verifier. A non-positive timeout falls back to
// DefaultTimeout.
func NewVerifier(timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Verifier{timeout: timeout}
}

// Verify connects to serverURL with the caller-supplied credentials and reads
// the account's database. Returns nil on success, broker.ErrUnauthorized when
// the remote rejects the request with a client-error status, and a wrapped
// error when the remote cannot be consulted.
func (v *Verifier) Verify(ctx context.Context, serverURL, domain, username, password string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	client, err := kivik.New("couch", serverURL, couchdb.BasicAuth(username, password))
	if err != nil {
		return oops.Code("REMOTE_VERIFY_FAILED").
			With("operation", "create remote client").
			With("server_url", serverURL).
			Wrap(err)
	}
	defer client.Close()

	rows := client.DB(domain).AllDocs(ctx, kivik.Param("limit", 0))
	defer rows.Close()
	for rows.Next() {
		// Drain; only the request outcome matters.
	}
	if err := rows.Err(); err != nil {
		return v.classify(err, serverURL, domain)
	}
	return nil
}

// classify maps a remote failure onto the broker's contract: any
// client-error status means the credentials were rejected; everything else
// means the store could not be consulted. Never assume success.
func (v *Verifier) classify(err error, serverURL, domain string) error {
	status := kivik.HTTPStatus(err)
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return oops.With("status", status).Wrap(broker.ErrUnauthorized)
	}
	return oops.Code("REMOTE_VERIFY_FAILED").
		With("operation", "read remote database").
		With("server_url", serverURL).
		With("domain", domain).
		With("status", status).
		Wrap(err)
}

// Compile-time interface check.
var _ broker.CredentialVerifier = (*Verifier)(nil)
