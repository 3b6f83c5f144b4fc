// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package broker

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned by a CredentialVerifier when the remote store
// explicitly rejects the supplied credentials.
var ErrUnauthorized = errors.New("remote store rejected credentials")

// CredentialVerifier checks a username/password pair against a remote data
// store. A nil return is proof of a valid password. ErrUnauthorized means the
// credentials were rejected; any other error means the remote store could not
// be consulted (unreachable, timeout, unexpected status).
type CredentialVerifier interface {
	Verify(ctx context.Context, serverURL, domain, username, password string) error
}
