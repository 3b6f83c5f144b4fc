// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

// Package broker implements the pre-authentication protocol: resolve a
// username to its routing record, verify the password against the remote
// store, record the login, and return the resolved endpoint.
package broker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// PreAuthResult is the successful outcome of a pre-authentication request:
// the endpoint the client should connect to directly. It never carries the
// password or the record's revision token.
type PreAuthResult struct {
	ServerURL string
	Domain    string
	Username  string
}

// Service orchestrates pre-authentication. It holds no per-request state;
// one instance serves all requests concurrently.
type Service struct {
	mappings MappingRepository
	verifier CredentialVerifier
	logger   *slog.Logger
}

// NewService creates a Service using the default logger.
func NewService(mappings MappingRepository, verifier CredentialVerifier) (*Service, error) {
	return NewServiceWithLogger(mappings, verifier, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(mappings MappingRepository, verifier CredentialVerifier, logger *slog.Logger) (*Service, error) {
	if mappings == nil {
		return nil, oops.Errorf("mapping repository is required")
	}
	if verifier == nil {
		return nil, oops.Errorf("credential verifier is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{mappings: mappings, verifier: verifier, logger: logger}, nil
}

// PreAuthenticate resolves the routing record for username, verifies the
// caller-supplied password against the record's remote store, records the
// login time, and returns the endpoint.
//
// Failure translation: an unknown username and a wrong password produce the
// same AUTH_INVALID_CREDENTIALS error so callers cannot tell them apart. A
// disabled account fails with AUTH_ACCOUNT_INACTIVE before the password is
// ever checked. Everything else, including a failed login-timestamp update
// after a proven password match, is AUTH_LOGIN_UNAVAILABLE.
func (s *Service) PreAuthenticate(ctx context.Context, username, password string) (*PreAuthResult, error) {
	record, err := s.mappings.FindRoutingRecord(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.DebugContext(ctx, "no routing record for username", "username", username)
			return nil, invalidCredentials()
		}
		return nil, oops.Code(CodeLoginUnavailable).
			With("operation", "find routing record").
			Wrap(err)
	}

	if !record.Active {
		s.logger.DebugContext(ctx, "account inactive", "username", record.Username)
		return nil, oops.Code(CodeAccountInactive).
			With("username", record.Username).
			Errorf("account %q is inactive", record.Username)
	}

	if err := s.verifier.Verify(ctx, record.ServerURL, record.Domain, username, password); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			s.logger.DebugContext(ctx, "remote store rejected credentials", "username", record.Username)
			return nil, invalidCredentials()
		}
		s.logger.WarnContext(ctx, "remote verification unavailable",
			"username", record.Username,
			"server_url", record.ServerURL,
			"error", err)
		return nil, oops.Code(CodeLoginUnavailable).
			With("operation", "verify credentials against remote store").
			With("server_url", record.ServerURL).
			Wrap(err)
	}

	// The password is proven at this point. A failed timestamp update is a
	// server fault, not a credentials problem, and must not be swallowed: it
	// signals the store is inconsistent with the lookup above.
	if err := s.mappings.TouchLastLogin(ctx, username); err != nil {
		s.logger.ErrorContext(ctx, "failed to record login after verified password",
			"username", record.Username,
			"error", err)
		return nil, oops.Code(CodeLoginUnavailable).
			With("operation", "record login timestamp").
			Wrap(err)
	}

	return &PreAuthResult{
		ServerURL: record.ServerURL,
		Domain:    record.Domain,
		Username:  record.Username,
	}, nil
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).
		Errorf("invalid username or password")
}
