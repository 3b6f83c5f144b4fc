// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package broker

import (
	"context"
	"time"
)

// PromoSignupKeyPrefix namespaces promo signup documents in the mapping store.
const PromoSignupKeyPrefix = "promo-signup:"

// RoutingRecord maps a username to the remote data store that owns the
// account. Records are provisioned externally; the broker only reads them and
// updates LastLoginAt.
type RoutingRecord struct {
	Username    string
	ServerURL   string
	Domain      string
	Active      bool
	LastLoginAt *time.Time
	// Revision is the optimistic-concurrency token. Updates must
	// compare-and-swap on it; a stale write fails rather than overwriting.
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PromoSignup is an idempotent launch-promo signup, at most one per
// normalized email.
type PromoSignup struct {
	ID        string
	Email     string
	Fullname  string
	CreatedAt time.Time
}

// TelemetryPayload is a client-submitted usage event. Currency arrives either
// as a plain code string or as a {name, sign} pair.
type TelemetryPayload struct {
	Username string
	Currency Currency
	Email    string
}

// MappingRepository owns all reads and writes of routing records and the
// auxiliary promo-signup and telemetry documents. No other component touches
// the underlying store.
type MappingRepository interface {
	// FindRoutingRecord resolves the routing record for a sanitized
	// username. Returns ErrNotFound if no record exists; absence is a valid
	// outcome, not a store failure.
	FindRoutingRecord(ctx context.Context, username string) (*RoutingRecord, error)

	// TouchLastLogin sets LastLoginAt to the current time using a
	// compare-and-swap on the record's revision. Returns ErrNotFound if the
	// record vanished since lookup; a persistent revision conflict is
	// reported as an error rather than silently overwriting.
	TouchLastLogin(ctx context.Context, username string) error

	// RegisterPromoSignup records a signup for the normalized email.
	// Returns true without mutation if the email is already registered,
	// including when a concurrent identical signup wins the insert race.
	RegisterPromoSignup(ctx context.Context, email, fullname string) (alreadyRegistered bool, err error)

	// StoreTelemetry appends a telemetry event. No idempotency.
	StoreTelemetry(ctx context.Context, event string, payload TelemetryPayload) error
}
