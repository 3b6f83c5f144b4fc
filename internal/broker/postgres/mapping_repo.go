// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

// Package postgres implements the broker repositories using PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/waypost/waypost/internal/broker"
)

// pool is the subset of pgxpool.Pool the repository needs. pgxmock satisfies
// it for tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// errRevisionConflict signals a compare-and-swap miss on a routing record
// that still exists. Retried once before surfacing.
var errRevisionConflict = errors.New("routing record revision conflict")

// MappingRepository implements broker.MappingRepository using PostgreSQL.
type MappingRepository struct {
	pool pool
}

// NewMappingRepository creates a MappingRepository backed by the given pool.
func NewMappingRepository(pool pool) *MappingRepository {
	return &MappingRepository{pool: pool}
}

// FindRoutingRecord retrieves the routing record for a sanitized username.
// Returns broker.ErrNotFound if no record exists.
func (r *MappingRepository) FindRoutingRecord(ctx context.Context, username string) (*broker.RoutingRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT username, server_url, domain, active, last_login_at, revision, created_at, updated_at
		FROM routing_records
		WHERE username = $1
	`, username)

	record, err := scanRoutingRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ROUTING_RECORD_NOT_FOUND").
			With("username", username).
			Wrap(broker.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ROUTING_RECORD_GET_FAILED").
			With("operation", "get routing record").
			With("username", username).
			Wrap(err)
	}
	return record, nil
}

// TouchLastLogin sets last_login_at to the current time with a
// compare-and-swap on the record's revision. A revision conflict is retried
// once; a record that vanished since lookup yields broker.ErrNotFound.
func (r *MappingRepository) TouchLastLogin(ctx context.Context, username string) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(10*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var revision int64
		err := r.pool.QueryRow(ctx,
			`SELECT revision FROM routing_records WHERE username = $1`, username,
		).Scan(&revision)
		if errors.Is(err, pgx.ErrNoRows) {
			return oops.Code("ROUTING_RECORD_NOT_FOUND").
				With("username", username).
				Wrap(broker.ErrNotFound)
		}
		if err != nil {
			return oops.Code("ROUTING_RECORD_TOUCH_FAILED").
				With("operation", "read revision").
				With("username", username).
				Wrap(err)
		}

		now := time.Now().UTC()
		tag, err := r.pool.Exec(ctx, `
			UPDATE routing_records
			SET last_login_at = $3, updated_at = $3, revision = revision + 1
			WHERE username = $1 AND revision = $2
		`, username, revision, now)
		if err != nil {
			return oops.Code("ROUTING_RECORD_TOUCH_FAILED").
				With("operation", "update last login").
				With("username", username).
				Wrap(err)
		}
		if tag.RowsAffected() == 0 {
			// Either a concurrent writer bumped the revision or the record
			// was deleted; the re-read on the next attempt tells them apart.
			return retry.RetryableError(errRevisionConflict)
		}
		return nil
	})

	if errors.Is(err, errRevisionConflict) {
		return oops.Code("ROUTING_RECORD_CONFLICT").
			With("username", username).
			Errorf("concurrent update to routing record")
	}
	return err
}

// RegisterPromoSignup records a signup under the deterministic promo key.
// Returns true without mutation when the email is already registered. A
// duplicate-key conflict from a racing identical signup is a benign outcome,
// reported as alreadyRegistered rather than an error.
func (r *MappingRepository) RegisterPromoSignup(ctx context.Context, email, fullname string) (bool, error) {
	id := broker.PromoSignupKeyPrefix + email

	var one int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM promo_signups WHERE id = $1`, id).Scan(&one)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, oops.Code("PROMO_SIGNUP_LOOKUP_FAILED").
			With("operation", "lookup promo signup").
			Wrap(err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO promo_signups (id, email, fullname, created_at)
		VALUES ($1, $2, $3, $4)
	`, id, email, fullname, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return true, nil
		}
		return false, oops.Code("PROMO_SIGNUP_CREATE_FAILED").
			With("operation", "insert promo signup").
			Wrap(err)
	}
	return false, nil
}

// StoreTelemetry appends a telemetry event. No idempotency; every submission
// creates a row.
func (r *MappingRepository) StoreTelemetry(ctx context.Context, event string, payload broker.TelemetryPayload) error {
	currencyJSON, err := json.Marshal(payload.Currency)
	if err != nil {
		return oops.Code("TELEMETRY_STORE_FAILED").
			With("operation", "marshal currency").
			Wrap(err)
	}

	var email *string
	if payload.Email != "" {
		email = &payload.Email
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO telemetry_events (id, event, username, currency, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ulid.Make().String(), event, payload.Username, currencyJSON, email, time.Now().UTC())
	if err != nil {
		return oops.Code("TELEMETRY_STORE_FAILED").
			With("operation", "insert telemetry event").
			With("event", event).
			Wrap(err)
	}
	return nil
}

// scanRoutingRecord scans a single row into a RoutingRecord. Callers handle
// pgx.ErrNoRows.
func scanRoutingRecord(row pgx.Row) (*broker.RoutingRecord, error) {
	var (
		record      broker.RoutingRecord
		lastLoginAt *time.Time
	)
	err := row.Scan(
		&record.Username,
		&record.ServerURL,
		&record.Domain,
		&record.Active,
		&lastLoginAt,
		&record.Revision,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("ROUTING_RECORD_SCAN_FAILED").
			With("operation", "scan routing record").
			Wrap(err)
	}
	record.LastLoginAt = lastLoginAt
	return &record, nil
}

// Compile-time interface check.
var _ broker.MappingRepository = (*MappingRepository)(nil)
