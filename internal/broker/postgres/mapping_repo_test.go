// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypost/waypost/internal/broker"
	"github.com/waypost/waypost/pkg/errutil"
)

func routingColumns() []string {
	return []string{"username", "server_url", "domain", "active", "last_login_at", "revision", "created_at", "updated_at"}
}

func TestMappingRepository_FindRoutingRecord(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("returns record", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rows := pgxmock.NewRows(routingColumns()).
			AddRow("alice", "https://couch.example.com", "userdb-alice", true, nil, int64(3), now, now)
		mock.ExpectQuery(`SELECT username, server_url, domain, active`).
			WithArgs("alice").
			WillReturnRows(rows)

		repo := NewMappingRepository(mock)
		record, err := repo.FindRoutingRecord(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", record.Username)
		assert.Equal(t, "https://couch.example.com", record.ServerURL)
		assert.Equal(t, "userdb-alice", record.Domain)
		assert.True(t, record.Active)
		assert.Nil(t, record.LastLoginAt)
		assert.Equal(t, int64(3), record.Revision)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing record is ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT username, server_url, domain, active`).
			WithArgs("nobody").
			WillReturnError(pgx.ErrNoRows)

		repo := NewMappingRepository(mock)
		record, err := repo.FindRoutingRecord(ctx, "nobody")
		require.Error(t, err)
		assert.Nil(t, record)
		assert.ErrorIs(t, err, broker.ErrNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database failure is not ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT username, server_url, domain, active`).
			WithArgs("alice").
			WillReturnError(errors.New("connection refused"))

		repo := NewMappingRepository(mock)
		_, err = repo.FindRoutingRecord(ctx, "alice")
		require.Error(t, err)
		assert.NotErrorIs(t, err, broker.ErrNotFound)
		assert.Contains(t, err.Error(), "connection refused")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMappingRepository_TouchLastLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("updates with revision CAS", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT revision FROM routing_records`).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows([]string{"revision"}).AddRow(int64(3)))
		mock.ExpectExec(`UPDATE routing_records`).
			WithArgs("alice", int64(3), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewMappingRepository(mock)
		require.NoError(t, repo.TouchLastLogin(ctx, "alice"))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("revision conflict retried once then succeeds", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT revision FROM routing_records`).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows([]string{"revision"}).AddRow(int64(3)))
		mock.ExpectExec(`UPDATE routing_records`).
			WithArgs("alice", int64(3), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT revision FROM routing_records`).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows([]string{"revision"}).AddRow(int64(4)))
		mock.ExpectExec(`UPDATE routing_records`).
			WithArgs("alice", int64(4), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewMappingRepository(mock)
		require.NoError(t, repo.TouchLastLogin(ctx, "alice"))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("persistent conflict surfaces after single retry", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		for range 2 {
			mock.ExpectQuery(`SELECT revision FROM routing_records`).
				WithArgs("alice").
				WillReturnRows(pgxmock.NewRows([]string{"revision"}).AddRow(int64(3)))
			mock.ExpectExec(`UPDATE routing_records`).
				WithArgs("alice", int64(3), pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		}

		repo := NewMappingRepository(mock)
		err = repo.TouchLastLogin(ctx, "alice")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "ROUTING_RECORD_CONFLICT")
		assert.NotErrorIs(t, err, broker.ErrNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("vanished record is ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT revision FROM routing_records`).
			WithArgs("alice").
			WillReturnError(pgx.ErrNoRows)

		repo := NewMappingRepository(mock)
		err = repo.TouchLastLogin(ctx, "alice")
		require.Error(t, err)
		assert.ErrorIs(t, err, broker.ErrNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("record deleted between read and update is ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT revision FROM routing_records`).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows([]string{"revision"}).AddRow(int64(3)))
		mock.ExpectExec(`UPDATE routing_records`).
			WithArgs("alice", int64(3), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT revision FROM routing_records`).
			WithArgs("alice").
			WillReturnError(pgx.ErrNoRows)

		repo := NewMappingRepository(mock)
		err = repo.TouchLastLogin(ctx, "alice")
		require.Error(t, err)
		assert.ErrorIs(t, err, broker.ErrNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMappingRepository_RegisterPromoSignup(t *testing.T) {
	ctx := context.Background()

	t.Run("new email creates record", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT 1 FROM promo_signups`).
			WithArgs("promo-signup:alice@example.com").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectExec(`INSERT INTO promo_signups`).
			WithArgs("promo-signup:alice@example.com", "alice@example.com", "Alice Smith", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewMappingRepository(mock)
		already, err := repo.RegisterPromoSignup(ctx, "alice@example.com", "Alice Smith")
		require.NoError(t, err)
		assert.False(t, already)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing email returns already registered without insert", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT 1 FROM promo_signups`).
			WithArgs("promo-signup:alice@example.com").
			WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

		repo := NewMappingRepository(mock)
		already, err := repo.RegisterPromoSignup(ctx, "alice@example.com", "Alice Smith")
		require.NoError(t, err)
		assert.True(t, already)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert race losing to duplicate is already registered, not an error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT 1 FROM promo_signups`).
			WithArgs("promo-signup:alice@example.com").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectExec(`INSERT INTO promo_signups`).
			WithArgs("promo-signup:alice@example.com", "alice@example.com", "Alice Smith", pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		repo := NewMappingRepository(mock)
		already, err := repo.RegisterPromoSignup(ctx, "alice@example.com", "Alice Smith")
		require.NoError(t, err)
		assert.True(t, already)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other insert failure is an error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT 1 FROM promo_signups`).
			WithArgs("promo-signup:alice@example.com").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectExec(`INSERT INTO promo_signups`).
			WithArgs("promo-signup:alice@example.com", "alice@example.com", "Alice Smith", pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))

		repo := NewMappingRepository(mock)
		_, err = repo.RegisterPromoSignup(ctx, "alice@example.com", "Alice Smith")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMappingRepository_StoreTelemetry(t *testing.T) {
	ctx := context.Background()

	t.Run("appends event with currency code", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO telemetry_events`).
			WithArgs(pgxmock.AnyArg(), "offline-onboarding", "alice", []byte(`"USD"`), (*string)(nil), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewMappingRepository(mock)
		err = repo.StoreTelemetry(ctx, "offline-onboarding", broker.TelemetryPayload{
			Username: "alice",
			Currency: broker.Currency{Code: "USD"},
		})
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("appends event with currency pair and email", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		email := "alice@example.com"
		mock.ExpectExec(`INSERT INTO telemetry_events`).
			WithArgs(pgxmock.AnyArg(), "offline-onboarding", "alice", []byte(`{"name":"US Dollar","sign":"$"}`), &email, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewMappingRepository(mock)
		err = repo.StoreTelemetry(ctx, "offline-onboarding", broker.TelemetryPayload{
			Username: "alice",
			Currency: broker.Currency{Name: "US Dollar", Sign: "$"},
			Email:    email,
		})
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure is an error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO telemetry_events`).
			WithArgs(pgxmock.AnyArg(), "offline-onboarding", "alice", []byte(`"USD"`), (*string)(nil), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection reset"))

		repo := NewMappingRepository(mock)
		err = repo.StoreTelemetry(ctx, "offline-onboarding", broker.TelemetryPayload{
			Username: "alice",
			Currency: broker.Currency{Code: "USD"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
