package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/open-alumni/portal-api/internal/models"
)

func newPaymentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestPaymentRepositorySettleReplay(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_transactions SET status = $2")).
		WithArgs("gw-ref-1", models.PaymentConfirmed, sqlmock.AnyArg(), models.PaymentPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_transactions SET status = $2")).
		WithArgs("gw-ref-1", models.PaymentConfirmed, sqlmock.AnyArg(), models.PaymentPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	settled, err := repo.Settle(context.Background(), "gw-ref-1", models.PaymentConfirmed)
	require.NoError(t, err)
	require.True(t, settled)

	replay, err := repo.Settle(context.Background(), "gw-ref-1", models.PaymentConfirmed)
	require.NoError(t, err)
	require.False(t, replay, "a replayed callback must not settle twice")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryFindByGatewayRef(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "request_kind", "request_id", "member_id", "gateway_ref", "amount", "currency", "status", "created_at", "settled_at"}).
		AddRow("pay-1", models.RequestKindCertificate, "req-1", "mem-1", "gw-ref-1", int64(600), "USD", models.PaymentPending, time.Now(), nil)
	mock.ExpectQuery(`SELECT .+ FROM payment_transactions WHERE gateway_ref = \$1`).
		WithArgs("gw-ref-1").
		WillReturnRows(rows)

	transaction, err := repo.FindByGatewayRef(context.Background(), "gw-ref-1")
	require.NoError(t, err)
	require.Equal(t, "req-1", transaction.RequestID)
	require.Equal(t, models.PaymentPending, transaction.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryListStalePending(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	cutoff := time.Now().Add(-30 * time.Minute)
	rows := sqlmock.NewRows([]string{"id", "request_kind", "request_id", "member_id", "gateway_ref", "amount", "currency", "status", "created_at", "settled_at"}).
		AddRow("pay-1", models.RequestKindMembership, "req-1", "mem-1", "gw-ref-1", int64(1000), "USD", models.PaymentPending, cutoff.Add(-time.Hour), nil)
	mock.ExpectQuery(`SELECT .+ FROM payment_transactions WHERE status = \$1 AND created_at < \$2`).
		WithArgs(models.PaymentPending, cutoff).
		WillReturnRows(rows)

	stale, err := repo.ListStalePending(context.Background(), cutoff, 100)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
