package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

func newMembershipRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestMembershipRepositoryCreateApplicationDuplicateKey(t *testing.T) {
	db, mock, cleanup := newMembershipRepoMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO membership_applications")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	application := &models.MembershipApplication{
		MemberID:       "mem-1",
		PlanID:         "plan-1",
		IdempotencyKey: "key-1",
		Status:         models.RequestStatusPending,
	}
	err := repo.CreateApplication(context.Background(), application)
	require.True(t, errors.Is(err, appErrors.ErrDuplicateSubmission))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMembershipRepositoryCreateApplicationDrawsWallet(t *testing.T) {
	db, mock, cleanup := newMembershipRepoMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE members SET wallet_balance = wallet_balance - $2")).
		WithArgs("mem-1", int64(400), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO membership_applications")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	application := &models.MembershipApplication{
		MemberID:       "mem-1",
		PlanID:         "plan-1",
		IdempotencyKey: "key-1",
		Status:         models.RequestStatusPending,
		PaymentSplit:   models.PaymentSplit{TotalAmount: 1000, WalletAmount: 400, RemainingAmount: 600},
	}
	require.NoError(t, repo.CreateApplication(context.Background(), application))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMembershipRepositoryCreateApplicationInsufficientBalance(t *testing.T) {
	db, mock, cleanup := newMembershipRepoMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	// The conditional draw matches no row, so the whole submission rolls back.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE members SET wallet_balance = wallet_balance - $2")).
		WithArgs("mem-1", int64(400), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	application := &models.MembershipApplication{
		MemberID:       "mem-1",
		PlanID:         "plan-1",
		IdempotencyKey: "key-1",
		Status:         models.RequestStatusPending,
		PaymentSplit:   models.PaymentSplit{TotalAmount: 1000, WalletAmount: 400, RemainingAmount: 600},
	}
	err := repo.CreateApplication(context.Background(), application)
	require.True(t, errors.Is(err, appErrors.ErrInsufficientBalance))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMembershipRepositoryUpdateStatusGuard(t *testing.T) {
	db, mock, cleanup := newMembershipRepoMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE membership_applications SET status = $3")).
		WithArgs("app-1", models.RequestStatusPending, models.RequestStatusApproved, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "app-1", models.RequestStatusPending, models.RequestStatusApproved))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE membership_applications SET status = $3")).
		WithArgs("app-1", models.RequestStatusPending, models.RequestStatusApproved, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "app-1", models.RequestStatusPending, models.RequestStatusApproved)
	require.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMembershipRepositoryMarkWalletRefundedIdempotent(t *testing.T) {
	db, mock, cleanup := newMembershipRepoMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE membership_applications SET wallet_refunded = TRUE")).
		WithArgs("app-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE membership_applications SET wallet_refunded = TRUE")).
		WithArgs("app-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.MarkWalletRefunded(context.Background(), "app-1")
	require.NoError(t, err)
	require.True(t, first)

	second, err := repo.MarkWalletRefunded(context.Background(), "app-1")
	require.NoError(t, err)
	require.False(t, second, "second refund attempt must not win")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMembershipRepositoryFindApplicationByKey(t *testing.T) {
	db, mock, cleanup := newMembershipRepoMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	rows := sqlmock.NewRows([]string{"id", "member_id", "plan_id", "idempotency_key", "status", "wallet_refunded",
		"total_amount", "wallet_amount", "gateway_amount", "remaining_amount", "created_at", "updated_at"}).
		AddRow("app-1", "mem-1", "plan-1", "key-1", models.RequestStatusPending, false,
			int64(1000), int64(400), int64(0), int64(600), time.Now(), time.Now())
	mock.ExpectQuery(`SELECT .+ FROM membership_applications WHERE idempotency_key = \$1`).
		WithArgs("key-1").
		WillReturnRows(rows)

	application, err := repo.FindApplicationByKey(context.Background(), "key-1")
	require.NoError(t, err)
	require.Equal(t, "app-1", application.ID)
	require.NoError(t, application.PaymentSplit.Validate())
	require.NoError(t, mock.ExpectationsWereMet())
}
