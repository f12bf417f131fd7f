package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

// PaymentRepository handles persistence of gateway payment transactions.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, request_kind, request_id, member_id, gateway_ref, amount, currency, status, created_at, settled_at`

// Create persists a pending gateway charge. The unique index on gateway_ref
// keeps one row per external charge.
func (r *PaymentRepository) Create(ctx context.Context, transaction *models.PaymentTransaction) error {
	if transaction.ID == "" {
		transaction.ID = uuid.NewString()
	}
	if transaction.Status == "" {
		transaction.Status = models.PaymentPending
	}
	transaction.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO payment_transactions (id, request_kind, request_id, member_id, gateway_ref, amount, currency, status, created_at)
        VALUES (:id, :request_kind, :request_id, :member_id, :gateway_ref, :amount, :currency, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, transaction); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "a transaction with this gateway reference already exists")
		}
		return fmt.Errorf("create payment transaction: %w", err)
	}
	return nil
}

// FindByGatewayRef returns the transaction correlated to a gateway callback.
func (r *PaymentRepository) FindByGatewayRef(ctx context.Context, gatewayRef string) (*models.PaymentTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE gateway_ref = $1 LIMIT 1`, paymentColumns)
	var transaction models.PaymentTransaction
	if err := r.db.GetContext(ctx, &transaction, query, gatewayRef); err != nil {
		return nil, err
	}
	return &transaction, nil
}

// Settle moves a pending transaction to its final state. The status guard
// makes callback replays no-ops: only the first settlement affects a row.
func (r *PaymentRepository) Settle(ctx context.Context, gatewayRef string, status models.PaymentStatus) (bool, error) {
	const query = `UPDATE payment_transactions SET status = $2, settled_at = $3
        WHERE gateway_ref = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, gatewayRef, status, time.Now().UTC(), models.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("settle payment transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("settle payment transaction rows: %w", err)
	}
	return affected == 1, nil
}

// ListStalePending returns pending transactions created before the cutoff,
// oldest first, for the expiry sweep.
func (r *PaymentRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE status = $1 AND created_at < $2
        ORDER BY created_at ASC LIMIT %d`, paymentColumns, limit)
	var transactions []models.PaymentTransaction
	if err := r.db.SelectContext(ctx, &transactions, query, models.PaymentPending, cutoff); err != nil {
		return nil, fmt.Errorf("list stale pending transactions: %w", err)
	}
	return transactions, nil
}

// ListForRequest returns the charges raised for one request.
func (r *PaymentRepository) ListForRequest(ctx context.Context, kind, requestID string) ([]models.PaymentTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE request_kind = $1 AND request_id = $2
        ORDER BY created_at ASC`, paymentColumns)
	var transactions []models.PaymentTransaction
	if err := r.db.SelectContext(ctx, &transactions, query, kind, requestID); err != nil {
		return nil, fmt.Errorf("list request transactions: %w", err)
	}
	return transactions, nil
}
