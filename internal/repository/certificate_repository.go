package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

// CertificateRepository handles persistence of certificate types and
// requests.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// ListTypes returns the active certificate definitions.
func (r *CertificateRepository) ListTypes(ctx context.Context) ([]models.CertificateType, error) {
	const query = `SELECT id, name, body, fee, active, created_at FROM certificate_types
        WHERE active ORDER BY name ASC`
	var types []models.CertificateType
	if err := r.db.SelectContext(ctx, &types, query); err != nil {
		return nil, fmt.Errorf("list certificate types: %w", err)
	}
	return types, nil
}

// FindType returns a certificate definition by its ID.
func (r *CertificateRepository) FindType(ctx context.Context, id string) (*models.CertificateType, error) {
	const query = `SELECT id, name, body, fee, active, created_at FROM certificate_types WHERE id = $1`
	var certType models.CertificateType
	if err := r.db.GetContext(ctx, &certType, query, id); err != nil {
		return nil, err
	}
	return &certType, nil
}

const certificateRequestColumns = `id, member_id, type_id, idempotency_key, delivery_method, delivery_address,
        target_branch, delivery_fee, status, wallet_refunded, serial_number, document_path,
        total_amount, wallet_amount, gateway_amount, remaining_amount, created_at, updated_at`

// CreateRequest draws the wallet share and persists the request in one
// transaction, so the draw and the row commit or roll back together. The
// conditional wallet UPDATE settles the balance race; the unique index on the
// idempotency key backs retry deduplication.
func (r *CertificateRepository) CreateRequest(ctx context.Context, request *models.CertificateRequest) (err error) {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin request submission: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if request.WalletAmount > 0 {
		const draw = `UPDATE members SET wallet_balance = wallet_balance - $2, updated_at = $3
        WHERE id = $1 AND wallet_balance >= $2 AND deleted_at IS NULL`
		result, drawErr := tx.ExecContext(ctx, draw, request.MemberID, request.WalletAmount, now)
		if drawErr != nil {
			err = fmt.Errorf("draw wallet share: %w", drawErr)
			return err
		}
		affected, drawErr := result.RowsAffected()
		if drawErr != nil {
			err = fmt.Errorf("draw wallet share rows: %w", drawErr)
			return err
		}
		if affected == 0 {
			err = appErrors.WithDetails(appErrors.ErrInsufficientBalance, map[string]interface{}{
				"requested": request.WalletAmount,
			})
			return err
		}
	}

	const query = `INSERT INTO certificate_requests (id, member_id, type_id, idempotency_key, delivery_method, delivery_address,
        target_branch, delivery_fee, status, wallet_refunded, serial_number, document_path,
        total_amount, wallet_amount, gateway_amount, remaining_amount, created_at, updated_at)
        VALUES (:id, :member_id, :type_id, :idempotency_key, :delivery_method, :delivery_address,
        :target_branch, :delivery_fee, :status, :wallet_refunded, :serial_number, :document_path,
        :total_amount, :wallet_amount, :gateway_amount, :remaining_amount, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, request); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrDuplicateSubmission, "a request with this idempotency key already exists")
		}
		return fmt.Errorf("create certificate request: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit request submission: %w", err)
	}
	return nil
}

// FindRequest returns a certificate request by its ID.
func (r *CertificateRepository) FindRequest(ctx context.Context, id string) (*models.CertificateRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificate_requests WHERE id = $1`, certificateRequestColumns)
	var request models.CertificateRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindRequestByKey returns the request previously submitted with the given
// idempotency key, if any. The key is unique across all requests, not per
// member.
func (r *CertificateRepository) FindRequestByKey(ctx context.Context, idempotencyKey string) (*models.CertificateRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificate_requests WHERE idempotency_key = $1 LIMIT 1`, certificateRequestColumns)
	var request models.CertificateRequest
	if err := r.db.GetContext(ctx, &request, query, idempotencyKey); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindRequestDetail joins type context for read endpoints.
func (r *CertificateRepository) FindRequestDetail(ctx context.Context, id string) (*models.CertificateRequestDetail, error) {
	const query = `SELECT c.id, c.member_id, c.type_id, c.idempotency_key, c.delivery_method, c.delivery_address,
        c.target_branch, c.delivery_fee, c.status, c.wallet_refunded, c.serial_number, c.document_path,
        c.total_amount, c.wallet_amount, c.gateway_amount, c.remaining_amount, c.created_at, c.updated_at,
        t.name AS type_name
        FROM certificate_requests c
        LEFT JOIN certificate_types t ON t.id = c.type_id
        WHERE c.id = $1`
	var detail models.CertificateRequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByMember returns a member's certificate requests, newest first.
func (r *CertificateRepository) ListByMember(ctx context.Context, memberID string) ([]models.CertificateRequestDetail, error) {
	const query = `SELECT c.id, c.member_id, c.type_id, c.idempotency_key, c.delivery_method, c.delivery_address,
        c.target_branch, c.delivery_fee, c.status, c.wallet_refunded, c.serial_number, c.document_path,
        c.total_amount, c.wallet_amount, c.gateway_amount, c.remaining_amount, c.created_at, c.updated_at,
        t.name AS type_name
        FROM certificate_requests c
        LEFT JOIN certificate_types t ON t.id = c.type_id
        WHERE c.member_id = $1 ORDER BY c.created_at DESC`
	var requests []models.CertificateRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, memberID); err != nil {
		return nil, fmt.Errorf("list member certificate requests: %w", err)
	}
	return requests, nil
}

// ListByStatus returns requests in a given status, oldest first, for the
// administrative review queue.
func (r *CertificateRepository) ListByStatus(ctx context.Context, status models.RequestStatus, limit int) ([]models.CertificateRequestDetail, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT c.id, c.member_id, c.type_id, c.idempotency_key, c.delivery_method, c.delivery_address,
        c.target_branch, c.delivery_fee, c.status, c.wallet_refunded, c.serial_number, c.document_path,
        c.total_amount, c.wallet_amount, c.gateway_amount, c.remaining_amount, c.created_at, c.updated_at,
        t.name AS type_name
        FROM certificate_requests c
        LEFT JOIN certificate_types t ON t.id = c.type_id
        WHERE c.status = $1 ORDER BY c.created_at ASC LIMIT %d`, limit)
	var requests []models.CertificateRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, status); err != nil {
		return nil, fmt.Errorf("list certificate requests by status: %w", err)
	}
	return requests, nil
}

// UpdateStatus moves the request between states with a guard on the expected
// current status.
func (r *CertificateRepository) UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus) error {
	const query = `UPDATE certificate_requests SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update certificate request status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update certificate request status rows: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "certificate request is no longer in the expected state")
	}
	return nil
}

// UpdateSplit persists the funding split after a wallet draw or gateway
// settlement.
func (r *CertificateRepository) UpdateSplit(ctx context.Context, id string, split models.PaymentSplit) error {
	const query = `UPDATE certificate_requests SET wallet_amount = $2, gateway_amount = $3, remaining_amount = $4, updated_at = $5
        WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, split.WalletAmount, split.GatewayAmount, split.RemainingAmount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update certificate request split: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update certificate request split rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkWalletRefunded flips the refund flag once, making the refund
// idempotent.
func (r *CertificateRepository) MarkWalletRefunded(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE certificate_requests SET wallet_refunded = TRUE, updated_at = $2
        WHERE id = $1 AND NOT wallet_refunded`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark certificate request refunded: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark certificate request refunded rows: %w", err)
	}
	return affected == 1, nil
}

// AttachDocument stores the issued serial number and rendered document path.
func (r *CertificateRepository) AttachDocument(ctx context.Context, id, serialNumber, documentPath string) error {
	const query = `UPDATE certificate_requests SET serial_number = $2, document_path = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, serialNumber, documentPath, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("attach certificate document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach certificate document rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
