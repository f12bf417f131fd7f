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

// MembershipRepository handles persistence of membership plans and
// applications.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository constructs the repository.
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// ListPlans returns the active fee schedules.
func (r *MembershipRepository) ListPlans(ctx context.Context) ([]models.MembershipPlan, error) {
	const query = `SELECT id, name, period_months, fee, active, created_at FROM membership_plans
        WHERE active ORDER BY period_months ASC`
	var plans []models.MembershipPlan
	if err := r.db.SelectContext(ctx, &plans, query); err != nil {
		return nil, fmt.Errorf("list membership plans: %w", err)
	}
	return plans, nil
}

// FindPlan returns a plan by its ID.
func (r *MembershipRepository) FindPlan(ctx context.Context, id string) (*models.MembershipPlan, error) {
	const query = `SELECT id, name, period_months, fee, active, created_at FROM membership_plans WHERE id = $1`
	var plan models.MembershipPlan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		return nil, err
	}
	return &plan, nil
}

const applicationColumns = `id, member_id, plan_id, idempotency_key, status, wallet_refunded,
        total_amount, wallet_amount, gateway_amount, remaining_amount, created_at, updated_at`

// CreateApplication draws the wallet share and persists the application in
// one transaction, so the draw and the row commit or roll back together. The
// conditional wallet UPDATE settles the balance race; the unique index on the
// idempotency key backs retry deduplication.
func (r *MembershipRepository) CreateApplication(ctx context.Context, application *models.MembershipApplication) (err error) {
	if application.ID == "" {
		application.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	application.CreatedAt = now
	application.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin application submission: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if application.WalletAmount > 0 {
		const draw = `UPDATE members SET wallet_balance = wallet_balance - $2, updated_at = $3
        WHERE id = $1 AND wallet_balance >= $2 AND deleted_at IS NULL`
		result, drawErr := tx.ExecContext(ctx, draw, application.MemberID, application.WalletAmount, now)
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
				"requested": application.WalletAmount,
			})
			return err
		}
	}

	const query = `INSERT INTO membership_applications (id, member_id, plan_id, idempotency_key, status, wallet_refunded,
        total_amount, wallet_amount, gateway_amount, remaining_amount, created_at, updated_at)
        VALUES (:id, :member_id, :plan_id, :idempotency_key, :status, :wallet_refunded,
        :total_amount, :wallet_amount, :gateway_amount, :remaining_amount, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, application); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrDuplicateSubmission, "an application with this idempotency key already exists")
		}
		return fmt.Errorf("create membership application: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit application submission: %w", err)
	}
	return nil
}

// FindApplication returns an application by its ID.
func (r *MembershipRepository) FindApplication(ctx context.Context, id string) (*models.MembershipApplication, error) {
	query := fmt.Sprintf(`SELECT %s FROM membership_applications WHERE id = $1`, applicationColumns)
	var application models.MembershipApplication
	if err := r.db.GetContext(ctx, &application, query, id); err != nil {
		return nil, err
	}
	return &application, nil
}

// FindApplicationByKey returns the application previously submitted with the
// given idempotency key, if any. The key is unique across all applications,
// not per member.
func (r *MembershipRepository) FindApplicationByKey(ctx context.Context, idempotencyKey string) (*models.MembershipApplication, error) {
	query := fmt.Sprintf(`SELECT %s FROM membership_applications WHERE idempotency_key = $1 LIMIT 1`, applicationColumns)
	var application models.MembershipApplication
	if err := r.db.GetContext(ctx, &application, query, idempotencyKey); err != nil {
		return nil, err
	}
	return &application, nil
}

// FindApplicationDetail joins plan context for read endpoints.
func (r *MembershipRepository) FindApplicationDetail(ctx context.Context, id string) (*models.MembershipApplicationDetail, error) {
	const query = `SELECT a.id, a.member_id, a.plan_id, a.idempotency_key, a.status, a.wallet_refunded,
        a.total_amount, a.wallet_amount, a.gateway_amount, a.remaining_amount, a.created_at, a.updated_at,
        p.name AS plan_name, p.period_months
        FROM membership_applications a
        LEFT JOIN membership_plans p ON p.id = a.plan_id
        WHERE a.id = $1`
	var detail models.MembershipApplicationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByMember returns a member's applications, newest first.
func (r *MembershipRepository) ListByMember(ctx context.Context, memberID string) ([]models.MembershipApplicationDetail, error) {
	const query = `SELECT a.id, a.member_id, a.plan_id, a.idempotency_key, a.status, a.wallet_refunded,
        a.total_amount, a.wallet_amount, a.gateway_amount, a.remaining_amount, a.created_at, a.updated_at,
        p.name AS plan_name, p.period_months
        FROM membership_applications a
        LEFT JOIN membership_plans p ON p.id = a.plan_id
        WHERE a.member_id = $1 ORDER BY a.created_at DESC`
	var applications []models.MembershipApplicationDetail
	if err := r.db.SelectContext(ctx, &applications, query, memberID); err != nil {
		return nil, fmt.Errorf("list member applications: %w", err)
	}
	return applications, nil
}

// ListByStatus returns applications in a given status, oldest first, for
// administrative review queues.
func (r *MembershipRepository) ListByStatus(ctx context.Context, status models.RequestStatus, limit int) ([]models.MembershipApplicationDetail, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT a.id, a.member_id, a.plan_id, a.idempotency_key, a.status, a.wallet_refunded,
        a.total_amount, a.wallet_amount, a.gateway_amount, a.remaining_amount, a.created_at, a.updated_at,
        p.name AS plan_name, p.period_months
        FROM membership_applications a
        LEFT JOIN membership_plans p ON p.id = a.plan_id
        WHERE a.status = $1 ORDER BY a.created_at ASC LIMIT %d`, limit)
	var applications []models.MembershipApplicationDetail
	if err := r.db.SelectContext(ctx, &applications, query, status); err != nil {
		return nil, fmt.Errorf("list applications by status: %w", err)
	}
	return applications, nil
}

// UpdateStatus moves the application between states. The WHERE guard on the
// expected current status makes concurrent decisions race-safe.
func (r *MembershipRepository) UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus) error {
	const query = `UPDATE membership_applications SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application status rows: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "application is no longer in the expected state")
	}
	return nil
}

// UpdateSplit persists the funding split after a wallet draw or gateway
// settlement.
func (r *MembershipRepository) UpdateSplit(ctx context.Context, id string, split models.PaymentSplit) error {
	const query = `UPDATE membership_applications SET wallet_amount = $2, gateway_amount = $3, remaining_amount = $4, updated_at = $5
        WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, split.WalletAmount, split.GatewayAmount, split.RemainingAmount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update application split: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application split rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkWalletRefunded flips the refund flag once. The guard makes the refund
// idempotent: a second attempt affects zero rows.
func (r *MembershipRepository) MarkWalletRefunded(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE membership_applications SET wallet_refunded = TRUE, updated_at = $2
        WHERE id = $1 AND NOT wallet_refunded`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark application refunded: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark application refunded rows: %w", err)
	}
	return affected == 1, nil
}
