package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

// MemberRepository handles persistence of member records and their owned
// contact, education and experience collections.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository constructs the repository.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// CreateWithAccount inserts the identity account and the member record in one
// transaction so onboarding either produces both or neither.
func (r *MemberRepository) CreateWithAccount(ctx context.Context, user *models.User, member *models.Member) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member onboarding: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	const userQuery = `INSERT INTO users (id, username, email, password_hash, full_name, role, active, created_at, updated_at)
        VALUES (:id, :username, :email, :password_hash, :full_name, :role, :active, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, userQuery, user); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrAlreadyExists, "an account already exists for this registry key")
		}
		return fmt.Errorf("insert identity account: %w", err)
	}

	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	member.UserID = user.ID
	member.CreatedAt = now
	member.UpdatedAt = now

	const memberQuery = `INSERT INTO members (id, user_id, registry_key, full_name, mobile, national_id, job_title, bio,
        wallet_balance, status, status_reason, notable, branch, created_at, updated_at)
        VALUES (:id, :user_id, :registry_key, :full_name, :mobile, :national_id, :job_title, :bio,
        :wallet_balance, :status, :status_reason, :notable, :branch, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, memberQuery, member); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrAlreadyExists, "a member already exists for this registry key")
		}
		return fmt.Errorf("insert member: %w", err)
	}

	for i := range member.Emails {
		member.Emails[i].MemberID = member.ID
		if err = r.insertEmailTx(ctx, tx, &member.Emails[i]); err != nil {
			return err
		}
	}

	for i := range member.Educations {
		member.Educations[i].MemberID = member.ID
		if err = r.insertEducationTx(ctx, tx, &member.Educations[i]); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit member onboarding: %w", err)
	}
	return nil
}

const memberColumns = `id, user_id, registry_key, full_name, mobile, national_id, job_title, bio,
        wallet_balance, status, status_reason, notable, branch, created_at, updated_at, deleted_at`

// FindByID returns a member by its ID. Soft-deleted members are excluded.
func (r *MemberRepository) FindByID(ctx context.Context, id string) (*models.Member, error) {
	query := fmt.Sprintf(`SELECT %s FROM members WHERE id = $1 AND deleted_at IS NULL`, memberColumns)
	var member models.Member
	if err := r.db.GetContext(ctx, &member, query, id); err != nil {
		return nil, err
	}
	return &member, nil
}

// FindByUserID returns the member owning the given identity account.
func (r *MemberRepository) FindByUserID(ctx context.Context, userID string) (*models.Member, error) {
	query := fmt.Sprintf(`SELECT %s FROM members WHERE user_id = $1 AND deleted_at IS NULL`, memberColumns)
	var member models.Member
	if err := r.db.GetContext(ctx, &member, query, userID); err != nil {
		return nil, err
	}
	return &member, nil
}

// FindByRegistryKey returns a member by its external registry key, including
// soft-deleted rows so onboarding can detect any prior import.
func (r *MemberRepository) FindByRegistryKey(ctx context.Context, registryKey string) (*models.Member, error) {
	query := fmt.Sprintf(`SELECT %s FROM members WHERE UPPER(registry_key) = UPPER($1)`, memberColumns)
	var member models.Member
	if err := r.db.GetContext(ctx, &member, query, registryKey); err != nil {
		return nil, err
	}
	return &member, nil
}

// List returns members filtered by the provided criteria.
func (r *MemberRepository) List(ctx context.Context, filter models.MemberFilter) ([]models.Member, int, error) {
	base := `FROM members m`
	conditions := []string{"m.deleted_at IS NULL"}
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(m.full_name ILIKE $%d OR m.registry_key ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("m.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Branch != "" {
		conditions = append(conditions, fmt.Sprintf("m.branch = $%d", len(args)+1))
		args = append(args, filter.Branch)
	}
	if filter.Notable != nil {
		conditions = append(conditions, fmt.Sprintf("m.notable = $%d", len(args)+1))
		args = append(args, *filter.Notable)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"created_at": "m.created_at",
		"full_name":  "m.full_name",
		"status":     "m.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "m.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT m.id, m.user_id, m.registry_key, m.full_name, m.mobile, m.national_id, m.job_title, m.bio,
        m.wallet_balance, m.status, m.status_reason, m.notable, m.branch, m.created_at, m.updated_at, m.deleted_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var members []models.Member
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}
	return members, total, nil
}

// UpdateProfile persists the editable profile fields.
func (r *MemberRepository) UpdateProfile(ctx context.Context, member *models.Member) error {
	member.UpdatedAt = time.Now().UTC()
	const query = `UPDATE members SET full_name = :full_name, mobile = :mobile, national_id = :national_id,
        job_title = :job_title, bio = :bio, branch = :branch, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, member)
	if err != nil {
		return fmt.Errorf("update member profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update member profile rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus moves the member to a new lifecycle state with an audit reason.
// The WHERE guard on the current status makes concurrent decisions race-safe:
// only one of two competing transitions sees an affected row.
func (r *MemberRepository) UpdateStatus(ctx context.Context, id string, from, to models.MemberStatus, reason string) error {
	const query = `UPDATE members SET status = $3, status_reason = $4, updated_at = $5
        WHERE id = $1 AND status = $2 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, from, to, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update member status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update member status rows: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "member is no longer in the expected state")
	}
	return nil
}

// SetNotable toggles the notable flag.
func (r *MemberRepository) SetNotable(ctx context.Context, id string, notable bool) error {
	const query = `UPDATE members SET notable = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, notable, time.Now().UTC()); err != nil {
		return fmt.Errorf("set member notable: %w", err)
	}
	return nil
}

// SoftDelete marks the member deleted without discarding history.
func (r *MemberRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE members SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete member rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeductWallet atomically lowers the balance, refusing to go below zero. The
// conditional WHERE is the concurrency guard: a losing concurrent deduction
// affects zero rows and surfaces as insufficient balance.
func (r *MemberRepository) DeductWallet(ctx context.Context, memberID string, amount int64) error {
	if amount <= 0 {
		return appErrors.WithDetails(appErrors.ErrNegativeDeduction, map[string]interface{}{
			"requested": amount,
		})
	}
	const query = `UPDATE members SET wallet_balance = wallet_balance - $2, updated_at = $3
        WHERE id = $1 AND wallet_balance >= $2 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, memberID, amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deduct wallet: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deduct wallet rows: %w", err)
	}
	if affected == 0 {
		return appErrors.WithDetails(appErrors.ErrInsufficientBalance, map[string]interface{}{
			"requested": amount,
		})
	}
	return nil
}

// CreditWallet raises the balance.
func (r *MemberRepository) CreditWallet(ctx context.Context, memberID string, amount int64) error {
	if amount <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "credit amount must be positive")
	}
	const query = `UPDATE members SET wallet_balance = wallet_balance + $2, updated_at = $3
        WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, memberID, amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit wallet rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// WalletBalance reads the current balance.
func (r *MemberRepository) WalletBalance(ctx context.Context, memberID string) (int64, error) {
	const query = `SELECT wallet_balance FROM members WHERE id = $1 AND deleted_at IS NULL`
	var balance int64
	if err := r.db.GetContext(ctx, &balance, query, memberID); err != nil {
		return 0, err
	}
	return balance, nil
}

// PrimaryEmail returns the member's primary contact address, falling back to
// the oldest address when no primary is set.
func (r *MemberRepository) PrimaryEmail(ctx context.Context, memberID string) (string, error) {
	const query = `SELECT address FROM member_emails WHERE member_id = $1
        ORDER BY is_primary DESC, created_at ASC LIMIT 1`
	var address string
	if err := r.db.GetContext(ctx, &address, query, memberID); err != nil {
		return "", err
	}
	return address, nil
}

// ListEmails returns the member's emails, primary first.
func (r *MemberRepository) ListEmails(ctx context.Context, memberID string) ([]models.MemberEmail, error) {
	const query = `SELECT id, member_id, address, is_primary, created_at FROM member_emails
        WHERE member_id = $1 ORDER BY is_primary DESC, created_at ASC`
	var emails []models.MemberEmail
	if err := r.db.SelectContext(ctx, &emails, query, memberID); err != nil {
		return nil, fmt.Errorf("list member emails: %w", err)
	}
	return emails, nil
}

// AddEmail appends a contact email.
func (r *MemberRepository) AddEmail(ctx context.Context, email *models.MemberEmail) error {
	if email.ID == "" {
		email.ID = uuid.NewString()
	}
	email.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO member_emails (id, member_id, address, is_primary, created_at)
        VALUES (:id, :member_id, :address, :is_primary, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, email); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrAlreadyExists, "email already registered for this member")
		}
		return fmt.Errorf("add member email: %w", err)
	}
	return nil
}

// SetPrimaryEmail swaps the primary flag to the given email in one
// transaction so a reader never observes two primaries.
func (r *MemberRepository) SetPrimaryEmail(ctx context.Context, memberID, emailID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin primary email swap: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const clearQuery = `UPDATE member_emails SET is_primary = FALSE WHERE member_id = $1 AND is_primary`
	if _, err = tx.ExecContext(ctx, clearQuery, memberID); err != nil {
		return fmt.Errorf("clear primary email: %w", err)
	}

	const setQuery = `UPDATE member_emails SET is_primary = TRUE WHERE id = $1 AND member_id = $2`
	result, err := tx.ExecContext(ctx, setQuery, emailID, memberID)
	if err != nil {
		return fmt.Errorf("set primary email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set primary email rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit primary email swap: %w", err)
	}
	return nil
}

// RemoveEmail deletes a contact email.
func (r *MemberRepository) RemoveEmail(ctx context.Context, memberID, emailID string) error {
	const query = `DELETE FROM member_emails WHERE id = $1 AND member_id = $2`
	result, err := r.db.ExecContext(ctx, query, emailID, memberID)
	if err != nil {
		return fmt.Errorf("remove member email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove member email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListMobiles returns the member's mobile numbers, primary first.
func (r *MemberRepository) ListMobiles(ctx context.Context, memberID string) ([]models.MemberMobile, error) {
	const query = `SELECT id, member_id, number, is_primary, created_at FROM member_mobiles
        WHERE member_id = $1 ORDER BY is_primary DESC, created_at ASC`
	var mobiles []models.MemberMobile
	if err := r.db.SelectContext(ctx, &mobiles, query, memberID); err != nil {
		return nil, fmt.Errorf("list member mobiles: %w", err)
	}
	return mobiles, nil
}

// AddMobile appends a mobile number.
func (r *MemberRepository) AddMobile(ctx context.Context, mobile *models.MemberMobile) error {
	if mobile.ID == "" {
		mobile.ID = uuid.NewString()
	}
	mobile.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO member_mobiles (id, member_id, number, is_primary, created_at)
        VALUES (:id, :member_id, :number, :is_primary, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, mobile); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrAlreadyExists, "mobile number already registered for this member")
		}
		return fmt.Errorf("add member mobile: %w", err)
	}
	return nil
}

// SetPrimaryMobile swaps the primary flag to the given mobile number.
func (r *MemberRepository) SetPrimaryMobile(ctx context.Context, memberID, mobileID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin primary mobile swap: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const clearQuery = `UPDATE member_mobiles SET is_primary = FALSE WHERE member_id = $1 AND is_primary`
	if _, err = tx.ExecContext(ctx, clearQuery, memberID); err != nil {
		return fmt.Errorf("clear primary mobile: %w", err)
	}

	const setQuery = `UPDATE member_mobiles SET is_primary = TRUE WHERE id = $1 AND member_id = $2`
	result, err := tx.ExecContext(ctx, setQuery, mobileID, memberID)
	if err != nil {
		return fmt.Errorf("set primary mobile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set primary mobile rows: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit primary mobile swap: %w", err)
	}
	return nil
}

// RemoveMobile deletes a mobile number.
func (r *MemberRepository) RemoveMobile(ctx context.Context, memberID, mobileID string) error {
	const query = `DELETE FROM member_mobiles WHERE id = $1 AND member_id = $2`
	result, err := r.db.ExecContext(ctx, query, mobileID, memberID)
	if err != nil {
		return fmt.Errorf("remove member mobile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove member mobile rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddPhone appends a landline number.
func (r *MemberRepository) AddPhone(ctx context.Context, phone *models.MemberPhone) error {
	if phone.ID == "" {
		phone.ID = uuid.NewString()
	}
	phone.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO member_phones (id, member_id, number, is_primary, created_at)
        VALUES (:id, :member_id, :number, :is_primary, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, phone); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrAlreadyExists, "phone number already registered for this member")
		}
		return fmt.Errorf("add member phone: %w", err)
	}
	return nil
}

// ListPhones returns the member's landline numbers.
func (r *MemberRepository) ListPhones(ctx context.Context, memberID string) ([]models.MemberPhone, error) {
	const query = `SELECT id, member_id, number, is_primary, created_at FROM member_phones
        WHERE member_id = $1 ORDER BY is_primary DESC, created_at ASC`
	var phones []models.MemberPhone
	if err := r.db.SelectContext(ctx, &phones, query, memberID); err != nil {
		return nil, fmt.Errorf("list member phones: %w", err)
	}
	return phones, nil
}

// ListEducations returns the member's education entries, newest first.
func (r *MemberRepository) ListEducations(ctx context.Context, memberID string) ([]models.MemberEducation, error) {
	const query = `SELECT id, member_id, institution, degree, graduation_year, semester, created_at
        FROM member_educations WHERE member_id = $1 ORDER BY graduation_year DESC, created_at DESC`
	var educations []models.MemberEducation
	if err := r.db.SelectContext(ctx, &educations, query, memberID); err != nil {
		return nil, fmt.Errorf("list member educations: %w", err)
	}
	return educations, nil
}

// AddEducation appends an education entry. The unique index on the natural key
// (member, institution, degree, year) backs the duplicate rejection.
func (r *MemberRepository) AddEducation(ctx context.Context, entry *models.MemberEducation) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO member_educations (id, member_id, institution, degree, graduation_year, semester, created_at)
        VALUES (:id, :member_id, :institution, :degree, :graduation_year, :semester, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		if isUniqueViolation(err) {
			return appErrors.ErrDuplicateEducation
		}
		return fmt.Errorf("add member education: %w", err)
	}
	return nil
}

func (r *MemberRepository) insertEmailTx(ctx context.Context, tx *sqlx.Tx, email *models.MemberEmail) error {
	if email.ID == "" {
		email.ID = uuid.NewString()
	}
	email.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO member_emails (id, member_id, address, is_primary, created_at)
        VALUES (:id, :member_id, :address, :is_primary, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, email); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrAlreadyExists, "email already registered for this member")
		}
		return fmt.Errorf("insert imported email: %w", err)
	}
	return nil
}

func (r *MemberRepository) insertEducationTx(ctx context.Context, tx *sqlx.Tx, entry *models.MemberEducation) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO member_educations (id, member_id, institution, degree, graduation_year, semester, created_at)
        VALUES (:id, :member_id, :institution, :degree, :graduation_year, :semester, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		if isUniqueViolation(err) {
			return appErrors.ErrDuplicateEducation
		}
		return fmt.Errorf("insert imported education: %w", err)
	}
	return nil
}

// ListExperiences returns the member's work history, newest first.
func (r *MemberRepository) ListExperiences(ctx context.Context, memberID string) ([]models.MemberExperience, error) {
	const query = `SELECT id, member_id, company, title, started_at, ended_at, created_at
        FROM member_experiences WHERE member_id = $1 ORDER BY started_at DESC`
	var experiences []models.MemberExperience
	if err := r.db.SelectContext(ctx, &experiences, query, memberID); err != nil {
		return nil, fmt.Errorf("list member experiences: %w", err)
	}
	return experiences, nil
}

// AddExperience appends a work-history entry backed by the natural-key unique
// index (member, company, title, start date).
func (r *MemberRepository) AddExperience(ctx context.Context, entry *models.MemberExperience) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO member_experiences (id, member_id, company, title, started_at, ended_at, created_at)
        VALUES (:id, :member_id, :company, :title, :started_at, :ended_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		if isUniqueViolation(err) {
			return appErrors.ErrDuplicateExperience
		}
		return fmt.Errorf("add member experience: %w", err)
	}
	return nil
}

// RemoveExperience deletes a work-history entry.
func (r *MemberRepository) RemoveExperience(ctx context.Context, memberID, entryID string) error {
	const query = `DELETE FROM member_experiences WHERE id = $1 AND member_id = $2`
	result, err := r.db.ExecContext(ctx, query, entryID, memberID)
	if err != nil {
		return fmt.Errorf("remove member experience: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove member experience rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
