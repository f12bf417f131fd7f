package service

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

type memberRepository interface {
	FindByID(ctx context.Context, id string) (*models.Member, error)
	FindByUserID(ctx context.Context, userID string) (*models.Member, error)
	List(ctx context.Context, filter models.MemberFilter) ([]models.Member, int, error)
	UpdateProfile(ctx context.Context, member *models.Member) error
	UpdateStatus(ctx context.Context, id string, from, to models.MemberStatus, reason string) error
	SetNotable(ctx context.Context, id string, notable bool) error
	SoftDelete(ctx context.Context, id string) error
	DeductWallet(ctx context.Context, memberID string, amount int64) error
	CreditWallet(ctx context.Context, memberID string, amount int64) error
	WalletBalance(ctx context.Context, memberID string) (int64, error)
	ListEmails(ctx context.Context, memberID string) ([]models.MemberEmail, error)
	AddEmail(ctx context.Context, email *models.MemberEmail) error
	SetPrimaryEmail(ctx context.Context, memberID, emailID string) error
	RemoveEmail(ctx context.Context, memberID, emailID string) error
	ListMobiles(ctx context.Context, memberID string) ([]models.MemberMobile, error)
	AddMobile(ctx context.Context, mobile *models.MemberMobile) error
	SetPrimaryMobile(ctx context.Context, memberID, mobileID string) error
	RemoveMobile(ctx context.Context, memberID, mobileID string) error
	ListPhones(ctx context.Context, memberID string) ([]models.MemberPhone, error)
	AddPhone(ctx context.Context, phone *models.MemberPhone) error
	ListEducations(ctx context.Context, memberID string) ([]models.MemberEducation, error)
	AddEducation(ctx context.Context, entry *models.MemberEducation) error
	ListExperiences(ctx context.Context, memberID string) ([]models.MemberExperience, error)
	AddExperience(ctx context.Context, entry *models.MemberExperience) error
	RemoveExperience(ctx context.Context, memberID, entryID string) error
}

// UpdateProfileRequest carries the editable profile fields.
type UpdateProfileRequest struct {
	FullName   string `json:"full_name" validate:"required"`
	Mobile     string `json:"mobile"`
	NationalID string `json:"national_id"`
	JobTitle   string `json:"job_title"`
	Bio        string `json:"bio"`
	Branch     string `json:"branch"`
}

// AddContactRequest carries one contact value.
type AddContactRequest struct {
	Value     string `json:"value" validate:"required"`
	IsPrimary bool   `json:"is_primary"`
}

// AddEducationRequest carries an education entry.
type AddEducationRequest struct {
	Institution    string `json:"institution" validate:"required"`
	Degree         string `json:"degree" validate:"required"`
	GraduationYear int    `json:"graduation_year" validate:"required,gt=1900"`
	Semester       int    `json:"semester"`
}

// AddExperienceRequest carries a work-history entry.
type AddExperienceRequest struct {
	Company   string  `json:"company" validate:"required"`
	Title     string  `json:"title" validate:"required"`
	StartedAt string  `json:"started_at" validate:"required"`
	EndedAt   *string `json:"ended_at"`
}

// CreditWalletRequest tops up a wallet. Amount is in minor currency units.
type CreditWalletRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Note   string `json:"note"`
}

// DecisionRequest carries the administrator's reason.
type DecisionRequest struct {
	Reason string `json:"reason"`
}

// MemberService manages member records, contacts and the lifecycle decisions.
type MemberService struct {
	repo      memberRepository
	audits    auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMemberService constructs MemberService.
func NewMemberService(repo memberRepository, audits auditWriter, validate *validator.Validate, logger *zap.Logger) *MemberService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberService{repo: repo, audits: audits, validator: validate, logger: logger}
}

// Get returns the member with its owned collections loaded.
func (s *MemberService) Get(ctx context.Context, id string) (*models.Member, error) {
	member, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	if member.Emails, err = s.repo.ListEmails(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member emails")
	}
	if member.Mobiles, err = s.repo.ListMobiles(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member mobiles")
	}
	if member.Phones, err = s.repo.ListPhones(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member phones")
	}
	if member.Educations, err = s.repo.ListEducations(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member educations")
	}
	if member.Experiences, err = s.repo.ListExperiences(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member experiences")
	}
	return member, nil
}

// GetByUser resolves the member owning an identity account.
func (s *MemberService) GetByUser(ctx context.Context, userID string) (*models.Member, error) {
	member, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	return s.Get(ctx, member.ID)
}

// List returns members with pagination metadata.
func (s *MemberService) List(ctx context.Context, filter models.MemberFilter) ([]models.Member, *models.Pagination, error) {
	members, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list members")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return members, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateProfile persists the editable profile fields.
func (s *MemberService) UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest) (*models.Member, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	if err := models.ValidateMobile(req.Mobile); err != nil {
		return nil, err
	}
	member, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	member.FullName = req.FullName
	member.Mobile = req.Mobile
	member.NationalID = req.NationalID
	member.JobTitle = req.JobTitle
	member.Bio = req.Bio
	member.Branch = req.Branch
	if err := s.repo.UpdateProfile(ctx, member); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return member, nil
}

// AddEmail appends a contact email, optionally making it primary.
func (s *MemberService) AddEmail(ctx context.Context, memberID string, req AddContactRequest) (*models.MemberEmail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contact payload")
	}
	if err := s.validator.Var(req.Value, "email"); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid email address")
	}
	email := &models.MemberEmail{MemberID: memberID, Address: req.Value}
	if err := s.repo.AddEmail(ctx, email); err != nil {
		return nil, err
	}
	if req.IsPrimary {
		if err := s.repo.SetPrimaryEmail(ctx, memberID, email.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set primary email")
		}
		email.IsPrimary = true
	}
	return email, nil
}

// SetPrimaryEmail swaps the member's primary email.
func (s *MemberService) SetPrimaryEmail(ctx context.Context, memberID, emailID string) error {
	if err := s.repo.SetPrimaryEmail(ctx, memberID, emailID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "email not found on member")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set primary email")
	}
	return nil
}

// RemoveEmail deletes a contact email.
func (s *MemberService) RemoveEmail(ctx context.Context, memberID, emailID string) error {
	if err := s.repo.RemoveEmail(ctx, memberID, emailID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "email not found on member")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove email")
	}
	return nil
}

// AddMobile appends a mobile number after the format check.
func (s *MemberService) AddMobile(ctx context.Context, memberID string, req AddContactRequest) (*models.MemberMobile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contact payload")
	}
	if err := models.ValidateMobile(req.Value); err != nil {
		return nil, err
	}
	mobile := &models.MemberMobile{MemberID: memberID, Number: req.Value}
	if err := s.repo.AddMobile(ctx, mobile); err != nil {
		return nil, err
	}
	if req.IsPrimary {
		if err := s.repo.SetPrimaryMobile(ctx, memberID, mobile.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set primary mobile")
		}
		mobile.IsPrimary = true
	}
	return mobile, nil
}

// SetPrimaryMobile swaps the member's primary mobile number.
func (s *MemberService) SetPrimaryMobile(ctx context.Context, memberID, mobileID string) error {
	if err := s.repo.SetPrimaryMobile(ctx, memberID, mobileID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "mobile not found on member")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set primary mobile")
	}
	return nil
}

// RemoveMobile deletes a mobile number.
func (s *MemberService) RemoveMobile(ctx context.Context, memberID, mobileID string) error {
	if err := s.repo.RemoveMobile(ctx, memberID, mobileID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "mobile not found on member")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove mobile")
	}
	return nil
}

// AddPhone appends a landline number.
func (s *MemberService) AddPhone(ctx context.Context, memberID string, req AddContactRequest) (*models.MemberPhone, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contact payload")
	}
	phone := &models.MemberPhone{MemberID: memberID, Number: req.Value, IsPrimary: req.IsPrimary}
	if err := s.repo.AddPhone(ctx, phone); err != nil {
		return nil, err
	}
	return phone, nil
}

// AddEducation appends an education entry.
func (s *MemberService) AddEducation(ctx context.Context, memberID string, req AddEducationRequest) (*models.MemberEducation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid education payload")
	}
	entry := &models.MemberEducation{
		MemberID:       memberID,
		Institution:    req.Institution,
		Degree:         req.Degree,
		GraduationYear: req.GraduationYear,
		Semester:       req.Semester,
	}
	if err := s.repo.AddEducation(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// AddExperience appends a work-history entry.
func (s *MemberService) AddExperience(ctx context.Context, memberID string, entry *models.MemberExperience) (*models.MemberExperience, error) {
	if entry.Company == "" || entry.Title == "" || entry.StartedAt.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "company, title and start date are required")
	}
	entry.MemberID = memberID
	if err := s.repo.AddExperience(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RemoveExperience deletes a work-history entry.
func (s *MemberService) RemoveExperience(ctx context.Context, memberID, entryID string) error {
	if err := s.repo.RemoveExperience(ctx, memberID, entryID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "experience not found on member")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove experience")
	}
	return nil
}

// WalletBalance reads the member's balance.
func (s *MemberService) WalletBalance(ctx context.Context, memberID string) (int64, error) {
	balance, err := s.repo.WalletBalance(ctx, memberID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read wallet balance")
	}
	return balance, nil
}

// CreditWallet tops up the member's wallet.
func (s *MemberService) CreditWallet(ctx context.Context, memberID string, req CreditWalletRequest, actorID string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credit payload")
	}
	if err := s.repo.CreditWallet(ctx, memberID, req.Amount); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return err
	}
	s.writeAudit(ctx, actorID, "WALLET_CREDIT", memberID, map[string]interface{}{
		"amount": req.Amount,
		"note":   req.Note,
	})
	return nil
}

// Approve activates a pending member.
func (s *MemberService) Approve(ctx context.Context, memberID, actorID string) error {
	return s.transition(ctx, memberID, models.MemberStatusActive, "", actorID, models.AuditActionMemberApprove)
}

// Reject declines a member with a reason.
func (s *MemberService) Reject(ctx context.Context, memberID string, req DecisionRequest, actorID string) error {
	return s.transition(ctx, memberID, models.MemberStatusRejected, req.Reason, actorID, models.AuditActionMemberReject)
}

// Ban blocks a member with a reason.
func (s *MemberService) Ban(ctx context.Context, memberID string, req DecisionRequest, actorID string) error {
	return s.transition(ctx, memberID, models.MemberStatusBanned, req.Reason, actorID, models.AuditActionMemberBan)
}

// SetNotable toggles the notable flag.
func (s *MemberService) SetNotable(ctx context.Context, memberID string, notable bool) error {
	if err := s.repo.SetNotable(ctx, memberID, notable); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notable flag")
	}
	return nil
}

// Delete soft-deletes a member record.
func (s *MemberService) Delete(ctx context.Context, memberID string) error {
	if err := s.repo.SoftDelete(ctx, memberID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete member")
	}
	return nil
}

func (s *MemberService) transition(ctx context.Context, memberID string, to models.MemberStatus, reason, actorID, auditAction string) error {
	member, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	if member.Status == to {
		switch to {
		case models.MemberStatusActive:
			return appErrors.ErrAlreadyActive
		case models.MemberStatusBanned:
			return appErrors.ErrAlreadyBanned
		default:
			return appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]interface{}{
				"from": member.Status,
				"to":   to,
			})
		}
	}
	if !models.CanTransition(member.Status, to) {
		return appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]interface{}{
			"from": member.Status,
			"to":   to,
		})
	}
	if err := s.repo.UpdateStatus(ctx, memberID, member.Status, to, reason); err != nil {
		return err
	}
	s.writeAudit(ctx, actorID, auditAction, memberID, map[string]interface{}{
		"from":   member.Status,
		"to":     to,
		"reason": reason,
	})
	s.logger.Info("member status changed",
		zap.String("member_id", memberID),
		zap.String("from", string(member.Status)),
		zap.String("to", string(to)))
	return nil
}

func (s *MemberService) writeAudit(ctx context.Context, actorID, action, resourceID string, values map[string]interface{}) {
	if s.audits == nil {
		return
	}
	payload, _ := json.Marshal(values)
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "member",
		ResourceID: &resourceID,
		NewValues:  payload,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audits.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
