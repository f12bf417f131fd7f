package service

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/open-alumni/portal-api/internal/gateway"
	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

type membershipRepository interface {
	ListPlans(ctx context.Context) ([]models.MembershipPlan, error)
	FindPlan(ctx context.Context, id string) (*models.MembershipPlan, error)
	CreateApplication(ctx context.Context, application *models.MembershipApplication) error
	FindApplication(ctx context.Context, id string) (*models.MembershipApplication, error)
	FindApplicationByKey(ctx context.Context, idempotencyKey string) (*models.MembershipApplication, error)
	FindApplicationDetail(ctx context.Context, id string) (*models.MembershipApplicationDetail, error)
	ListByMember(ctx context.Context, memberID string) ([]models.MembershipApplicationDetail, error)
	ListByStatus(ctx context.Context, status models.RequestStatus, limit int) ([]models.MembershipApplicationDetail, error)
	UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus) error
	UpdateSplit(ctx context.Context, id string, split models.PaymentSplit) error
	MarkWalletRefunded(ctx context.Context, id string) (bool, error)
}

type walletRepository interface {
	FindByID(ctx context.Context, id string) (*models.Member, error)
	CreditWallet(ctx context.Context, memberID string, amount int64) error
	WalletBalance(ctx context.Context, memberID string) (int64, error)
}

type historyAppender interface {
	Append(ctx context.Context, entry *models.StatusHistoryEntry) error
	ListForRequest(ctx context.Context, kind, requestID string) ([]models.StatusHistoryEntry, error)
}

type chargeCreator interface {
	CreateCharge(ctx context.Context, charge gateway.ChargeRequest) (*gateway.ChargeResponse, error)
}

type paymentRecorder interface {
	Create(ctx context.Context, transaction *models.PaymentTransaction) error
}

// ApplyRequest submits a membership application.
type ApplyRequest struct {
	PlanID         string `json:"plan_id" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
}

// ApplicationResult carries the stored application plus the gateway redirect
// when an outstanding share remains.
type ApplicationResult struct {
	Application *models.MembershipApplication `json:"application"`
	RedirectURL string                        `json:"redirect_url,omitempty"`
}

// MembershipService runs the paid membership application workflow: the fee is
// funded first from the wallet, any shortfall goes to the payment gateway.
type MembershipService struct {
	repo      membershipRepository
	wallets   walletRepository
	history   historyAppender
	payments  paymentRecorder
	charges   chargeCreator
	currency  string
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMembershipService constructs MembershipService.
func NewMembershipService(repo membershipRepository, wallets walletRepository, history historyAppender, payments paymentRecorder, charges chargeCreator, currency string, validate *validator.Validate, logger *zap.Logger) *MembershipService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = "USD"
	}
	return &MembershipService{
		repo:      repo,
		wallets:   wallets,
		history:   history,
		payments:  payments,
		charges:   charges,
		currency:  currency,
		validator: validate,
		logger:    logger,
	}
}

// Plans lists the active fee schedules.
func (s *MembershipService) Plans(ctx context.Context) ([]models.MembershipPlan, error) {
	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plans")
	}
	return plans, nil
}

// Apply submits a membership application. The idempotency key is unique
// across all applications: a second submission with the same key fails with
// DuplicateSubmission. The wallet share is drawn in the same transaction as
// the insert; the remainder becomes a gateway charge.
func (s *MembershipService) Apply(ctx context.Context, memberID string, req ApplyRequest) (*ApplicationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	member, err := s.wallets.FindByID(ctx, memberID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	if member.Status != models.MemberStatusActive {
		return nil, appErrors.WithDetails(appErrors.ErrMembershipNotActive, map[string]interface{}{
			"status": member.Status,
		})
	}

	if existing, err := s.repo.FindApplicationByKey(ctx, req.IdempotencyKey); err == nil {
		return nil, appErrors.WithDetails(appErrors.ErrDuplicateSubmission, map[string]interface{}{
			"application_id": existing.ID,
		})
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check idempotency key")
	}

	plan, err := s.repo.FindPlan(ctx, req.PlanID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "membership plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	if !plan.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "membership plan is not open for applications")
	}

	split := models.SplitFor(plan.Fee, member.WalletBalance)
	application := &models.MembershipApplication{
		MemberID:       memberID,
		PlanID:         plan.ID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         models.RequestStatusPending,
		PaymentSplit:   split,
	}
	// CreateApplication draws the wallet share and inserts the row in one
	// transaction; a losing draw rolls the application back.
	if err := s.repo.CreateApplication(ctx, application); err != nil {
		if appErrors.FromError(err).Code != appErrors.ErrInsufficientBalance.Code {
			return nil, err
		}
		// Another deduction won the balance between the read and the draw.
		// Fund everything through the gateway instead.
		split = models.SplitFor(plan.Fee, 0)
		application.PaymentSplit = split
		if err := s.repo.CreateApplication(ctx, application); err != nil {
			return nil, err
		}
	}

	s.appendHistory(ctx, models.RequestKindMembership, application.ID, "", models.RequestStatusPending, memberID, "application submitted")

	redirect, err := s.raiseCharge(ctx, application, memberID, split.RemainingAmount)
	if err != nil {
		return nil, err
	}
	return &ApplicationResult{Application: application, RedirectURL: redirect}, nil
}

// raiseCharge creates the gateway charge for the outstanding share. A gateway
// failure parks the application in PAYMENT_FAILED and returns the wallet draw.
func (s *MembershipService) raiseCharge(ctx context.Context, application *models.MembershipApplication, memberID string, remaining int64) (string, error) {
	if remaining <= 0 {
		return "", nil
	}
	charge, err := s.charges.CreateCharge(ctx, gateway.ChargeRequest{
		Reference: application.ID,
		Amount:    remaining,
		Currency:  s.currency,
		MemberID:  memberID,
	})
	if err != nil {
		s.logger.Warn("gateway charge failed on submission",
			zap.String("application_id", application.ID),
			zap.Error(err))
		if stErr := s.repo.UpdateStatus(ctx, application.ID, models.RequestStatusPending, models.RequestStatusPaymentFailed); stErr == nil {
			application.Status = models.RequestStatusPaymentFailed
			s.appendHistory(ctx, models.RequestKindMembership, application.ID, models.RequestStatusPending, models.RequestStatusPaymentFailed, memberID, "gateway charge failed")
			s.refundWalletDraw(ctx, application.ID, memberID, application.WalletAmount)
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusBadGateway, "payment gateway unavailable")
	}

	transaction := &models.PaymentTransaction{
		RequestKind: models.RequestKindMembership,
		RequestID:   application.ID,
		MemberID:    memberID,
		GatewayRef:  charge.GatewayRef,
		Amount:      remaining,
		Currency:    s.currency,
	}
	if err := s.payments.Create(ctx, transaction); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment transaction")
	}
	return charge.RedirectURL, nil
}

// Get returns one application with plan context and history.
func (s *MembershipService) Get(ctx context.Context, id string) (*models.MembershipApplicationDetail, error) {
	detail, err := s.repo.FindApplicationDetail(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if detail.History, err = s.history.ListForRequest(ctx, models.RequestKindMembership, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application history")
	}
	return detail, nil
}

// ListByMember returns a member's applications.
func (s *MembershipService) ListByMember(ctx context.Context, memberID string) ([]models.MembershipApplicationDetail, error) {
	applications, err := s.repo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return applications, nil
}

// ReviewQueue returns pending applications for administrators.
func (s *MembershipService) ReviewQueue(ctx context.Context, limit int) ([]models.MembershipApplicationDetail, error) {
	applications, err := s.repo.ListByStatus(ctx, models.RequestStatusPending, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending applications")
	}
	return applications, nil
}

// Approve accepts a fully funded pending application.
func (s *MembershipService) Approve(ctx context.Context, id, actorID string) error {
	application, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if application.RemainingAmount > 0 {
		return appErrors.WithDetails(appErrors.ErrPreconditionFailed, map[string]interface{}{
			"remaining_amount": application.RemainingAmount,
		})
	}
	return s.transition(ctx, application, models.RequestStatusApproved, actorID, "application approved")
}

// Reject declines a pending application and returns the wallet draw.
func (s *MembershipService) Reject(ctx context.Context, id, actorID, note string) error {
	application, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if note == "" {
		note = "application rejected"
	}
	if err := s.transition(ctx, application, models.RequestStatusRejected, actorID, note); err != nil {
		return err
	}
	s.refundWalletDraw(ctx, application.ID, application.MemberID, application.WalletAmount)
	return nil
}

// Cancel withdraws an application on the member's behalf and returns the
// wallet draw.
func (s *MembershipService) Cancel(ctx context.Context, id, memberID string) error {
	application, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if application.MemberID != memberID {
		return appErrors.Clone(appErrors.ErrForbidden, "application belongs to another member")
	}
	if err := s.transition(ctx, application, models.RequestStatusCancelled, memberID, "cancelled by member"); err != nil {
		return err
	}
	s.refundWalletDraw(ctx, application.ID, application.MemberID, application.WalletAmount)
	return nil
}

// Fulfil completes an approved application, activating the membership period.
func (s *MembershipService) Fulfil(ctx context.Context, id, actorID string) error {
	application, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return s.transition(ctx, application, models.RequestStatusFulfilled, actorID, "membership activated")
}

func (s *MembershipService) load(ctx context.Context, id string) (*models.MembershipApplication, error) {
	application, err := s.repo.FindApplication(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return application, nil
}

func (s *MembershipService) transition(ctx context.Context, application *models.MembershipApplication, to models.RequestStatus, actor, note string) error {
	if !models.CanTransitionRequest(application.Status, to) {
		return appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]interface{}{
			"from": application.Status,
			"to":   to,
		})
	}
	if err := s.repo.UpdateStatus(ctx, application.ID, application.Status, to); err != nil {
		return err
	}
	s.appendHistory(ctx, models.RequestKindMembership, application.ID, application.Status, to, actor, note)
	application.Status = to
	return nil
}

func (s *MembershipService) appendHistory(ctx context.Context, kind, requestID string, from, to models.RequestStatus, actor, note string) {
	entry := &models.StatusHistoryEntry{
		RequestKind: kind,
		RequestID:   requestID,
		FromStatus:  from,
		ToStatus:    to,
		Actor:       actor,
		Note:        note,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to append status history",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// refundWalletDraw returns the wallet share exactly once, guarded by the
// wallet_refunded flag.
func (s *MembershipService) refundWalletDraw(ctx context.Context, applicationID, memberID string, amount int64) {
	if amount <= 0 {
		return
	}
	won, err := s.repo.MarkWalletRefunded(ctx, applicationID)
	if err != nil {
		s.logger.Error("failed to mark wallet refund",
			zap.String("application_id", applicationID),
			zap.Error(err))
		return
	}
	if !won {
		return
	}
	if err := s.wallets.CreditWallet(ctx, memberID, amount); err != nil {
		s.logger.Error("failed to credit wallet refund",
			zap.String("application_id", applicationID),
			zap.Int64("amount", amount),
			zap.Error(err))
	}
}
