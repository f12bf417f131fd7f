package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/open-alumni/portal-api/internal/gateway"
	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
	"github.com/open-alumni/portal-api/pkg/export"
)

type certificateRepository interface {
	ListTypes(ctx context.Context) ([]models.CertificateType, error)
	FindType(ctx context.Context, id string) (*models.CertificateType, error)
	CreateRequest(ctx context.Context, request *models.CertificateRequest) error
	FindRequest(ctx context.Context, id string) (*models.CertificateRequest, error)
	FindRequestByKey(ctx context.Context, idempotencyKey string) (*models.CertificateRequest, error)
	FindRequestDetail(ctx context.Context, id string) (*models.CertificateRequestDetail, error)
	ListByMember(ctx context.Context, memberID string) ([]models.CertificateRequestDetail, error)
	ListByStatus(ctx context.Context, status models.RequestStatus, limit int) ([]models.CertificateRequestDetail, error)
	UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus) error
	UpdateSplit(ctx context.Context, id string, split models.PaymentSplit) error
	MarkWalletRefunded(ctx context.Context, id string) (bool, error)
	AttachDocument(ctx context.Context, id, serialNumber, documentPath string) error
}

type documentStore interface {
	Save(filename string, data []byte) (string, error)
}

type urlSigner interface {
	Generate(ownerID, relPath string) (string, time.Time, error)
}

// SubmitCertificateRequest submits a priced certificate request.
type SubmitCertificateRequest struct {
	TypeID          string                `json:"type_id" validate:"required"`
	IdempotencyKey  string                `json:"idempotency_key" validate:"required"`
	DeliveryMethod  models.DeliveryMethod `json:"delivery_method" validate:"required,oneof=HOME BRANCH"`
	DeliveryAddress string                `json:"delivery_address"`
	TargetBranch    string                `json:"target_branch"`
}

// CertificateResult carries the stored request plus the gateway redirect when
// an outstanding share remains.
type CertificateResult struct {
	Request     *models.CertificateRequest `json:"request"`
	RedirectURL string                     `json:"redirect_url,omitempty"`
}

// SignedDownload points at an issued document.
type SignedDownload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// homeDeliveryFee is added on top of the certificate fee for courier
// delivery, in minor currency units. Branch pickup is free.
const homeDeliveryFee int64 = 500

// CertificateService runs the paid certificate request workflow and issues
// the rendered documents once fulfilled.
type CertificateService struct {
	repo      certificateRepository
	wallets   walletRepository
	history   historyAppender
	payments  paymentRecorder
	charges   chargeCreator
	store     documentStore
	signer    urlSigner
	renderer  *export.CertificatePDF
	currency  string
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCertificateService constructs CertificateService.
func NewCertificateService(repo certificateRepository, wallets walletRepository, history historyAppender, payments paymentRecorder, charges chargeCreator, store documentStore, signer urlSigner, currency string, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = "USD"
	}
	return &CertificateService{
		repo:      repo,
		wallets:   wallets,
		history:   history,
		payments:  payments,
		charges:   charges,
		store:     store,
		signer:    signer,
		renderer:  export.NewCertificatePDF(),
		currency:  currency,
		validator: validate,
		logger:    logger,
	}
}

// Types lists the issuable certificate definitions.
func (s *CertificateService) Types(ctx context.Context) ([]models.CertificateType, error) {
	types, err := s.repo.ListTypes(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificate types")
	}
	return types, nil
}

// Submit creates a priced certificate request. HOME delivery requires an
// address and adds the courier fee; BRANCH requires a target branch. The
// idempotency key is unique across all requests: a second submission with the
// same key fails with DuplicateSubmission. The fee is funded wallet-first,
// the remainder through the gateway.
func (s *CertificateService) Submit(ctx context.Context, memberID string, req SubmitCertificateRequest) (*CertificateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid certificate payload")
	}

	var deliveryFee int64
	switch req.DeliveryMethod {
	case models.DeliveryHome:
		if strings.TrimSpace(req.DeliveryAddress) == "" {
			return nil, appErrors.ErrMissingDeliveryAddress
		}
		deliveryFee = homeDeliveryFee
	case models.DeliveryBranch:
		if strings.TrimSpace(req.TargetBranch) == "" {
			return nil, appErrors.ErrMissingTargetBranch
		}
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

	if existing, err := s.repo.FindRequestByKey(ctx, req.IdempotencyKey); err == nil {
		return nil, appErrors.WithDetails(appErrors.ErrDuplicateSubmission, map[string]interface{}{
			"request_id": existing.ID,
		})
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check idempotency key")
	}

	certType, err := s.repo.FindType(ctx, req.TypeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate type not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate type")
	}
	if !certType.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "certificate type is not issuable")
	}

	total := certType.Fee + deliveryFee
	split := models.SplitFor(total, member.WalletBalance)
	request := &models.CertificateRequest{
		MemberID:        memberID,
		TypeID:          certType.ID,
		IdempotencyKey:  req.IdempotencyKey,
		DeliveryMethod:  req.DeliveryMethod,
		DeliveryAddress: req.DeliveryAddress,
		TargetBranch:    req.TargetBranch,
		DeliveryFee:     deliveryFee,
		Status:          models.RequestStatusPending,
		PaymentSplit:    split,
	}
	// CreateRequest draws the wallet share and inserts the row in one
	// transaction; a losing draw rolls the request back.
	if err := s.repo.CreateRequest(ctx, request); err != nil {
		if appErrors.FromError(err).Code != appErrors.ErrInsufficientBalance.Code {
			return nil, err
		}
		split = models.SplitFor(total, 0)
		request.PaymentSplit = split
		if err := s.repo.CreateRequest(ctx, request); err != nil {
			return nil, err
		}
	}

	s.appendHistory(ctx, request.ID, "", models.RequestStatusPending, memberID, "request submitted")

	redirect, err := s.raiseCharge(ctx, request, memberID, split.RemainingAmount)
	if err != nil {
		return nil, err
	}
	return &CertificateResult{Request: request, RedirectURL: redirect}, nil
}

func (s *CertificateService) raiseCharge(ctx context.Context, request *models.CertificateRequest, memberID string, remaining int64) (string, error) {
	if remaining <= 0 {
		return "", nil
	}
	charge, err := s.charges.CreateCharge(ctx, gateway.ChargeRequest{
		Reference: request.ID,
		Amount:    remaining,
		Currency:  s.currency,
		MemberID:  memberID,
	})
	if err != nil {
		s.logger.Warn("gateway charge failed on submission",
			zap.String("request_id", request.ID),
			zap.Error(err))
		if stErr := s.repo.UpdateStatus(ctx, request.ID, models.RequestStatusPending, models.RequestStatusPaymentFailed); stErr == nil {
			request.Status = models.RequestStatusPaymentFailed
			s.appendHistory(ctx, request.ID, models.RequestStatusPending, models.RequestStatusPaymentFailed, memberID, "gateway charge failed")
			s.refundWalletDraw(ctx, request.ID, memberID, request.WalletAmount)
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusBadGateway, "payment gateway unavailable")
	}

	transaction := &models.PaymentTransaction{
		RequestKind: models.RequestKindCertificate,
		RequestID:   request.ID,
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

// Get returns one request with type context and history.
func (s *CertificateService) Get(ctx context.Context, id string) (*models.CertificateRequestDetail, error) {
	detail, err := s.repo.FindRequestDetail(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate request")
	}
	if detail.History, err = s.history.ListForRequest(ctx, models.RequestKindCertificate, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request history")
	}
	return detail, nil
}

// ListByMember returns a member's certificate requests.
func (s *CertificateService) ListByMember(ctx context.Context, memberID string) ([]models.CertificateRequestDetail, error) {
	requests, err := s.repo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificate requests")
	}
	return requests, nil
}

// ReviewQueue returns pending requests for administrators.
func (s *CertificateService) ReviewQueue(ctx context.Context, limit int) ([]models.CertificateRequestDetail, error) {
	requests, err := s.repo.ListByStatus(ctx, models.RequestStatusPending, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending requests")
	}
	return requests, nil
}

// Approve accepts a fully funded pending request.
func (s *CertificateService) Approve(ctx context.Context, id, actorID string) error {
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if request.RemainingAmount > 0 {
		return appErrors.WithDetails(appErrors.ErrPreconditionFailed, map[string]interface{}{
			"remaining_amount": request.RemainingAmount,
		})
	}
	return s.transition(ctx, request, models.RequestStatusApproved, actorID, "request approved")
}

// Reject declines a pending request and returns the wallet draw.
func (s *CertificateService) Reject(ctx context.Context, id, actorID, note string) error {
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if note == "" {
		note = "request rejected"
	}
	if err := s.transition(ctx, request, models.RequestStatusRejected, actorID, note); err != nil {
		return err
	}
	s.refundWalletDraw(ctx, request.ID, request.MemberID, request.WalletAmount)
	return nil
}

// Cancel withdraws a request on the member's behalf and returns the wallet
// draw.
func (s *CertificateService) Cancel(ctx context.Context, id, memberID string) error {
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if request.MemberID != memberID {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another member")
	}
	if err := s.transition(ctx, request, models.RequestStatusCancelled, memberID, "cancelled by member"); err != nil {
		return err
	}
	s.refundWalletDraw(ctx, request.ID, request.MemberID, request.WalletAmount)
	return nil
}

// Fulfil completes an approved request: it renders the certificate document,
// stores it and records the serial number.
func (s *CertificateService) Fulfil(ctx context.Context, id, actorID string) error {
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !models.CanTransitionRequest(request.Status, models.RequestStatusFulfilled) {
		return appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]interface{}{
			"from": request.Status,
			"to":   models.RequestStatusFulfilled,
		})
	}

	member, err := s.wallets.FindByID(ctx, request.MemberID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	certType, err := s.repo.FindType(ctx, request.TypeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate type")
	}

	serial := fmt.Sprintf("CERT-%d-%s", time.Now().UTC().Year(), strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]))
	data, err := s.renderer.Render(export.CertificateDocument{
		SerialNumber: serial,
		MemberName:   member.FullName,
		Title:        certType.Name,
		Body:         certType.Body,
		IssuedAt:     time.Now().UTC(),
		Branch:       request.TargetBranch,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}

	relPath := fmt.Sprintf("%s/%s.pdf", request.MemberID, serial)
	if _, err := s.store.Save(relPath, data); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}
	if err := s.repo.AttachDocument(ctx, request.ID, serial, relPath); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record certificate document")
	}

	return s.transition(ctx, request, models.RequestStatusFulfilled, actorID, "certificate issued "+serial)
}

// Download returns a signed token for a fulfilled request's document. Only
// the owning member may download it.
func (s *CertificateService) Download(ctx context.Context, id, memberID string) (*SignedDownload, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.MemberID != memberID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another member")
	}
	if request.Status != models.RequestStatusFulfilled || request.DocumentPath == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "certificate has not been issued yet")
	}
	token, expiresAt, err := s.signer.Generate(memberID, request.DocumentPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return &SignedDownload{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *CertificateService) load(ctx context.Context, id string) (*models.CertificateRequest, error) {
	request, err := s.repo.FindRequest(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate request")
	}
	return request, nil
}

func (s *CertificateService) transition(ctx context.Context, request *models.CertificateRequest, to models.RequestStatus, actor, note string) error {
	if !models.CanTransitionRequest(request.Status, to) {
		return appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]interface{}{
			"from": request.Status,
			"to":   to,
		})
	}
	if err := s.repo.UpdateStatus(ctx, request.ID, request.Status, to); err != nil {
		return err
	}
	s.appendHistory(ctx, request.ID, request.Status, to, actor, note)
	request.Status = to
	return nil
}

func (s *CertificateService) appendHistory(ctx context.Context, requestID string, from, to models.RequestStatus, actor, note string) {
	entry := &models.StatusHistoryEntry{
		RequestKind: models.RequestKindCertificate,
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

func (s *CertificateService) refundWalletDraw(ctx context.Context, requestID, memberID string, amount int64) {
	if amount <= 0 {
		return
	}
	won, err := s.repo.MarkWalletRefunded(ctx, requestID)
	if err != nil {
		s.logger.Error("failed to mark wallet refund",
			zap.String("request_id", requestID),
			zap.Error(err))
		return
	}
	if !won {
		return
	}
	if err := s.wallets.CreditWallet(ctx, memberID, amount); err != nil {
		s.logger.Error("failed to credit wallet refund",
			zap.String("request_id", requestID),
			zap.Int64("amount", amount),
			zap.Error(err))
	}
}
