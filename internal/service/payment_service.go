package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

type paymentStore interface {
	FindByGatewayRef(ctx context.Context, gatewayRef string) (*models.PaymentTransaction, error)
	Settle(ctx context.Context, gatewayRef string, status models.PaymentStatus) (bool, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error)
}

type membershipSettler interface {
	FindApplication(ctx context.Context, id string) (*models.MembershipApplication, error)
	UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus) error
	UpdateSplit(ctx context.Context, id string, split models.PaymentSplit) error
	MarkWalletRefunded(ctx context.Context, id string) (bool, error)
}

type certificateSettler interface {
	FindRequest(ctx context.Context, id string) (*models.CertificateRequest, error)
	UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus) error
	UpdateSplit(ctx context.Context, id string, split models.PaymentSplit) error
	MarkWalletRefunded(ctx context.Context, id string) (bool, error)
}

// PaymentService applies gateway settlement callbacks to the requests they
// fund and expires stale pending charges.
type PaymentService struct {
	payments     paymentStore
	memberships  membershipSettler
	certificates certificateSettler
	wallets      walletRepository
	history      historyAppender
	pendingTTL   time.Duration
	logger       *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(payments paymentStore, memberships membershipSettler, certificates certificateSettler, wallets walletRepository, history historyAppender, pendingTTL time.Duration, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pendingTTL <= 0 {
		pendingTTL = 48 * time.Hour
	}
	return &PaymentService{
		payments:     payments,
		memberships:  memberships,
		certificates: certificates,
		wallets:      wallets,
		history:      history,
		pendingTTL:   pendingTTL,
		logger:       logger,
	}
}

// HandleCallback settles a gateway notification. The transaction row carries
// the status guard, so a replayed callback settles nothing and returns
// without touching the request.
func (s *PaymentService) HandleCallback(ctx context.Context, gatewayRef string, success bool) error {
	transaction, err := s.payments.FindByGatewayRef(ctx, gatewayRef)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "unknown gateway reference")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment transaction")
	}

	status := models.PaymentConfirmed
	if !success {
		status = models.PaymentFailed
	}
	settled, err := s.payments.Settle(ctx, gatewayRef, status)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle payment transaction")
	}
	if !settled {
		s.logger.Info("ignoring replayed payment callback",
			zap.String("gateway_ref", gatewayRef))
		return nil
	}

	if success {
		return s.applyConfirmation(ctx, transaction)
	}
	return s.applyFailure(ctx, transaction)
}

// SweepStale fails out pending charges older than the configured TTL. Each
// expired charge is handled like a failure callback.
func (s *PaymentService) SweepStale(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.pendingTTL)
	stale, err := s.payments.ListStalePending(ctx, cutoff, 100)
	if err != nil {
		s.logger.Error("failed to list stale pending payments", zap.Error(err))
		return
	}
	for _, transaction := range stale {
		settled, err := s.payments.Settle(ctx, transaction.GatewayRef, models.PaymentFailed)
		if err != nil {
			s.logger.Error("failed to expire stale payment",
				zap.String("gateway_ref", transaction.GatewayRef),
				zap.Error(err))
			continue
		}
		if !settled {
			continue
		}
		if err := s.applyFailure(ctx, &transaction); err != nil {
			s.logger.Error("failed to fail out stale payment request",
				zap.String("gateway_ref", transaction.GatewayRef),
				zap.String("request_id", transaction.RequestID),
				zap.Error(err))
			continue
		}
		s.logger.Info("expired stale pending payment",
			zap.String("gateway_ref", transaction.GatewayRef),
			zap.String("request_id", transaction.RequestID))
	}
}

func (s *PaymentService) applyConfirmation(ctx context.Context, transaction *models.PaymentTransaction) error {
	switch transaction.RequestKind {
	case models.RequestKindMembership:
		application, err := s.memberships.FindApplication(ctx, transaction.RequestID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
		}
		if application.Status != models.RequestStatusPending {
			// The request moved on before the charge settled; a cancelled or
			// rejected request must not pick up late gateway money.
			s.logger.Warn("payment confirmation on non-pending request",
				zap.String("request_id", transaction.RequestID),
				zap.String("status", string(application.Status)))
			return nil
		}
		split := application.PaymentSplit
		split.GatewayAmount += transaction.Amount
		split.RemainingAmount -= transaction.Amount
		if err := s.memberships.UpdateSplit(ctx, transaction.RequestID, split); err != nil {
			return err
		}
	case models.RequestKindCertificate:
		request, err := s.certificates.FindRequest(ctx, transaction.RequestID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate request")
		}
		if request.Status != models.RequestStatusPending {
			s.logger.Warn("payment confirmation on non-pending request",
				zap.String("request_id", transaction.RequestID),
				zap.String("status", string(request.Status)))
			return nil
		}
		split := request.PaymentSplit
		split.GatewayAmount += transaction.Amount
		split.RemainingAmount -= transaction.Amount
		if err := s.certificates.UpdateSplit(ctx, transaction.RequestID, split); err != nil {
			return err
		}
	default:
		return appErrors.Clone(appErrors.ErrInternal, "unknown request kind on payment transaction")
	}

	s.appendHistory(ctx, transaction, models.RequestStatusPending, models.RequestStatusPending, "gateway payment confirmed")
	return nil
}

func (s *PaymentService) applyFailure(ctx context.Context, transaction *models.PaymentTransaction) error {
	switch transaction.RequestKind {
	case models.RequestKindMembership:
		application, err := s.memberships.FindApplication(ctx, transaction.RequestID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
		}
		if err := s.memberships.UpdateStatus(ctx, transaction.RequestID, models.RequestStatusPending, models.RequestStatusPaymentFailed); err != nil {
			// The request moved on before the charge settled; the wallet
			// draw was already handled by whoever moved it.
			s.logger.Warn("payment failure on non-pending request",
				zap.String("request_id", transaction.RequestID),
				zap.Error(err))
			return nil
		}
		s.appendHistory(ctx, transaction, models.RequestStatusPending, models.RequestStatusPaymentFailed, "gateway payment failed")
		s.refund(ctx, transaction, application.WalletAmount, s.memberships.MarkWalletRefunded)
	case models.RequestKindCertificate:
		request, err := s.certificates.FindRequest(ctx, transaction.RequestID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate request")
		}
		if err := s.certificates.UpdateStatus(ctx, transaction.RequestID, models.RequestStatusPending, models.RequestStatusPaymentFailed); err != nil {
			s.logger.Warn("payment failure on non-pending request",
				zap.String("request_id", transaction.RequestID),
				zap.Error(err))
			return nil
		}
		s.appendHistory(ctx, transaction, models.RequestStatusPending, models.RequestStatusPaymentFailed, "gateway payment failed")
		s.refund(ctx, transaction, request.WalletAmount, s.certificates.MarkWalletRefunded)
	default:
		return appErrors.Clone(appErrors.ErrInternal, "unknown request kind on payment transaction")
	}
	return nil
}

func (s *PaymentService) refund(ctx context.Context, transaction *models.PaymentTransaction, amount int64, mark func(context.Context, string) (bool, error)) {
	if amount <= 0 {
		return
	}
	won, err := mark(ctx, transaction.RequestID)
	if err != nil {
		s.logger.Error("failed to mark wallet refund",
			zap.String("request_id", transaction.RequestID),
			zap.Error(err))
		return
	}
	if !won {
		return
	}
	if err := s.wallets.CreditWallet(ctx, transaction.MemberID, amount); err != nil {
		s.logger.Error("failed to credit wallet refund",
			zap.String("request_id", transaction.RequestID),
			zap.Int64("amount", amount),
			zap.Error(err))
	}
}

func (s *PaymentService) appendHistory(ctx context.Context, transaction *models.PaymentTransaction, from, to models.RequestStatus, note string) {
	entry := &models.StatusHistoryEntry{
		RequestKind: transaction.RequestKind,
		RequestID:   transaction.RequestID,
		FromStatus:  from,
		ToStatus:    to,
		Actor:       "gateway:" + transaction.GatewayRef,
		Note:        note,
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to append status history",
			zap.String("request_id", transaction.RequestID),
			zap.Error(err))
	}
}
