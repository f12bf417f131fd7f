package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

type mockPaymentStore struct {
	byRef map[string]*models.PaymentTransaction
}

func newMockPaymentStore() *mockPaymentStore {
	return &mockPaymentStore{byRef: make(map[string]*models.PaymentTransaction)}
}

func (m *mockPaymentStore) FindByGatewayRef(ctx context.Context, gatewayRef string) (*models.PaymentTransaction, error) {
	if txn, ok := m.byRef[gatewayRef]; ok {
		copied := *txn
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentStore) Settle(ctx context.Context, gatewayRef string, status models.PaymentStatus) (bool, error) {
	txn, ok := m.byRef[gatewayRef]
	if !ok || txn.Status != models.PaymentPending {
		return false, nil
	}
	txn.Status = status
	now := time.Now().UTC()
	txn.SettledAt = &now
	return true, nil
}

func (m *mockPaymentStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error) {
	var stale []models.PaymentTransaction
	for _, txn := range m.byRef {
		if txn.Status == models.PaymentPending && txn.CreatedAt.Before(cutoff) {
			stale = append(stale, *txn)
		}
	}
	return stale, nil
}

func newPaymentFixture() (*PaymentService, *mockPaymentStore, *mockMembershipRepo, *mockCertificateRepo, *mockWalletRepo, *mockHistory) {
	payments := newMockPaymentStore()
	memberships := newMockMembershipRepo()
	certificates := newMockCertificateRepo()
	wallets := newMockWalletRepo()
	wallets.members["mem-1"] = &models.Member{ID: "mem-1", Status: models.MemberStatusActive}
	history := &mockHistory{}
	svc := NewPaymentService(payments, memberships, certificates, wallets, history, 48*time.Hour, nil)
	return svc, payments, memberships, certificates, wallets, history
}

func TestHandleCallbackConfirmsMembershipCharge(t *testing.T) {
	svc, payments, memberships, _, _, history := newPaymentFixture()
	memberships.applications["app-1"] = models.MembershipApplication{
		ID: "app-1", MemberID: "mem-1", Status: models.RequestStatusPending,
		PaymentSplit: models.PaymentSplit{TotalAmount: 1000, WalletAmount: 400, RemainingAmount: 600},
	}
	payments.byRef["gw-1"] = &models.PaymentTransaction{
		RequestKind: models.RequestKindMembership, RequestID: "app-1", MemberID: "mem-1",
		GatewayRef: "gw-1", Amount: 600, Status: models.PaymentPending,
	}

	require.NoError(t, svc.HandleCallback(context.Background(), "gw-1", true))

	app := memberships.applications["app-1"]
	assert.Equal(t, int64(600), app.GatewayAmount)
	assert.Equal(t, int64(0), app.RemainingAmount)
	require.NoError(t, app.PaymentSplit.Validate())
	assert.Equal(t, models.PaymentConfirmed, payments.byRef["gw-1"].Status)
	require.Len(t, history.entries, 1)
}

func TestHandleCallbackReplayIsNoOp(t *testing.T) {
	svc, payments, memberships, _, _, _ := newPaymentFixture()
	memberships.applications["app-1"] = models.MembershipApplication{
		ID: "app-1", MemberID: "mem-1", Status: models.RequestStatusPending,
		PaymentSplit: models.PaymentSplit{TotalAmount: 1000, WalletAmount: 400, RemainingAmount: 600},
	}
	payments.byRef["gw-1"] = &models.PaymentTransaction{
		RequestKind: models.RequestKindMembership, RequestID: "app-1", MemberID: "mem-1",
		GatewayRef: "gw-1", Amount: 600, Status: models.PaymentPending,
	}

	require.NoError(t, svc.HandleCallback(context.Background(), "gw-1", true))
	require.NoError(t, svc.HandleCallback(context.Background(), "gw-1", true))

	// The split is applied exactly once.
	app := memberships.applications["app-1"]
	assert.Equal(t, int64(600), app.GatewayAmount)
	assert.Equal(t, int64(0), app.RemainingAmount)
}

func TestHandleCallbackFailureRefundsWalletDraw(t *testing.T) {
	svc, payments, memberships, _, wallets, history := newPaymentFixture()
	memberships.applications["app-1"] = models.MembershipApplication{
		ID: "app-1", MemberID: "mem-1", Status: models.RequestStatusPending,
		PaymentSplit: models.PaymentSplit{TotalAmount: 1000, WalletAmount: 400, RemainingAmount: 600},
	}
	payments.byRef["gw-1"] = &models.PaymentTransaction{
		RequestKind: models.RequestKindMembership, RequestID: "app-1", MemberID: "mem-1",
		GatewayRef: "gw-1", Amount: 600, Status: models.PaymentPending,
	}

	require.NoError(t, svc.HandleCallback(context.Background(), "gw-1", false))

	assert.Equal(t, models.RequestStatusPaymentFailed, memberships.applications["app-1"].Status)
	assert.Equal(t, int64(400), wallets.credited["mem-1"])
	assert.True(t, memberships.refunded["app-1"])
	require.Len(t, history.entries, 1)
	assert.Equal(t, models.RequestStatusPaymentFailed, history.entries[0].ToStatus)
}

func TestHandleCallbackFailureOnCertificateRequest(t *testing.T) {
	svc, payments, _, certificates, wallets, _ := newPaymentFixture()
	certificates.requests["cert-req-1"] = models.CertificateRequest{
		ID: "cert-req-1", MemberID: "mem-1", Status: models.RequestStatusPending,
		PaymentSplit: models.PaymentSplit{TotalAmount: 800, WalletAmount: 300, RemainingAmount: 500},
	}
	payments.byRef["gw-2"] = &models.PaymentTransaction{
		RequestKind: models.RequestKindCertificate, RequestID: "cert-req-1", MemberID: "mem-1",
		GatewayRef: "gw-2", Amount: 500, Status: models.PaymentPending,
	}

	require.NoError(t, svc.HandleCallback(context.Background(), "gw-2", false))

	assert.Equal(t, models.RequestStatusPaymentFailed, certificates.requests["cert-req-1"].Status)
	assert.Equal(t, int64(300), wallets.credited["mem-1"])
}

func TestHandleCallbackUnknownReference(t *testing.T) {
	svc, _, _, _, _, _ := newPaymentFixture()

	err := svc.HandleCallback(context.Background(), "gw-missing", true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestHandleCallbackConfirmationOnMovedRequestIsIgnored(t *testing.T) {
	svc, payments, memberships, _, _, history := newPaymentFixture()
	// The member cancelled before the gateway settled; late money must not
	// touch the split.
	memberships.applications["app-1"] = models.MembershipApplication{
		ID: "app-1", MemberID: "mem-1", Status: models.RequestStatusCancelled,
		PaymentSplit: models.PaymentSplit{TotalAmount: 1000, WalletAmount: 400, RemainingAmount: 600},
	}
	payments.byRef["gw-1"] = &models.PaymentTransaction{
		RequestKind: models.RequestKindMembership, RequestID: "app-1", MemberID: "mem-1",
		GatewayRef: "gw-1", Amount: 600, Status: models.PaymentPending,
	}

	require.NoError(t, svc.HandleCallback(context.Background(), "gw-1", true))

	app := memberships.applications["app-1"]
	assert.Equal(t, int64(0), app.GatewayAmount)
	assert.Equal(t, int64(600), app.RemainingAmount)
	assert.Equal(t, models.RequestStatusCancelled, app.Status)
	assert.Empty(t, history.entries)
}

func TestHandleCallbackFailureOnMovedRequestSkipsRefund(t *testing.T) {
	svc, payments, memberships, _, wallets, _ := newPaymentFixture()
	// The member already cancelled and was refunded through that path.
	memberships.applications["app-1"] = models.MembershipApplication{
		ID: "app-1", MemberID: "mem-1", Status: models.RequestStatusCancelled,
		PaymentSplit: models.PaymentSplit{TotalAmount: 1000, WalletAmount: 400, RemainingAmount: 600},
	}
	payments.byRef["gw-1"] = &models.PaymentTransaction{
		RequestKind: models.RequestKindMembership, RequestID: "app-1", MemberID: "mem-1",
		GatewayRef: "gw-1", Amount: 600, Status: models.PaymentPending,
	}

	require.NoError(t, svc.HandleCallback(context.Background(), "gw-1", false))
	assert.Zero(t, wallets.credited["mem-1"])
	assert.Equal(t, models.RequestStatusCancelled, memberships.applications["app-1"].Status)
}

func TestSweepStaleExpiresOldPendingCharges(t *testing.T) {
	svc, payments, memberships, _, wallets, _ := newPaymentFixture()
	memberships.applications["app-1"] = models.MembershipApplication{
		ID: "app-1", MemberID: "mem-1", Status: models.RequestStatusPending,
		PaymentSplit: models.PaymentSplit{TotalAmount: 1000, WalletAmount: 400, RemainingAmount: 600},
	}
	payments.byRef["gw-old"] = &models.PaymentTransaction{
		RequestKind: models.RequestKindMembership, RequestID: "app-1", MemberID: "mem-1",
		GatewayRef: "gw-old", Amount: 600, Status: models.PaymentPending,
		CreatedAt: time.Now().UTC().Add(-72 * time.Hour),
	}
	payments.byRef["gw-fresh"] = &models.PaymentTransaction{
		RequestKind: models.RequestKindMembership, RequestID: "app-2", MemberID: "mem-1",
		GatewayRef: "gw-fresh", Amount: 100, Status: models.PaymentPending,
		CreatedAt: time.Now().UTC(),
	}

	svc.SweepStale(context.Background())

	assert.Equal(t, models.PaymentFailed, payments.byRef["gw-old"].Status)
	assert.Equal(t, models.PaymentPending, payments.byRef["gw-fresh"].Status)
	assert.Equal(t, models.RequestStatusPaymentFailed, memberships.applications["app-1"].Status)
	assert.Equal(t, int64(400), wallets.credited["mem-1"])
}
