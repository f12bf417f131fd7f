package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-alumni/portal-api/internal/gateway"
	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

type mockMembershipRepo struct {
	plans          map[string]models.MembershipPlan
	applications   map[string]models.MembershipApplication
	byKey          map[string]string
	refunded       map[string]bool
	wallets        *mockWalletRepo
	createFailsDup bool
}

func newMockMembershipRepo() *mockMembershipRepo {
	return &mockMembershipRepo{
		plans:        make(map[string]models.MembershipPlan),
		applications: make(map[string]models.MembershipApplication),
		byKey:        make(map[string]string),
		refunded:     make(map[string]bool),
	}
}

func (m *mockMembershipRepo) ListPlans(ctx context.Context) ([]models.MembershipPlan, error) {
	var plans []models.MembershipPlan
	for _, p := range m.plans {
		plans = append(plans, p)
	}
	return plans, nil
}

func (m *mockMembershipRepo) FindPlan(ctx context.Context, id string) (*models.MembershipPlan, error) {
	if p, ok := m.plans[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMembershipRepo) CreateApplication(ctx context.Context, application *models.MembershipApplication) error {
	if m.createFailsDup {
		return appErrors.Clone(appErrors.ErrDuplicateSubmission, "duplicate")
	}
	if _, ok := m.byKey[application.IdempotencyKey]; ok {
		return appErrors.Clone(appErrors.ErrDuplicateSubmission, "duplicate")
	}
	// Mirrors the repository transaction: the wallet draw and the insert
	// succeed or fail together.
	if application.WalletAmount > 0 && m.wallets != nil {
		if err := m.wallets.DeductWallet(ctx, application.MemberID, application.WalletAmount); err != nil {
			return err
		}
	}
	if application.ID == "" {
		application.ID = "app-1"
	}
	m.applications[application.ID] = *application
	m.byKey[application.IdempotencyKey] = application.ID
	return nil
}

func (m *mockMembershipRepo) FindApplication(ctx context.Context, id string) (*models.MembershipApplication, error) {
	if a, ok := m.applications[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMembershipRepo) FindApplicationByKey(ctx context.Context, idempotencyKey string) (*models.MembershipApplication, error) {
	if id, ok := m.byKey[idempotencyKey]; ok {
		a := m.applications[id]
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMembershipRepo) FindApplicationDetail(ctx context.Context, id string) (*models.MembershipApplicationDetail, error) {
	if a, ok := m.applications[id]; ok {
		return &models.MembershipApplicationDetail{MembershipApplication: a}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMembershipRepo) ListByMember(ctx context.Context, memberID string) ([]models.MembershipApplicationDetail, error) {
	return nil, nil
}

func (m *mockMembershipRepo) ListByStatus(ctx context.Context, status models.RequestStatus, limit int) ([]models.MembershipApplicationDetail, error) {
	return nil, nil
}

func (m *mockMembershipRepo) UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus) error {
	a, ok := m.applications[id]
	if !ok || a.Status != from {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "status moved")
	}
	a.Status = to
	m.applications[id] = a
	return nil
}

func (m *mockMembershipRepo) UpdateSplit(ctx context.Context, id string, split models.PaymentSplit) error {
	a, ok := m.applications[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.PaymentSplit = split
	m.applications[id] = a
	return nil
}

func (m *mockMembershipRepo) MarkWalletRefunded(ctx context.Context, id string) (bool, error) {
	if m.refunded[id] {
		return false, nil
	}
	m.refunded[id] = true
	return true, nil
}

type mockWalletRepo struct {
	members  map[string]*models.Member
	credited map[string]int64
	deducted map[string]int64
	deductOn bool
}

func newMockWalletRepo() *mockWalletRepo {
	return &mockWalletRepo{
		members:  make(map[string]*models.Member),
		credited: make(map[string]int64),
		deducted: make(map[string]int64),
		deductOn: true,
	}
}

func (m *mockWalletRepo) FindByID(ctx context.Context, id string) (*models.Member, error) {
	if member, ok := m.members[id]; ok {
		return member, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWalletRepo) DeductWallet(ctx context.Context, memberID string, amount int64) error {
	if !m.deductOn {
		return appErrors.Clone(appErrors.ErrInsufficientBalance, "insufficient balance")
	}
	member, ok := m.members[memberID]
	if !ok {
		return sql.ErrNoRows
	}
	if member.WalletBalance < amount {
		return appErrors.Clone(appErrors.ErrInsufficientBalance, "insufficient balance")
	}
	member.WalletBalance -= amount
	m.deducted[memberID] += amount
	return nil
}

func (m *mockWalletRepo) CreditWallet(ctx context.Context, memberID string, amount int64) error {
	if member, ok := m.members[memberID]; ok {
		member.WalletBalance += amount
	}
	m.credited[memberID] += amount
	return nil
}

func (m *mockWalletRepo) WalletBalance(ctx context.Context, memberID string) (int64, error) {
	if member, ok := m.members[memberID]; ok {
		return member.WalletBalance, nil
	}
	return 0, sql.ErrNoRows
}

type mockHistory struct {
	entries []models.StatusHistoryEntry
}

func (m *mockHistory) Append(ctx context.Context, entry *models.StatusHistoryEntry) error {
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockHistory) ListForRequest(ctx context.Context, kind, requestID string) ([]models.StatusHistoryEntry, error) {
	var out []models.StatusHistoryEntry
	for _, e := range m.entries {
		if e.RequestKind == kind && e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockCharger struct {
	fail    bool
	charges []gateway.ChargeRequest
}

func (m *mockCharger) CreateCharge(ctx context.Context, charge gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
	if m.fail {
		return nil, errors.New("gateway timeout")
	}
	m.charges = append(m.charges, charge)
	return &gateway.ChargeResponse{GatewayRef: "gw-" + charge.Reference, RedirectURL: "https://pay.example/" + charge.Reference}, nil
}

type mockPaymentRecorder struct {
	created []models.PaymentTransaction
}

func (m *mockPaymentRecorder) Create(ctx context.Context, transaction *models.PaymentTransaction) error {
	m.created = append(m.created, *transaction)
	return nil
}

func newMembershipFixture() (*MembershipService, *mockMembershipRepo, *mockWalletRepo, *mockHistory, *mockCharger, *mockPaymentRecorder) {
	repo := newMockMembershipRepo()
	repo.plans["plan-gold"] = models.MembershipPlan{ID: "plan-gold", Name: "Gold", PeriodMonths: 12, Fee: 1000, Active: true}
	wallets := newMockWalletRepo()
	wallets.members["mem-1"] = &models.Member{ID: "mem-1", Status: models.MemberStatusActive, WalletBalance: 400}
	repo.wallets = wallets
	history := &mockHistory{}
	charger := &mockCharger{}
	payments := &mockPaymentRecorder{}
	svc := NewMembershipService(repo, wallets, history, payments, charger, "USD", nil, nil)
	return svc, repo, wallets, history, charger, payments
}

func TestMembershipApplySplitsFee(t *testing.T) {
	svc, repo, wallets, history, charger, payments := newMembershipFixture()

	result, err := svc.Apply(context.Background(), "mem-1", ApplyRequest{PlanID: "plan-gold", IdempotencyKey: "key-1"})
	require.NoError(t, err)
	require.NotNil(t, result.Application)

	stored := repo.applications[result.Application.ID]
	assert.Equal(t, int64(1000), stored.TotalAmount)
	assert.Equal(t, int64(400), stored.WalletAmount)
	assert.Equal(t, int64(600), stored.RemainingAmount)
	assert.Equal(t, int64(400), wallets.deducted["mem-1"])

	require.Len(t, charger.charges, 1)
	assert.Equal(t, int64(600), charger.charges[0].Amount)
	require.Len(t, payments.created, 1)
	assert.Equal(t, models.RequestKindMembership, payments.created[0].RequestKind)
	assert.Equal(t, models.PaymentStatus(""), payments.created[0].Status)
	assert.NotEmpty(t, result.RedirectURL)
	require.Len(t, history.entries, 1)
	assert.Equal(t, models.RequestStatusPending, history.entries[0].ToStatus)
}

func TestMembershipApplyFullyFundedByWallet(t *testing.T) {
	svc, _, wallets, _, charger, payments := newMembershipFixture()
	wallets.members["mem-1"].WalletBalance = 5000

	result, err := svc.Apply(context.Background(), "mem-1", ApplyRequest{PlanID: "plan-gold", IdempotencyKey: "key-1"})
	require.NoError(t, err)
	assert.Empty(t, result.RedirectURL)
	assert.Empty(t, charger.charges)
	assert.Empty(t, payments.created)
	assert.Equal(t, int64(0), result.Application.RemainingAmount)
}

func TestMembershipApplyDuplicateKeyRejected(t *testing.T) {
	svc, _, wallets, _, charger, _ := newMembershipFixture()

	first, err := svc.Apply(context.Background(), "mem-1", ApplyRequest{PlanID: "plan-gold", IdempotencyKey: "key-1"})
	require.NoError(t, err)

	second, err := svc.Apply(context.Background(), "mem-1", ApplyRequest{PlanID: "plan-gold", IdempotencyKey: "key-1"})
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateSubmission))

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, first.Application.ID, appErr.Details["application_id"])

	// The wallet was drawn once and only one charge was raised.
	assert.Equal(t, int64(400), wallets.deducted["mem-1"])
	assert.Len(t, charger.charges, 1)
}

func TestMembershipApplyInsufficientBalanceFallsBackToGateway(t *testing.T) {
	svc, repo, wallets, _, charger, _ := newMembershipFixture()
	wallets.deductOn = false

	result, err := svc.Apply(context.Background(), "mem-1", ApplyRequest{PlanID: "plan-gold", IdempotencyKey: "key-1"})
	require.NoError(t, err)

	stored := repo.applications[result.Application.ID]
	assert.Equal(t, int64(0), stored.WalletAmount)
	assert.Equal(t, int64(1000), stored.RemainingAmount)
	require.Len(t, charger.charges, 1)
	assert.Equal(t, int64(1000), charger.charges[0].Amount)
}

func TestMembershipApplyGatewayFailureRefundsWallet(t *testing.T) {
	svc, repo, wallets, history, charger, _ := newMembershipFixture()
	charger.fail = true

	_, err := svc.Apply(context.Background(), "mem-1", ApplyRequest{PlanID: "plan-gold", IdempotencyKey: "key-1"})
	require.Error(t, err)

	var stored models.MembershipApplication
	for _, a := range repo.applications {
		stored = a
	}
	assert.Equal(t, models.RequestStatusPaymentFailed, stored.Status)
	assert.Equal(t, int64(400), wallets.credited["mem-1"])
	assert.True(t, repo.refunded[stored.ID])
	require.Len(t, history.entries, 2)
	assert.Equal(t, models.RequestStatusPaymentFailed, history.entries[1].ToStatus)
}

func TestMembershipApplyRejectsInactiveMember(t *testing.T) {
	svc, _, wallets, _, _, _ := newMembershipFixture()
	wallets.members["mem-1"].Status = models.MemberStatusPending

	_, err := svc.Apply(context.Background(), "mem-1", ApplyRequest{PlanID: "plan-gold", IdempotencyKey: "key-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrMembershipNotActive))
}

func TestMembershipApplyInactivePlan(t *testing.T) {
	svc, repo, _, _, _, _ := newMembershipFixture()
	plan := repo.plans["plan-gold"]
	plan.Active = false
	repo.plans["plan-gold"] = plan

	_, err := svc.Apply(context.Background(), "mem-1", ApplyRequest{PlanID: "plan-gold", IdempotencyKey: "key-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestMembershipApproveRequiresFullFunding(t *testing.T) {
	svc, repo, _, _, _, _ := newMembershipFixture()
	repo.applications["app-1"] = models.MembershipApplication{
		ID: "app-1", MemberID: "mem-1", Status: models.RequestStatusPending,
		PaymentSplit: models.PaymentSplit{TotalAmount: 1000, WalletAmount: 400, RemainingAmount: 600},
	}

	err := svc.Approve(context.Background(), "app-1", "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	paid := repo.applications["app-1"]
	paid.PaymentSplit = models.PaymentSplit{TotalAmount: 1000, WalletAmount: 400, GatewayAmount: 600}
	repo.applications["app-1"] = paid

	require.NoError(t, svc.Approve(context.Background(), "app-1", "admin-1"))
	assert.Equal(t, models.RequestStatusApproved, repo.applications["app-1"].Status)
}

func TestMembershipRejectRefundsWalletOnce(t *testing.T) {
	svc, repo, wallets, _, _, _ := newMembershipFixture()
	repo.applications["app-1"] = models.MembershipApplication{
		ID: "app-1", MemberID: "mem-1", Status: models.RequestStatusPending,
		PaymentSplit: models.PaymentSplit{TotalAmount: 1000, WalletAmount: 400, RemainingAmount: 600},
	}

	require.NoError(t, svc.Reject(context.Background(), "app-1", "admin-1", "incomplete records"))
	assert.Equal(t, models.RequestStatusRejected, repo.applications["app-1"].Status)
	assert.Equal(t, int64(400), wallets.credited["mem-1"])

	// A second reject fails the transition and must not refund again.
	err := svc.Reject(context.Background(), "app-1", "admin-1", "")
	require.Error(t, err)
	assert.Equal(t, int64(400), wallets.credited["mem-1"])
}

func TestMembershipCancelOwnershipCheck(t *testing.T) {
	svc, repo, _, _, _, _ := newMembershipFixture()
	repo.applications["app-1"] = models.MembershipApplication{
		ID: "app-1", MemberID: "mem-1", Status: models.RequestStatusPending,
	}

	err := svc.Cancel(context.Background(), "app-1", "mem-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	require.NoError(t, svc.Cancel(context.Background(), "app-1", "mem-1"))
	assert.Equal(t, models.RequestStatusCancelled, repo.applications["app-1"].Status)
}

func TestMembershipFulfilRequiresApproved(t *testing.T) {
	svc, repo, _, _, _, _ := newMembershipFixture()
	repo.applications["app-1"] = models.MembershipApplication{
		ID: "app-1", MemberID: "mem-1", Status: models.RequestStatusPending,
	}

	err := svc.Fulfil(context.Background(), "app-1", "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}
