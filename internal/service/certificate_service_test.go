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

type mockCertificateRepo struct {
	types    map[string]models.CertificateType
	requests map[string]models.CertificateRequest
	byKey    map[string]string
	refunded map[string]bool
	wallets  *mockWalletRepo
}

func newMockCertificateRepo() *mockCertificateRepo {
	return &mockCertificateRepo{
		types:    make(map[string]models.CertificateType),
		requests: make(map[string]models.CertificateRequest),
		byKey:    make(map[string]string),
		refunded: make(map[string]bool),
	}
}

func (m *mockCertificateRepo) ListTypes(ctx context.Context) ([]models.CertificateType, error) {
	var types []models.CertificateType
	for _, ct := range m.types {
		types = append(types, ct)
	}
	return types, nil
}

func (m *mockCertificateRepo) FindType(ctx context.Context, id string) (*models.CertificateType, error) {
	if ct, ok := m.types[id]; ok {
		return &ct, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertificateRepo) CreateRequest(ctx context.Context, request *models.CertificateRequest) error {
	if _, ok := m.byKey[request.IdempotencyKey]; ok {
		return appErrors.Clone(appErrors.ErrDuplicateSubmission, "duplicate")
	}
	// Mirrors the repository transaction: the wallet draw and the insert
	// succeed or fail together.
	if request.WalletAmount > 0 && m.wallets != nil {
		if err := m.wallets.DeductWallet(ctx, request.MemberID, request.WalletAmount); err != nil {
			return err
		}
	}
	if request.ID == "" {
		request.ID = "cert-req-1"
	}
	m.requests[request.ID] = *request
	m.byKey[request.IdempotencyKey] = request.ID
	return nil
}

func (m *mockCertificateRepo) FindRequest(ctx context.Context, id string) (*models.CertificateRequest, error) {
	if r, ok := m.requests[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertificateRepo) FindRequestByKey(ctx context.Context, idempotencyKey string) (*models.CertificateRequest, error) {
	if id, ok := m.byKey[idempotencyKey]; ok {
		r := m.requests[id]
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertificateRepo) FindRequestDetail(ctx context.Context, id string) (*models.CertificateRequestDetail, error) {
	if r, ok := m.requests[id]; ok {
		return &models.CertificateRequestDetail{CertificateRequest: r}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertificateRepo) ListByMember(ctx context.Context, memberID string) ([]models.CertificateRequestDetail, error) {
	return nil, nil
}

func (m *mockCertificateRepo) ListByStatus(ctx context.Context, status models.RequestStatus, limit int) ([]models.CertificateRequestDetail, error) {
	return nil, nil
}

func (m *mockCertificateRepo) UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus) error {
	r, ok := m.requests[id]
	if !ok || r.Status != from {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "status moved")
	}
	r.Status = to
	m.requests[id] = r
	return nil
}

func (m *mockCertificateRepo) UpdateSplit(ctx context.Context, id string, split models.PaymentSplit) error {
	r, ok := m.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.PaymentSplit = split
	m.requests[id] = r
	return nil
}

func (m *mockCertificateRepo) MarkWalletRefunded(ctx context.Context, id string) (bool, error) {
	if m.refunded[id] {
		return false, nil
	}
	m.refunded[id] = true
	return true, nil
}

func (m *mockCertificateRepo) AttachDocument(ctx context.Context, id, serialNumber, documentPath string) error {
	r, ok := m.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.SerialNumber = serialNumber
	r.DocumentPath = documentPath
	m.requests[id] = r
	return nil
}

type mockDocumentStore struct {
	saved map[string][]byte
}

func (m *mockDocumentStore) Save(filename string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[filename] = data
	return "/data/" + filename, nil
}

type mockSigner struct{}

func (m *mockSigner) Generate(ownerID, relPath string) (string, time.Time, error) {
	return "signed-" + ownerID + "-" + relPath, time.Now().Add(time.Hour), nil
}

func newCertificateFixture() (*CertificateService, *mockCertificateRepo, *mockWalletRepo, *mockCharger, *mockDocumentStore) {
	repo := newMockCertificateRepo()
	repo.types["type-transcript"] = models.CertificateType{
		ID: "type-transcript", Name: "Official Transcript",
		Body: "This certifies the academic record of the named member.",
		Fee:  800, Active: true,
	}
	wallets := newMockWalletRepo()
	wallets.members["mem-1"] = &models.Member{ID: "mem-1", FullName: "Dana Reyes", Status: models.MemberStatusActive, WalletBalance: 300}
	repo.wallets = wallets
	store := &mockDocumentStore{}
	charger := &mockCharger{}
	svc := NewCertificateService(repo, wallets, &mockHistory{}, &mockPaymentRecorder{}, charger, store, &mockSigner{}, "USD", nil, nil)
	return svc, repo, wallets, charger, store
}

func TestCertificateSubmitHomeDeliveryAddsFee(t *testing.T) {
	svc, repo, wallets, charger, _ := newCertificateFixture()

	result, err := svc.Submit(context.Background(), "mem-1", SubmitCertificateRequest{
		TypeID:          "type-transcript",
		IdempotencyKey:  "key-1",
		DeliveryMethod:  models.DeliveryHome,
		DeliveryAddress: "12 Elm Street",
	})
	require.NoError(t, err)

	stored := repo.requests[result.Request.ID]
	assert.Equal(t, homeDeliveryFee, stored.DeliveryFee)
	assert.Equal(t, int64(800)+homeDeliveryFee, stored.TotalAmount)
	assert.Equal(t, int64(300), stored.WalletAmount)
	assert.Equal(t, int64(1000), stored.RemainingAmount)
	assert.Equal(t, int64(300), wallets.deducted["mem-1"])
	require.Len(t, charger.charges, 1)
	assert.Equal(t, int64(1000), charger.charges[0].Amount)
}

func TestCertificateSubmitHomeDeliveryRequiresAddress(t *testing.T) {
	svc, _, _, _, _ := newCertificateFixture()

	_, err := svc.Submit(context.Background(), "mem-1", SubmitCertificateRequest{
		TypeID:         "type-transcript",
		IdempotencyKey: "key-1",
		DeliveryMethod: models.DeliveryHome,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrMissingDeliveryAddress))
}

func TestCertificateSubmitBranchPickupRequiresBranch(t *testing.T) {
	svc, _, _, _, _ := newCertificateFixture()

	_, err := svc.Submit(context.Background(), "mem-1", SubmitCertificateRequest{
		TypeID:         "type-transcript",
		IdempotencyKey: "key-1",
		DeliveryMethod: models.DeliveryBranch,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrMissingTargetBranch))
}

func TestCertificateSubmitBranchPickupIsFree(t *testing.T) {
	svc, repo, _, _, _ := newCertificateFixture()

	result, err := svc.Submit(context.Background(), "mem-1", SubmitCertificateRequest{
		TypeID:         "type-transcript",
		IdempotencyKey: "key-1",
		DeliveryMethod: models.DeliveryBranch,
		TargetBranch:   "north",
	})
	require.NoError(t, err)

	stored := repo.requests[result.Request.ID]
	assert.Zero(t, stored.DeliveryFee)
	assert.Equal(t, int64(800), stored.TotalAmount)
}

func TestCertificateSubmitDuplicateKeyRejected(t *testing.T) {
	svc, _, wallets, _, _ := newCertificateFixture()

	req := SubmitCertificateRequest{
		TypeID:         "type-transcript",
		IdempotencyKey: "key-1",
		DeliveryMethod: models.DeliveryBranch,
		TargetBranch:   "north",
	}
	first, err := svc.Submit(context.Background(), "mem-1", req)
	require.NoError(t, err)

	second, err := svc.Submit(context.Background(), "mem-1", req)
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateSubmission))

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, first.Request.ID, appErr.Details["request_id"])

	// The wallet was drawn exactly once.
	assert.Equal(t, int64(300), wallets.deducted["mem-1"])
}

func TestCertificateFulfilRendersAndAttachesDocument(t *testing.T) {
	svc, repo, _, _, store := newCertificateFixture()
	repo.requests["cert-req-1"] = models.CertificateRequest{
		ID: "cert-req-1", MemberID: "mem-1", TypeID: "type-transcript",
		Status: models.RequestStatusApproved, TargetBranch: "north",
	}

	require.NoError(t, svc.Fulfil(context.Background(), "cert-req-1", "admin-1"))

	stored := repo.requests["cert-req-1"]
	assert.Equal(t, models.RequestStatusFulfilled, stored.Status)
	assert.NotEmpty(t, stored.SerialNumber)
	assert.NotEmpty(t, stored.DocumentPath)
	require.Len(t, store.saved, 1)
	for _, data := range store.saved {
		assert.NotEmpty(t, data)
	}
}

func TestCertificateFulfilRequiresApproved(t *testing.T) {
	svc, repo, _, _, _ := newCertificateFixture()
	repo.requests["cert-req-1"] = models.CertificateRequest{
		ID: "cert-req-1", MemberID: "mem-1", TypeID: "type-transcript",
		Status: models.RequestStatusPending,
	}

	err := svc.Fulfil(context.Background(), "cert-req-1", "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestCertificateDownloadOwnerOnly(t *testing.T) {
	svc, repo, _, _, _ := newCertificateFixture()
	repo.requests["cert-req-1"] = models.CertificateRequest{
		ID: "cert-req-1", MemberID: "mem-1",
		Status: models.RequestStatusFulfilled, DocumentPath: "mem-1/CERT-1.pdf",
	}

	_, err := svc.Download(context.Background(), "cert-req-1", "mem-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	download, err := svc.Download(context.Background(), "cert-req-1", "mem-1")
	require.NoError(t, err)
	assert.NotEmpty(t, download.Token)
	assert.True(t, download.ExpiresAt.After(time.Now()))
}

func TestCertificateDownloadBeforeIssue(t *testing.T) {
	svc, repo, _, _, _ := newCertificateFixture()
	repo.requests["cert-req-1"] = models.CertificateRequest{
		ID: "cert-req-1", MemberID: "mem-1", Status: models.RequestStatusApproved,
	}

	_, err := svc.Download(context.Background(), "cert-req-1", "mem-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestCertificateRejectRefundsWallet(t *testing.T) {
	svc, repo, wallets, _, _ := newCertificateFixture()
	repo.requests["cert-req-1"] = models.CertificateRequest{
		ID: "cert-req-1", MemberID: "mem-1", Status: models.RequestStatusPending,
		PaymentSplit: models.PaymentSplit{TotalAmount: 800, WalletAmount: 300, RemainingAmount: 500},
	}

	require.NoError(t, svc.Reject(context.Background(), "cert-req-1", "admin-1", "name mismatch"))
	assert.Equal(t, int64(300), wallets.credited["mem-1"])
	assert.Equal(t, models.RequestStatusRejected, repo.requests["cert-req-1"].Status)
}
