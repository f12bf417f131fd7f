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

type mockMemberRepo struct {
	members  map[string]*models.Member
	emails   map[string][]models.MemberEmail
	primary  map[string]string
	credited map[string]int64
	statuses map[string]models.MemberStatus
}

func newMockMemberRepo() *mockMemberRepo {
	return &mockMemberRepo{
		members:  make(map[string]*models.Member),
		emails:   make(map[string][]models.MemberEmail),
		primary:  make(map[string]string),
		credited: make(map[string]int64),
		statuses: make(map[string]models.MemberStatus),
	}
}

func (m *mockMemberRepo) FindByID(ctx context.Context, id string) (*models.Member, error) {
	if member, ok := m.members[id]; ok {
		copied := *member
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMemberRepo) FindByUserID(ctx context.Context, userID string) (*models.Member, error) {
	for _, member := range m.members {
		if member.UserID == userID {
			copied := *member
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockMemberRepo) List(ctx context.Context, filter models.MemberFilter) ([]models.Member, int, error) {
	return nil, 0, nil
}

func (m *mockMemberRepo) UpdateProfile(ctx context.Context, member *models.Member) error {
	if _, ok := m.members[member.ID]; !ok {
		return sql.ErrNoRows
	}
	m.members[member.ID] = member
	return nil
}

func (m *mockMemberRepo) UpdateStatus(ctx context.Context, id string, from, to models.MemberStatus, reason string) error {
	member, ok := m.members[id]
	if !ok || member.Status != from {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "status moved")
	}
	member.Status = to
	m.statuses[id] = to
	return nil
}

func (m *mockMemberRepo) SetNotable(ctx context.Context, id string, notable bool) error {
	if member, ok := m.members[id]; ok {
		member.Notable = notable
	}
	return nil
}

func (m *mockMemberRepo) SoftDelete(ctx context.Context, id string) error {
	if _, ok := m.members[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.members, id)
	return nil
}

func (m *mockMemberRepo) DeductWallet(ctx context.Context, memberID string, amount int64) error {
	return nil
}

func (m *mockMemberRepo) CreditWallet(ctx context.Context, memberID string, amount int64) error {
	if _, ok := m.members[memberID]; !ok {
		return sql.ErrNoRows
	}
	m.credited[memberID] += amount
	return nil
}

func (m *mockMemberRepo) WalletBalance(ctx context.Context, memberID string) (int64, error) {
	if member, ok := m.members[memberID]; ok {
		return member.WalletBalance, nil
	}
	return 0, sql.ErrNoRows
}

func (m *mockMemberRepo) ListEmails(ctx context.Context, memberID string) ([]models.MemberEmail, error) {
	return m.emails[memberID], nil
}

func (m *mockMemberRepo) AddEmail(ctx context.Context, email *models.MemberEmail) error {
	email.ID = "email-1"
	m.emails[email.MemberID] = append(m.emails[email.MemberID], *email)
	return nil
}

func (m *mockMemberRepo) SetPrimaryEmail(ctx context.Context, memberID, emailID string) error {
	m.primary[memberID] = emailID
	return nil
}

func (m *mockMemberRepo) RemoveEmail(ctx context.Context, memberID, emailID string) error {
	return nil
}

func (m *mockMemberRepo) ListMobiles(ctx context.Context, memberID string) ([]models.MemberMobile, error) {
	return nil, nil
}

func (m *mockMemberRepo) AddMobile(ctx context.Context, mobile *models.MemberMobile) error {
	mobile.ID = "mobile-1"
	return nil
}

func (m *mockMemberRepo) SetPrimaryMobile(ctx context.Context, memberID, mobileID string) error {
	return nil
}

func (m *mockMemberRepo) RemoveMobile(ctx context.Context, memberID, mobileID string) error {
	return nil
}

func (m *mockMemberRepo) ListPhones(ctx context.Context, memberID string) ([]models.MemberPhone, error) {
	return nil, nil
}

func (m *mockMemberRepo) AddPhone(ctx context.Context, phone *models.MemberPhone) error {
	phone.ID = "phone-1"
	return nil
}

func (m *mockMemberRepo) ListEducations(ctx context.Context, memberID string) ([]models.MemberEducation, error) {
	return nil, nil
}

func (m *mockMemberRepo) AddEducation(ctx context.Context, entry *models.MemberEducation) error {
	entry.ID = "edu-1"
	return nil
}

func (m *mockMemberRepo) ListExperiences(ctx context.Context, memberID string) ([]models.MemberExperience, error) {
	return nil, nil
}

func (m *mockMemberRepo) AddExperience(ctx context.Context, entry *models.MemberExperience) error {
	entry.ID = "exp-1"
	return nil
}

func (m *mockMemberRepo) RemoveExperience(ctx context.Context, memberID, entryID string) error {
	return nil
}

func newMemberFixture(status models.MemberStatus) (*MemberService, *mockMemberRepo, *mockAuditWriter) {
	repo := newMockMemberRepo()
	repo.members["mem-1"] = &models.Member{ID: "mem-1", FullName: "Dana Reyes", Status: status}
	audits := &mockAuditWriter{}
	svc := NewMemberService(repo, audits, nil, nil)
	return svc, repo, audits
}

func TestMemberApprovePendingMember(t *testing.T) {
	svc, repo, audits := newMemberFixture(models.MemberStatusPending)

	require.NoError(t, svc.Approve(context.Background(), "mem-1", "admin-1"))
	assert.Equal(t, models.MemberStatusActive, repo.members["mem-1"].Status)
	require.Len(t, audits.logs, 1)
	assert.Equal(t, models.AuditActionMemberApprove, audits.logs[0].Action)
}

func TestMemberApproveAlreadyActive(t *testing.T) {
	svc, _, _ := newMemberFixture(models.MemberStatusActive)

	err := svc.Approve(context.Background(), "mem-1", "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyActive))
}

func TestMemberApproveBannedMemberRejected(t *testing.T) {
	svc, _, _ := newMemberFixture(models.MemberStatusBanned)

	err := svc.Approve(context.Background(), "mem-1", "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestMemberBanActiveMember(t *testing.T) {
	svc, repo, _ := newMemberFixture(models.MemberStatusActive)

	require.NoError(t, svc.Ban(context.Background(), "mem-1", DecisionRequest{Reason: "code of conduct"}, "admin-1"))
	assert.Equal(t, models.MemberStatusBanned, repo.members["mem-1"].Status)
}

func TestMemberBanAlreadyBanned(t *testing.T) {
	svc, _, _ := newMemberFixture(models.MemberStatusBanned)

	err := svc.Ban(context.Background(), "mem-1", DecisionRequest{}, "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyBanned))
}

func TestMemberRejectActiveMember(t *testing.T) {
	svc, repo, _ := newMemberFixture(models.MemberStatusActive)

	require.NoError(t, svc.Reject(context.Background(), "mem-1", DecisionRequest{Reason: "duplicate record"}, "admin-1"))
	assert.Equal(t, models.MemberStatusRejected, repo.members["mem-1"].Status)
}

func TestMemberRejectedIsTerminal(t *testing.T) {
	svc, _, _ := newMemberFixture(models.MemberStatusRejected)

	err := svc.Approve(context.Background(), "mem-1", "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestMemberAddEmailPrimary(t *testing.T) {
	svc, repo, _ := newMemberFixture(models.MemberStatusActive)

	email, err := svc.AddEmail(context.Background(), "mem-1", AddContactRequest{Value: "dana@example.org", IsPrimary: true})
	require.NoError(t, err)
	assert.True(t, email.IsPrimary)
	assert.Equal(t, email.ID, repo.primary["mem-1"])
}

func TestMemberAddEmailInvalidAddress(t *testing.T) {
	svc, _, _ := newMemberFixture(models.MemberStatusActive)

	_, err := svc.AddEmail(context.Background(), "mem-1", AddContactRequest{Value: "not-an-email"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestMemberAddMobileFormatCheck(t *testing.T) {
	svc, _, _ := newMemberFixture(models.MemberStatusActive)

	_, err := svc.AddMobile(context.Background(), "mem-1", AddContactRequest{Value: "abc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidMobileFormat))

	mobile, err := svc.AddMobile(context.Background(), "mem-1", AddContactRequest{Value: "+15550100"})
	require.NoError(t, err)
	assert.Equal(t, "+15550100", mobile.Number)
}

func TestMemberCreditWalletWritesAudit(t *testing.T) {
	svc, repo, audits := newMemberFixture(models.MemberStatusActive)

	require.NoError(t, svc.CreditWallet(context.Background(), "mem-1", CreditWalletRequest{Amount: 250, Note: "event refund"}, "admin-1"))
	assert.Equal(t, int64(250), repo.credited["mem-1"])
	require.Len(t, audits.logs, 1)
	assert.Equal(t, "WALLET_CREDIT", audits.logs[0].Action)
}

func TestMemberCreditWalletRejectsNonPositive(t *testing.T) {
	svc, _, _ := newMemberFixture(models.MemberStatusActive)

	err := svc.CreditWallet(context.Background(), "mem-1", CreditWalletRequest{Amount: 0}, "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestMemberUpdateProfileNotFound(t *testing.T) {
	svc, _, _ := newMemberFixture(models.MemberStatusActive)

	_, err := svc.UpdateProfile(context.Background(), "mem-missing", UpdateProfileRequest{FullName: "New Name"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestMemberAddExperienceRequiresFields(t *testing.T) {
	svc, _, _ := newMemberFixture(models.MemberStatusActive)

	_, err := svc.AddExperience(context.Background(), "mem-1", &models.MemberExperience{Company: "Acme"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	entry, err := svc.AddExperience(context.Background(), "mem-1", &models.MemberExperience{
		Company: "Acme", Title: "Engineer", StartedAt: time.Now().AddDate(-2, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, "mem-1", entry.MemberID)
}
