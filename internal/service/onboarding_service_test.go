package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

type mockOnboardingRepo struct {
	byKey       map[string]*models.Member
	createdUser *models.User
	created     *models.Member
}

func (m *mockOnboardingRepo) FindByRegistryKey(ctx context.Context, registryKey string) (*models.Member, error) {
	if member, ok := m.byKey[registryKey]; ok {
		return member, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOnboardingRepo) CreateWithAccount(ctx context.Context, user *models.User, member *models.Member) error {
	member.ID = "mem-new"
	m.createdUser = user
	m.created = member
	return nil
}

type mockRegistry struct {
	transcripts map[string][]models.Qualification
	names       map[string]string
}

func (m *mockRegistry) GetTranscript(ctx context.Context, registryKey string) (string, []models.Qualification, error) {
	if quals, ok := m.transcripts[registryKey]; ok {
		return m.names[registryKey], quals, nil
	}
	return "", nil, appErrors.Clone(appErrors.ErrNotFoundInRegistry, "no such student")
}

func (m *mockRegistry) SearchExpectedGraduates(ctx context.Context, filter models.GraduateFilter) (*models.PagedGraduates, error) {
	return &models.PagedGraduates{}, nil
}

func (m *mockRegistry) GetAcademicCalendar(ctx context.Context, year int) ([]models.CalendarItem, error) {
	return nil, nil
}

type mockAuditWriter struct {
	logs []models.AuditLog
}

func (m *mockAuditWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

type mockNotifier struct {
	sent []string
}

func (m *mockNotifier) Notify(to, subject, body string) {
	m.sent = append(m.sent, to)
}

func newOnboardingFixture() (*OnboardingService, *mockOnboardingRepo, *mockRegistry, *mockAuditWriter, *mockNotifier) {
	repo := &mockOnboardingRepo{byKey: make(map[string]*models.Member)}
	registry := &mockRegistry{
		transcripts: map[string][]models.Qualification{
			"STU001": {
				{Institution: "State University", Degree: "BSc", GraduationYear: 2024, Semester: 8},
				{Institution: "State University", Degree: "", GraduationYear: 0},
			},
		},
		names: map[string]string{"STU001": "Dana Reyes"},
	}
	audits := &mockAuditWriter{}
	notify := &mockNotifier{}
	svc := NewOnboardingService(repo, registry, audits, notify, 12, nil, nil)
	return svc, repo, registry, audits, notify
}

func TestImportFromRegistryCreatesPendingMember(t *testing.T) {
	svc, repo, _, audits, notify := newOnboardingFixture()

	result, err := svc.ImportFromRegistry(context.Background(), ImportRequest{
		RegistryKey: "  stu001 ",
		Email:       "dana@example.org",
		Mobile:      "+15550100",
		Branch:      "north",
	}, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, "STU001", result.Username)
	assert.NotEmpty(t, result.Password)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.MemberStatusPending, repo.created.Status)
	assert.Equal(t, "Dana Reyes", repo.created.FullName)

	// Only the usable transcript row becomes an education entry.
	require.Len(t, repo.created.Educations, 1)
	assert.Equal(t, "BSc", repo.created.Educations[0].Degree)

	// The official email is attached as the primary contact address and the
	// newest qualification seeds the job title.
	require.Len(t, repo.created.Emails, 1)
	assert.Equal(t, "dana@example.org", repo.created.Emails[0].Address)
	assert.True(t, repo.created.Emails[0].IsPrimary)
	assert.Equal(t, "BSc", repo.created.JobTitle)

	require.NotNil(t, repo.createdUser)
	assert.Equal(t, "STU001", repo.createdUser.Username)
	assert.Equal(t, models.RoleMember, repo.createdUser.Role)
	assert.True(t, repo.createdUser.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.createdUser.PasswordHash), []byte(result.Password)))

	require.Len(t, audits.logs, 1)
	assert.Equal(t, models.AuditActionMemberImport, audits.logs[0].Action)
	assert.Equal(t, []string{"dana@example.org"}, notify.sent)
}

func TestImportFromRegistryRejectsExistingKey(t *testing.T) {
	svc, repo, _, _, _ := newOnboardingFixture()
	repo.byKey["STU001"] = &models.Member{ID: "mem-1", RegistryKey: "STU001"}

	_, err := svc.ImportFromRegistry(context.Background(), ImportRequest{RegistryKey: "stu001", Email: "dana@example.org"}, "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyExists))
	assert.Equal(t, "mem-1", appErrors.FromError(err).Details["member_id"])
}

func TestImportFromRegistryUnknownStudent(t *testing.T) {
	svc, _, _, _, _ := newOnboardingFixture()

	_, err := svc.ImportFromRegistry(context.Background(), ImportRequest{RegistryKey: "STU999", Email: "lee@example.org"}, "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFoundInRegistry))
}

func TestImportFromRegistryNoUsableQualifications(t *testing.T) {
	svc, _, registry, _, _ := newOnboardingFixture()
	registry.transcripts["STU002"] = []models.Qualification{
		{Institution: "State University", Degree: "", GraduationYear: 0},
	}
	registry.names["STU002"] = "Lee Park"

	_, err := svc.ImportFromRegistry(context.Background(), ImportRequest{RegistryKey: "STU002", Email: "lee@example.org"}, "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNoQualifications))
}

func TestImportFromRegistryInvalidMobile(t *testing.T) {
	svc, _, _, _, _ := newOnboardingFixture()

	_, err := svc.ImportFromRegistry(context.Background(), ImportRequest{
		RegistryKey: "STU001",
		Email:       "dana@example.org",
		Mobile:      "call-me",
	}, "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidMobileFormat))
}

func TestImportFromRegistryRequiresEmail(t *testing.T) {
	svc, repo, _, _, notify := newOnboardingFixture()

	_, err := svc.ImportFromRegistry(context.Background(), ImportRequest{RegistryKey: "STU001"}, "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Nil(t, repo.created)
	assert.Empty(t, notify.sent)
}
