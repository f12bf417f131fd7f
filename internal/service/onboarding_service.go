package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/open-alumni/portal-api/internal/gateway"
	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
	"github.com/open-alumni/portal-api/pkg/password"
)

type onboardingMemberRepository interface {
	FindByRegistryKey(ctx context.Context, registryKey string) (*models.Member, error)
	CreateWithAccount(ctx context.Context, user *models.User, member *models.Member) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type notifier interface {
	Notify(to, subject, body string)
}

// ImportRequest identifies the graduate to onboard. The official email
// becomes the member's primary contact address.
type ImportRequest struct {
	RegistryKey string `json:"registry_key" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Mobile      string `json:"mobile"`
	Branch      string `json:"branch"`
}

// ImportResult carries the created member and the generated credentials. The
// password is shown exactly once.
type ImportResult struct {
	Member   *models.Member `json:"member"`
	Username string         `json:"username"`
	Password string         `json:"password"`
}

// OnboardingService imports graduates from the external academic registry
// into member records.
type OnboardingService struct {
	members        onboardingMemberRepository
	registry       gateway.RegistryGateway
	audits         auditWriter
	notify         notifier
	validator      *validator.Validate
	logger         *zap.Logger
	passwordLength int
}

// NewOnboardingService constructs OnboardingService.
func NewOnboardingService(members onboardingMemberRepository, registry gateway.RegistryGateway, audits auditWriter, notify notifier, passwordLength int, validate *validator.Validate, logger *zap.Logger) *OnboardingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if passwordLength < password.MinLength {
		passwordLength = password.MinLength
	}
	return &OnboardingService{
		members:        members,
		registry:       registry,
		audits:         audits,
		notify:         notify,
		validator:      validate,
		logger:         logger,
		passwordLength: passwordLength,
	}
}

// ImportFromRegistry onboards one graduate: it verifies the registry key is
// new, pulls the transcript, keeps only usable qualifications, generates
// credentials and creates the identity account plus the member record
// atomically. The official email is attached as the primary contact address
// and the member starts PENDING until an administrator approves it.
func (s *OnboardingService) ImportFromRegistry(ctx context.Context, req ImportRequest, actorID string) (*ImportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}
	registryKey := strings.ToUpper(strings.TrimSpace(req.RegistryKey))

	if req.Mobile != "" {
		if err := models.ValidateMobile(req.Mobile); err != nil {
			return nil, err
		}
	}

	existing, err := s.members.FindByRegistryKey(ctx, registryKey)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing member")
	}
	if existing != nil {
		return nil, appErrors.WithDetails(appErrors.ErrAlreadyExists, map[string]interface{}{
			"member_id": existing.ID,
		})
	}

	fullName, qualifications, err := s.registry.GetTranscript(ctx, registryKey)
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrNotFoundInRegistry.Code {
			return nil, appErrors.ErrNotFoundInRegistry
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch registry transcript")
	}

	usable := make([]models.Qualification, 0, len(qualifications))
	for _, q := range qualifications {
		if q.Usable() {
			usable = append(usable, q)
		}
	}
	if len(usable) == 0 {
		return nil, appErrors.ErrNoQualifications
	}

	plain, err := password.Generate(s.passwordLength)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:     registryKey,
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         models.RoleMember,
		Active:       true,
	}
	member := &models.Member{
		RegistryKey: registryKey,
		FullName:    fullName,
		Mobile:      req.Mobile,
		JobTitle:    latestQualification(usable).Degree,
		Status:      models.MemberStatusPending,
		Branch:      req.Branch,
		Emails: []models.MemberEmail{
			{Address: req.Email, IsPrimary: true},
		},
	}
	for _, q := range usable {
		member.Educations = append(member.Educations, models.MemberEducation{
			Institution:    q.Institution,
			Degree:         q.Degree,
			GraduationYear: q.GraduationYear,
			Semester:       q.Semester,
		})
	}

	if err := s.members.CreateWithAccount(ctx, user, member); err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrAlreadyExists.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create member")
	}

	s.writeAudit(ctx, actorID, models.AuditActionMemberImport, member.ID, map[string]interface{}{
		"registry_key": registryKey,
	})

	if s.notify != nil {
		s.notify.Notify(req.Email, "Welcome to the alumni portal",
			fmt.Sprintf("Hello %s, your account %s is ready and awaiting approval.", fullName, registryKey))
	}

	s.logger.Info("member imported from registry",
		zap.String("member_id", member.ID),
		zap.String("registry_key", registryKey),
		zap.Int("qualifications", len(usable)))

	return &ImportResult{Member: member, Username: registryKey, Password: plain}, nil
}

// latestQualification picks the newest transcript row. It seeds the member's
// job-domain metadata on import.
func latestQualification(qualifications []models.Qualification) models.Qualification {
	latest := qualifications[0]
	for _, q := range qualifications[1:] {
		if q.GraduationYear > latest.GraduationYear {
			latest = q
		}
	}
	return latest
}

// SearchExpectedGraduates proxies the registry's graduate search.
func (s *OnboardingService) SearchExpectedGraduates(ctx context.Context, filter models.GraduateFilter) (*models.PagedGraduates, error) {
	page, err := s.registry.SearchExpectedGraduates(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search registry")
	}
	return page, nil
}

// AcademicCalendar proxies the registry's academic calendar.
func (s *OnboardingService) AcademicCalendar(ctx context.Context, year int) ([]models.CalendarItem, error) {
	items, err := s.registry.GetAcademicCalendar(ctx, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch academic calendar")
	}
	return items, nil
}

func (s *OnboardingService) writeAudit(ctx context.Context, actorID, action, resourceID string, values map[string]interface{}) {
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
