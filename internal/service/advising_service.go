package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

type slotRepository interface {
	CreateAdvisorSlot(ctx context.Context, slot *models.AdvisorSlot) error
	FindAdvisorSlot(ctx context.Context, id string) (*models.AdvisorSlot, error)
	ListAdvisorSlots(ctx context.Context, from time.Time) ([]models.AdvisorSlot, error)
	HasOverlappingSession(ctx context.Context, memberID string, start, end time.Time) (bool, error)
	BookSession(ctx context.Context, session *models.AdvisingSession) error
	CancelSession(ctx context.Context, slotID, memberID string) error
	ListMemberSessions(ctx context.Context, memberID string) ([]models.AdvisingSession, error)
	SlotAvailability(ctx context.Context, slotID string) (*models.SlotAvailability, error)
	CreateCareerTimeslot(ctx context.Context, slot *models.CareerTimeslot) error
	FindCareerTimeslot(ctx context.Context, id string) (*models.CareerTimeslot, error)
	ListCareerTimeslots(ctx context.Context) ([]models.CareerTimeslot, error)
	Subscribe(ctx context.Context, subscription *models.CareerSubscription) error
	Unsubscribe(ctx context.Context, timeslotID, memberID string) error
	ListMemberSubscriptions(ctx context.Context, memberID string) ([]models.CareerSubscription, error)
	TimeslotAvailability(ctx context.Context, timeslotID string) (*models.SlotAvailability, error)
}

// CreateSlotRequest describes a new advising window.
type CreateSlotRequest struct {
	AdvisorName string    `json:"advisor_name" validate:"required"`
	Topic       string    `json:"topic"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required"`
	Capacity    int       `json:"capacity" validate:"required,gt=0"`
}

// CreateTimeslotRequest describes a recurring career-services window.
type CreateTimeslotRequest struct {
	Service   string `json:"service" validate:"required"`
	DayOfWeek int    `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Capacity  int    `json:"capacity" validate:"required,gt=0"`
}

// AdvisingService orchestrates advising bookings and career subscriptions.
type AdvisingService struct {
	repo      slotRepository
	members   memberStatusReader
	cache     availabilityCache
	cacheTTL  time.Duration
	notify    notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAdvisingService constructs AdvisingService.
func NewAdvisingService(repo slotRepository, members memberStatusReader, cache availabilityCache, cacheTTL time.Duration, notify notifier, validate *validator.Validate, logger *zap.Logger) *AdvisingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &AdvisingService{repo: repo, members: members, cache: cache, cacheTTL: cacheTTL, notify: notify, validator: validate, logger: logger}
}

// CreateSlot publishes a new advising window.
func (s *AdvisingService) CreateSlot(ctx context.Context, req CreateSlotRequest) (*models.AdvisorSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot must end after it starts")
	}
	slot := &models.AdvisorSlot{
		AdvisorName: req.AdvisorName,
		Topic:       req.Topic,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Capacity:    req.Capacity,
	}
	if err := s.repo.CreateAdvisorSlot(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}
	return slot, nil
}

// ListSlots returns upcoming advising windows.
func (s *AdvisingService) ListSlots(ctx context.Context) ([]models.AdvisorSlot, error) {
	slots, err := s.repo.ListAdvisorSlots(ctx, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	return slots, nil
}

// Book claims a seat in an advising window. Beyond the capacity and duplicate
// guards, the member may not hold a confirmed session overlapping the window.
func (s *AdvisingService) Book(ctx context.Context, slotID, memberID string) (*models.AdvisingSession, error) {
	if _, err := s.requireActiveMember(ctx, memberID); err != nil {
		return nil, err
	}
	slot, err := s.repo.FindAdvisorSlot(ctx, slotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "advising slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	if !slot.StartsAt.After(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "advising slot has already started")
	}

	overlaps, err := s.repo.HasOverlappingSession(ctx, memberID, slot.StartsAt, slot.EndsAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check overlapping sessions")
	}
	if overlaps {
		return nil, appErrors.WithDetails(appErrors.ErrTimeOverlapDetected, map[string]interface{}{
			"starts_at": slot.StartsAt,
			"ends_at":   slot.EndsAt,
		})
	}

	session := &models.AdvisingSession{
		SlotID:     slotID,
		MemberID:   memberID,
		StartsAt:   slot.StartsAt,
		EndsAt:     slot.EndsAt,
		TicketCode: newTicketCode("ADV"),
	}
	if err := s.repo.BookSession(ctx, session); err != nil {
		return nil, err
	}
	s.invalidateAvailability(ctx, "slot", slotID)

	s.notifyMember(ctx, memberID, "Advising session booked",
		fmt.Sprintf("Your session with %s is confirmed. Ticket code %s.", slot.AdvisorName, session.TicketCode))
	return session, nil
}

// CancelSession releases a member's seat in an advising window.
func (s *AdvisingService) CancelSession(ctx context.Context, slotID, memberID string) error {
	if err := s.repo.CancelSession(ctx, slotID, memberID); err != nil {
		return err
	}
	s.invalidateAvailability(ctx, "slot", slotID)
	return nil
}

// MemberSessions lists a member's advising bookings.
func (s *AdvisingService) MemberSessions(ctx context.Context, memberID string) ([]models.AdvisingSession, error) {
	sessions, err := s.repo.ListMemberSessions(ctx, memberID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// SlotAvailability returns the seat projection for an advising window.
func (s *AdvisingService) SlotAvailability(ctx context.Context, slotID string) (*models.SlotAvailability, error) {
	return s.availability(ctx, "slot", slotID, func(ctx context.Context) (*models.SlotAvailability, error) {
		return s.repo.SlotAvailability(ctx, slotID)
	})
}

// CreateTimeslot publishes a recurring career-services window.
func (s *AdvisingService) CreateTimeslot(ctx context.Context, req CreateTimeslotRequest) (*models.CareerTimeslot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timeslot payload")
	}
	slot := &models.CareerTimeslot{
		Service:   req.Service,
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Capacity:  req.Capacity,
	}
	if err := s.repo.CreateCareerTimeslot(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timeslot")
	}
	return slot, nil
}

// ListTimeslots returns the career-services windows.
func (s *AdvisingService) ListTimeslots(ctx context.Context) ([]models.CareerTimeslot, error) {
	slots, err := s.repo.ListCareerTimeslots(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timeslots")
	}
	return slots, nil
}

// Subscribe claims a seat in a career-services window.
func (s *AdvisingService) Subscribe(ctx context.Context, timeslotID, memberID string) (*models.CareerSubscription, error) {
	if _, err := s.requireActiveMember(ctx, memberID); err != nil {
		return nil, err
	}
	slot, err := s.repo.FindCareerTimeslot(ctx, timeslotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "career timeslot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timeslot")
	}

	subscription := &models.CareerSubscription{
		TimeslotID: timeslotID,
		MemberID:   memberID,
		TicketCode: newTicketCode("CAR"),
	}
	if err := s.repo.Subscribe(ctx, subscription); err != nil {
		return nil, err
	}
	s.invalidateAvailability(ctx, "timeslot", timeslotID)

	s.notifyMember(ctx, memberID, "Career services subscription confirmed",
		fmt.Sprintf("You are subscribed to %s. Ticket code %s.", slot.Service, subscription.TicketCode))
	return subscription, nil
}

// Unsubscribe releases a member's career seat.
func (s *AdvisingService) Unsubscribe(ctx context.Context, timeslotID, memberID string) error {
	if err := s.repo.Unsubscribe(ctx, timeslotID, memberID); err != nil {
		return err
	}
	s.invalidateAvailability(ctx, "timeslot", timeslotID)
	return nil
}

// MemberSubscriptions lists a member's career subscriptions.
func (s *AdvisingService) MemberSubscriptions(ctx context.Context, memberID string) ([]models.CareerSubscription, error) {
	subscriptions, err := s.repo.ListMemberSubscriptions(ctx, memberID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subscriptions")
	}
	return subscriptions, nil
}

// TimeslotAvailability returns the seat projection for a career window.
func (s *AdvisingService) TimeslotAvailability(ctx context.Context, timeslotID string) (*models.SlotAvailability, error) {
	return s.availability(ctx, "timeslot", timeslotID, func(ctx context.Context) (*models.SlotAvailability, error) {
		return s.repo.TimeslotAvailability(ctx, timeslotID)
	})
}

func (s *AdvisingService) availability(ctx context.Context, kind, id string, load func(context.Context) (*models.SlotAvailability, error)) (*models.SlotAvailability, error) {
	cacheKey := fmt.Sprintf("availability:%s:%s", kind, id)
	if s.cache != nil {
		var cached models.SlotAvailability
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}
	availability, err := load(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read availability")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, availability, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache availability", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return availability, nil
}

func (s *AdvisingService) requireActiveMember(ctx context.Context, memberID string) (*models.Member, error) {
	member, err := s.members.FindByID(ctx, memberID)
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
	return member, nil
}

func (s *AdvisingService) invalidateAvailability(ctx context.Context, kind, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("availability:%s:%s", kind, id)); err != nil {
		s.logger.Warn("failed to invalidate availability cache", zap.String("id", id), zap.Error(err))
	}
}

func (s *AdvisingService) notifyMember(ctx context.Context, memberID, subject, body string) {
	if s.notify == nil {
		return
	}
	address, err := s.members.PrimaryEmail(ctx, memberID)
	if err != nil || address == "" {
		s.logger.Warn("no contact address for notification", zap.String("member_id", memberID))
		return
	}
	s.notify.Notify(address, subject, body)
}
