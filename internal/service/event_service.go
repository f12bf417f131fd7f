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

type eventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	Update(ctx context.Context, event *models.Event) error
	Register(ctx context.Context, registration *models.EventRegistration) error
	CancelRegistration(ctx context.Context, eventID, memberID string) error
	FindRegistration(ctx context.Context, eventID, memberID string) (*models.EventRegistration, error)
	ListRegistrations(ctx context.Context, eventID string) ([]models.EventRegistration, error)
	ListMemberRegistrations(ctx context.Context, memberID string) ([]models.EventRegistration, error)
	Availability(ctx context.Context, eventID string) (*models.EventAvailability, error)
}

type memberStatusReader interface {
	FindByID(ctx context.Context, id string) (*models.Member, error)
	PrimaryEmail(ctx context.Context, memberID string) (string, error)
}

type availabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateEventRequest describes a new event.
type CreateEventRequest struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	Venue       string    `json:"venue" validate:"required"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required"`
	Capacity    int       `json:"capacity" validate:"required,gt=0"`
}

// EventService orchestrates event publishing and seat booking.
type EventService struct {
	repo      eventRepository
	members   memberStatusReader
	cache     availabilityCache
	cacheTTL  time.Duration
	notify    notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventService constructs EventService. Cache may be nil, in which case
// availability reads always hit the database.
func NewEventService(repo eventRepository, members memberStatusReader, cache availabilityCache, cacheTTL time.Duration, notify notifier, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &EventService{repo: repo, members: members, cache: cache, cacheTTL: cacheTTL, notify: notify, validator: validate, logger: logger}
}

// Create publishes a new event.
func (s *EventService) Create(ctx context.Context, req CreateEventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event must end after it starts")
	}
	event := &models.Event{
		Title:       req.Title,
		Description: req.Description,
		Venue:       req.Venue,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Capacity:    req.Capacity,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	return event, nil
}

// Get returns one event.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// List returns events with pagination metadata.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return events, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Register books a seat for an active member. The capacity race is settled by
// the storage layer, never by a read-then-write check here.
func (s *EventService) Register(ctx context.Context, eventID, memberID string) (*models.EventRegistration, error) {
	if _, err := s.requireActiveMember(ctx, memberID); err != nil {
		return nil, err
	}
	event, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.EndsAt.After(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "event has already ended")
	}

	registration := &models.EventRegistration{
		EventID:    eventID,
		MemberID:   memberID,
		TicketCode: newTicketCode("EVT"),
	}
	if err := s.repo.Register(ctx, registration); err != nil {
		return nil, err
	}
	s.invalidateAvailability(ctx, "event", eventID)

	s.notifyMember(ctx, memberID, "Event registration confirmed",
		fmt.Sprintf("You are registered for %q. Your ticket code is %s.", event.Title, registration.TicketCode))
	return registration, nil
}

// Cancel releases a member's seat.
func (s *EventService) Cancel(ctx context.Context, eventID, memberID string) error {
	if err := s.repo.CancelRegistration(ctx, eventID, memberID); err != nil {
		return err
	}
	s.invalidateAvailability(ctx, "event", eventID)
	return nil
}

// Registrations lists all seats claimed on an event.
func (s *EventService) Registrations(ctx context.Context, eventID string) ([]models.EventRegistration, error) {
	registrations, err := s.repo.ListRegistrations(ctx, eventID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return registrations, nil
}

// MemberRegistrations lists a member's bookings across events.
func (s *EventService) MemberRegistrations(ctx context.Context, memberID string) ([]models.EventRegistration, error) {
	registrations, err := s.repo.ListMemberRegistrations(ctx, memberID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return registrations, nil
}

// Availability returns the seat projection, reading through the cache when
// one is configured. The projection is advisory; booking is always settled
// against the live row.
func (s *EventService) Availability(ctx context.Context, eventID string) (*models.EventAvailability, error) {
	cacheKey := fmt.Sprintf("availability:event:%s", eventID)
	if s.cache != nil {
		var cached models.EventAvailability
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	availability, err := s.repo.Availability(ctx, eventID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read availability")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, availability, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache availability", zap.String("event_id", eventID), zap.Error(err))
		}
	}
	return availability, nil
}

func (s *EventService) requireActiveMember(ctx context.Context, memberID string) (*models.Member, error) {
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

func (s *EventService) invalidateAvailability(ctx context.Context, kind, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("availability:%s:%s", kind, id)); err != nil {
		s.logger.Warn("failed to invalidate availability cache", zap.String("id", id), zap.Error(err))
	}
}

// notifyMember resolves the member's primary contact address and queues the
// confirmation mail. A member without any address is skipped with a warning.
func (s *EventService) notifyMember(ctx context.Context, memberID, subject, body string) {
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
