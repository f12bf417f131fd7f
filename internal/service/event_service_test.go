package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

type mockEventRepo struct {
	events        map[string]*models.Event
	registrations map[string]*models.EventRegistration
}

func newMockEventRepo() *mockEventRepo {
	return &mockEventRepo{
		events:        make(map[string]*models.Event),
		registrations: make(map[string]*models.EventRegistration),
	}
}

func (m *mockEventRepo) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = "event-1"
	}
	m.events[event.ID] = event
	return nil
}

func (m *mockEventRepo) FindByID(ctx context.Context, id string) (*models.Event, error) {
	if e, ok := m.events[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEventRepo) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	return nil, 0, nil
}

func (m *mockEventRepo) Update(ctx context.Context, event *models.Event) error {
	m.events[event.ID] = event
	return nil
}

func (m *mockEventRepo) Register(ctx context.Context, registration *models.EventRegistration) error {
	event, ok := m.events[registration.EventID]
	if !ok {
		return sql.ErrNoRows
	}
	key := registration.EventID + "/" + registration.MemberID
	if existing, ok := m.registrations[key]; ok && existing.Status == models.RegistrationConfirmed {
		return appErrors.Clone(appErrors.ErrAlreadyRegistered, "already registered")
	}
	if event.RegisteredCount >= event.Capacity {
		return appErrors.Clone(appErrors.ErrTimeslotFull, "event full")
	}
	event.RegisteredCount++
	registration.ID = "reg-" + registration.MemberID
	registration.Status = models.RegistrationConfirmed
	m.registrations[key] = registration
	return nil
}

func (m *mockEventRepo) CancelRegistration(ctx context.Context, eventID, memberID string) error {
	key := eventID + "/" + memberID
	registration, ok := m.registrations[key]
	if !ok {
		return sql.ErrNoRows
	}
	if registration.Status == models.RegistrationCancelled {
		return appErrors.Clone(appErrors.ErrAlreadyCancelled, "already cancelled")
	}
	registration.Status = models.RegistrationCancelled
	m.events[eventID].RegisteredCount--
	return nil
}

func (m *mockEventRepo) FindRegistration(ctx context.Context, eventID, memberID string) (*models.EventRegistration, error) {
	if r, ok := m.registrations[eventID+"/"+memberID]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEventRepo) ListRegistrations(ctx context.Context, eventID string) ([]models.EventRegistration, error) {
	return nil, nil
}

func (m *mockEventRepo) ListMemberRegistrations(ctx context.Context, memberID string) ([]models.EventRegistration, error) {
	return nil, nil
}

func (m *mockEventRepo) Availability(ctx context.Context, eventID string) (*models.EventAvailability, error) {
	event, ok := m.events[eventID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.EventAvailability{
		EventID:   eventID,
		Capacity:  event.Capacity,
		Taken:     event.RegisteredCount,
		Remaining: event.Remaining(),
		AsOf:      time.Now().UTC(),
	}, nil
}

type mockMemberReader struct {
	members map[string]*models.Member
}

func (m *mockMemberReader) FindByID(ctx context.Context, id string) (*models.Member, error) {
	if member, ok := m.members[id]; ok {
		// The real repository returns the bare row; contact addresses live
		// in their own table and are resolved through PrimaryEmail.
		copied := *member
		copied.Emails = nil
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMemberReader) PrimaryEmail(ctx context.Context, memberID string) (string, error) {
	member, ok := m.members[memberID]
	if !ok || len(member.Emails) == 0 {
		return "", sql.ErrNoRows
	}
	for _, email := range member.Emails {
		if email.IsPrimary {
			return email.Address, nil
		}
	}
	return member.Emails[0].Address, nil
}

type mockCache struct {
	values map[string]interface{}
	hits   int
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	if v, ok := m.values[key]; ok {
		if availability, ok := v.(*models.EventAvailability); ok {
			*dest.(*models.EventAvailability) = *availability
			m.hits++
			return nil
		}
	}
	return appErrors.ErrCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = make(map[string]interface{})
	}
	m.values[key] = value
	return nil
}

func (m *mockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	for key := range m.values {
		if strings.HasPrefix(key, pattern) {
			delete(m.values, key)
		}
	}
	return nil
}

func newEventFixture() (*EventService, *mockEventRepo, *mockMemberReader, *mockCache, *mockNotifier) {
	repo := newMockEventRepo()
	repo.events["event-1"] = &models.Event{
		ID: "event-1", Title: "Annual Reunion", Venue: "Main Hall",
		StartsAt: time.Now().Add(24 * time.Hour), EndsAt: time.Now().Add(30 * time.Hour),
		Capacity: 2,
	}
	members := &mockMemberReader{members: map[string]*models.Member{
		"mem-1": {ID: "mem-1", Status: models.MemberStatusActive,
			Emails: []models.MemberEmail{{Address: "dana@example.org", IsPrimary: true}}},
	}}
	cache := &mockCache{}
	notify := &mockNotifier{}
	svc := NewEventService(repo, members, cache, time.Minute, notify, nil, nil)
	return svc, repo, members, cache, notify
}

func TestEventRegisterIssuesTicket(t *testing.T) {
	svc, repo, _, _, notify := newEventFixture()

	registration, err := svc.Register(context.Background(), "event-1", "mem-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(registration.TicketCode, "EVT-"))
	assert.Equal(t, models.RegistrationConfirmed, registration.Status)
	assert.Equal(t, 1, repo.events["event-1"].RegisteredCount)
	assert.Equal(t, []string{"dana@example.org"}, notify.sent)
}

func TestEventRegisterRequiresActiveMember(t *testing.T) {
	svc, _, members, _, _ := newEventFixture()
	members.members["mem-2"] = &models.Member{ID: "mem-2", Status: models.MemberStatusPending}

	_, err := svc.Register(context.Background(), "event-1", "mem-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrMembershipNotActive))
}

func TestEventRegisterDuplicateRejected(t *testing.T) {
	svc, _, _, _, _ := newEventFixture()

	_, err := svc.Register(context.Background(), "event-1", "mem-1")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "event-1", "mem-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyRegistered))
}

func TestEventRegisterFullEvent(t *testing.T) {
	svc, repo, members, _, _ := newEventFixture()
	repo.events["event-1"].Capacity = 1
	members.members["mem-2"] = &models.Member{ID: "mem-2", Status: models.MemberStatusActive}

	_, err := svc.Register(context.Background(), "event-1", "mem-1")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "event-1", "mem-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTimeslotFull))
}

func TestEventRegisterEndedEvent(t *testing.T) {
	svc, repo, _, _, _ := newEventFixture()
	repo.events["event-1"].StartsAt = time.Now().Add(-4 * time.Hour)
	repo.events["event-1"].EndsAt = time.Now().Add(-2 * time.Hour)

	_, err := svc.Register(context.Background(), "event-1", "mem-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestEventCancelReleasesSeatOnce(t *testing.T) {
	svc, repo, _, _, _ := newEventFixture()

	_, err := svc.Register(context.Background(), "event-1", "mem-1")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), "event-1", "mem-1"))
	assert.Equal(t, 0, repo.events["event-1"].RegisteredCount)

	err = svc.Cancel(context.Background(), "event-1", "mem-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyCancelled))
	assert.Equal(t, 0, repo.events["event-1"].RegisteredCount)
}

func TestEventAvailabilityReadsThroughCache(t *testing.T) {
	svc, repo, _, cache, _ := newEventFixture()

	first, err := svc.Availability(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Remaining)

	// The projection is served from the cache even if the row moves on.
	repo.events["event-1"].RegisteredCount = 1
	second, err := svc.Availability(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Remaining)
	assert.Equal(t, 1, cache.hits)
}

func TestEventRegisterInvalidatesAvailabilityCache(t *testing.T) {
	svc, _, _, cache, _ := newEventFixture()

	_, err := svc.Availability(context.Background(), "event-1")
	require.NoError(t, err)
	require.Contains(t, cache.values, "availability:event:event-1")

	_, err = svc.Register(context.Background(), "event-1", "mem-1")
	require.NoError(t, err)
	assert.NotContains(t, cache.values, "availability:event:event-1")
}

func TestEventCreateValidatesWindow(t *testing.T) {
	svc, _, _, _, _ := newEventFixture()

	_, err := svc.Create(context.Background(), CreateEventRequest{
		Title: "Backwards", Venue: "Hall",
		StartsAt: time.Now().Add(2 * time.Hour), EndsAt: time.Now().Add(time.Hour),
		Capacity: 10,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
