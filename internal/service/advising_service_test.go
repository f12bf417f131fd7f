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

type mockSlotRepo struct {
	slots         map[string]*models.AdvisorSlot
	sessions      map[string]*models.AdvisingSession
	timeslots     map[string]*models.CareerTimeslot
	subscriptions map[string]*models.CareerSubscription
}

func newMockSlotRepo() *mockSlotRepo {
	return &mockSlotRepo{
		slots:         make(map[string]*models.AdvisorSlot),
		sessions:      make(map[string]*models.AdvisingSession),
		timeslots:     make(map[string]*models.CareerTimeslot),
		subscriptions: make(map[string]*models.CareerSubscription),
	}
}

func (m *mockSlotRepo) CreateAdvisorSlot(ctx context.Context, slot *models.AdvisorSlot) error {
	if slot.ID == "" {
		slot.ID = "slot-1"
	}
	m.slots[slot.ID] = slot
	return nil
}

func (m *mockSlotRepo) FindAdvisorSlot(ctx context.Context, id string) (*models.AdvisorSlot, error) {
	if s, ok := m.slots[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSlotRepo) ListAdvisorSlots(ctx context.Context, from time.Time) ([]models.AdvisorSlot, error) {
	return nil, nil
}

func (m *mockSlotRepo) HasOverlappingSession(ctx context.Context, memberID string, start, end time.Time) (bool, error) {
	for _, session := range m.sessions {
		if session.MemberID == memberID && session.Status == models.RegistrationConfirmed && session.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSlotRepo) BookSession(ctx context.Context, session *models.AdvisingSession) error {
	slot, ok := m.slots[session.SlotID]
	if !ok {
		return sql.ErrNoRows
	}
	key := session.SlotID + "/" + session.MemberID
	if existing, ok := m.sessions[key]; ok && existing.Status == models.RegistrationConfirmed {
		return appErrors.Clone(appErrors.ErrAlreadyRegistered, "already booked")
	}
	if slot.BookedCount >= slot.Capacity {
		return appErrors.Clone(appErrors.ErrTimeslotFull, "slot full")
	}
	slot.BookedCount++
	session.ID = "session-" + session.MemberID
	session.Status = models.RegistrationConfirmed
	m.sessions[key] = session
	return nil
}

func (m *mockSlotRepo) CancelSession(ctx context.Context, slotID, memberID string) error {
	key := slotID + "/" + memberID
	session, ok := m.sessions[key]
	if !ok {
		return sql.ErrNoRows
	}
	if session.Status == models.RegistrationCancelled {
		return appErrors.Clone(appErrors.ErrAlreadyCancelled, "already cancelled")
	}
	session.Status = models.RegistrationCancelled
	m.slots[slotID].BookedCount--
	return nil
}

func (m *mockSlotRepo) ListMemberSessions(ctx context.Context, memberID string) ([]models.AdvisingSession, error) {
	return nil, nil
}

func (m *mockSlotRepo) SlotAvailability(ctx context.Context, slotID string) (*models.SlotAvailability, error) {
	slot, ok := m.slots[slotID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.SlotAvailability{
		SlotID: slotID, Capacity: slot.Capacity, Taken: slot.BookedCount,
		Remaining: slot.Capacity - slot.BookedCount, AsOf: time.Now().UTC(),
	}, nil
}

func (m *mockSlotRepo) CreateCareerTimeslot(ctx context.Context, slot *models.CareerTimeslot) error {
	if slot.ID == "" {
		slot.ID = "timeslot-1"
	}
	m.timeslots[slot.ID] = slot
	return nil
}

func (m *mockSlotRepo) FindCareerTimeslot(ctx context.Context, id string) (*models.CareerTimeslot, error) {
	if ts, ok := m.timeslots[id]; ok {
		copied := *ts
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSlotRepo) ListCareerTimeslots(ctx context.Context) ([]models.CareerTimeslot, error) {
	return nil, nil
}

func (m *mockSlotRepo) Subscribe(ctx context.Context, subscription *models.CareerSubscription) error {
	timeslot, ok := m.timeslots[subscription.TimeslotID]
	if !ok {
		return sql.ErrNoRows
	}
	key := subscription.TimeslotID + "/" + subscription.MemberID
	if existing, ok := m.subscriptions[key]; ok && existing.Status == models.RegistrationConfirmed {
		return appErrors.Clone(appErrors.ErrDuplicateSubscription, "already subscribed")
	}
	if timeslot.SubscriberCount >= timeslot.Capacity {
		return appErrors.Clone(appErrors.ErrTimeslotFull, "timeslot full")
	}
	timeslot.SubscriberCount++
	subscription.ID = "sub-" + subscription.MemberID
	subscription.Status = models.RegistrationConfirmed
	m.subscriptions[key] = subscription
	return nil
}

func (m *mockSlotRepo) Unsubscribe(ctx context.Context, timeslotID, memberID string) error {
	key := timeslotID + "/" + memberID
	subscription, ok := m.subscriptions[key]
	if !ok {
		return sql.ErrNoRows
	}
	if subscription.Status == models.RegistrationCancelled {
		return appErrors.Clone(appErrors.ErrAlreadyCancelled, "already cancelled")
	}
	subscription.Status = models.RegistrationCancelled
	m.timeslots[timeslotID].SubscriberCount--
	return nil
}

func (m *mockSlotRepo) ListMemberSubscriptions(ctx context.Context, memberID string) ([]models.CareerSubscription, error) {
	return nil, nil
}

func (m *mockSlotRepo) TimeslotAvailability(ctx context.Context, timeslotID string) (*models.SlotAvailability, error) {
	timeslot, ok := m.timeslots[timeslotID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.SlotAvailability{
		SlotID: timeslotID, Capacity: timeslot.Capacity, Taken: timeslot.SubscriberCount,
		Remaining: timeslot.Capacity - timeslot.SubscriberCount, AsOf: time.Now().UTC(),
	}, nil
}

func newAdvisingFixture() (*AdvisingService, *mockSlotRepo, *mockMemberReader) {
	repo := newMockSlotRepo()
	repo.slots["slot-1"] = &models.AdvisorSlot{
		ID: "slot-1", AdvisorName: "Prof. Okafor", Topic: "career paths",
		StartsAt: time.Now().Add(48 * time.Hour), EndsAt: time.Now().Add(49 * time.Hour),
		Capacity: 2,
	}
	repo.timeslots["timeslot-1"] = &models.CareerTimeslot{
		ID: "timeslot-1", Service: "CV review", DayOfWeek: 2,
		StartTime: "09:00", EndTime: "12:00", Capacity: 1,
	}
	members := &mockMemberReader{members: map[string]*models.Member{
		"mem-1": {ID: "mem-1", Status: models.MemberStatusActive},
	}}
	svc := NewAdvisingService(repo, members, nil, time.Minute, nil, nil, nil)
	return svc, repo, members
}

func TestAdvisingBookIssuesTicket(t *testing.T) {
	svc, repo, _ := newAdvisingFixture()

	session, err := svc.Book(context.Background(), "slot-1", "mem-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(session.TicketCode, "ADV-"))
	assert.Equal(t, 1, repo.slots["slot-1"].BookedCount)
}

func TestAdvisingBookNotifiesPrimaryEmail(t *testing.T) {
	_, repo, members := newAdvisingFixture()
	members.members["mem-1"].Emails = []models.MemberEmail{{Address: "dana@example.org", IsPrimary: true}}
	notify := &mockNotifier{}
	svc := NewAdvisingService(repo, members, nil, time.Minute, notify, nil, nil)

	_, err := svc.Book(context.Background(), "slot-1", "mem-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"dana@example.org"}, notify.sent)
}

func TestAdvisingBookRejectsOverlap(t *testing.T) {
	svc, repo, _ := newAdvisingFixture()
	slot := repo.slots["slot-1"]
	repo.slots["slot-2"] = &models.AdvisorSlot{
		ID: "slot-2", AdvisorName: "Dr. Lindqvist",
		StartsAt: slot.StartsAt.Add(30 * time.Minute), EndsAt: slot.EndsAt.Add(30 * time.Minute),
		Capacity: 2,
	}

	_, err := svc.Book(context.Background(), "slot-1", "mem-1")
	require.NoError(t, err)

	_, err = svc.Book(context.Background(), "slot-2", "mem-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTimeOverlapDetected))
}

func TestAdvisingBookAllowsTouchingIntervals(t *testing.T) {
	svc, repo, _ := newAdvisingFixture()
	slot := repo.slots["slot-1"]
	// Starts exactly when the first one ends: no overlap under half-open intervals.
	repo.slots["slot-2"] = &models.AdvisorSlot{
		ID: "slot-2", AdvisorName: "Dr. Lindqvist",
		StartsAt: slot.EndsAt, EndsAt: slot.EndsAt.Add(time.Hour),
		Capacity: 2,
	}

	_, err := svc.Book(context.Background(), "slot-1", "mem-1")
	require.NoError(t, err)

	_, err = svc.Book(context.Background(), "slot-2", "mem-1")
	require.NoError(t, err)
}

func TestAdvisingCancelledSessionDoesNotBlockRebooking(t *testing.T) {
	svc, _, _ := newAdvisingFixture()

	_, err := svc.Book(context.Background(), "slot-1", "mem-1")
	require.NoError(t, err)
	require.NoError(t, svc.CancelSession(context.Background(), "slot-1", "mem-1"))

	_, err = svc.Book(context.Background(), "slot-1", "mem-1")
	require.NoError(t, err)
}

func TestAdvisingBookStartedSlot(t *testing.T) {
	svc, repo, _ := newAdvisingFixture()
	repo.slots["slot-1"].StartsAt = time.Now().Add(-time.Hour)

	_, err := svc.Book(context.Background(), "slot-1", "mem-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestAdvisingBookInactiveMember(t *testing.T) {
	svc, _, members := newAdvisingFixture()
	members.members["mem-2"] = &models.Member{ID: "mem-2", Status: models.MemberStatusBanned}

	_, err := svc.Book(context.Background(), "slot-1", "mem-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrMembershipNotActive))
}

func TestCareerSubscribeCapacityGuard(t *testing.T) {
	svc, _, members := newAdvisingFixture()
	members.members["mem-2"] = &models.Member{ID: "mem-2", Status: models.MemberStatusActive}

	subscription, err := svc.Subscribe(context.Background(), "timeslot-1", "mem-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(subscription.TicketCode, "CAR-"))

	_, err = svc.Subscribe(context.Background(), "timeslot-1", "mem-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTimeslotFull))
}

func TestCareerSubscribeDuplicate(t *testing.T) {
	svc, repo, _ := newAdvisingFixture()
	repo.timeslots["timeslot-1"].Capacity = 5

	_, err := svc.Subscribe(context.Background(), "timeslot-1", "mem-1")
	require.NoError(t, err)

	_, err = svc.Subscribe(context.Background(), "timeslot-1", "mem-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateSubscription))
}

func TestCareerUnsubscribeReleasesSeat(t *testing.T) {
	svc, repo, _ := newAdvisingFixture()

	_, err := svc.Subscribe(context.Background(), "timeslot-1", "mem-1")
	require.NoError(t, err)
	require.NoError(t, svc.Unsubscribe(context.Background(), "timeslot-1", "mem-1"))
	assert.Equal(t, 0, repo.timeslots["timeslot-1"].SubscriberCount)

	err = svc.Unsubscribe(context.Background(), "timeslot-1", "mem-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyCancelled))
}

func TestSlotAvailabilityProjection(t *testing.T) {
	svc, _, _ := newAdvisingFixture()

	_, err := svc.Book(context.Background(), "slot-1", "mem-1")
	require.NoError(t, err)

	availability, err := svc.SlotAvailability(context.Background(), "slot-1")
	require.NoError(t, err)
	assert.Equal(t, 1, availability.Taken)
	assert.Equal(t, 1, availability.Remaining)
}
