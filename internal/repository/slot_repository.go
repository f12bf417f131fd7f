package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

// SlotRepository handles persistence of advisor slots, advising sessions,
// career timeslots and career subscriptions.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// CreateAdvisorSlot persists a new advising window.
func (r *SlotRepository) CreateAdvisorSlot(ctx context.Context, slot *models.AdvisorSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	slot.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO advisor_slots (id, advisor_name, topic, starts_at, ends_at, capacity, booked_count, created_at)
        VALUES (:id, :advisor_name, :topic, :starts_at, :ends_at, :capacity, :booked_count, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create advisor slot: %w", err)
	}
	return nil
}

// FindAdvisorSlot returns an advising window by its ID.
func (r *SlotRepository) FindAdvisorSlot(ctx context.Context, id string) (*models.AdvisorSlot, error) {
	const query = `SELECT id, advisor_name, topic, starts_at, ends_at, capacity, booked_count, created_at
        FROM advisor_slots WHERE id = $1`
	var slot models.AdvisorSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListAdvisorSlots returns advising windows starting after the given time.
func (r *SlotRepository) ListAdvisorSlots(ctx context.Context, from time.Time) ([]models.AdvisorSlot, error) {
	const query = `SELECT id, advisor_name, topic, starts_at, ends_at, capacity, booked_count, created_at
        FROM advisor_slots WHERE starts_at >= $1 ORDER BY starts_at ASC`
	var slots []models.AdvisorSlot
	if err := r.db.SelectContext(ctx, &slots, query, from); err != nil {
		return nil, fmt.Errorf("list advisor slots: %w", err)
	}
	return slots, nil
}

// HasOverlappingSession reports whether the member holds a confirmed session
// intersecting the half-open window [start, end).
func (r *SlotRepository) HasOverlappingSession(ctx context.Context, memberID string, start, end time.Time) (bool, error) {
	const query = `SELECT 1 FROM advising_sessions
        WHERE member_id = $1 AND status = $2 AND starts_at < $4 AND $3 < ends_at LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, memberID, models.RegistrationConfirmed, start, end); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check overlapping session: %w", err)
	}
	return true, nil
}

// BookSession claims a slot seat and records the session in one transaction,
// mirroring the event registration flow: the conditional counter increment is
// the capacity guard, the (slot, member) unique index the duplicate guard.
func (r *SlotRepository) BookSession(ctx context.Context, session *models.AdvisingSession) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session booking: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const claimQuery = `UPDATE advisor_slots SET booked_count = booked_count + 1
        WHERE id = $1 AND booked_count < capacity`
	result, err := tx.ExecContext(ctx, claimQuery, session.SlotID)
	if err != nil {
		return fmt.Errorf("claim advisor slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim advisor slot rows: %w", err)
	}
	if affected == 0 {
		err = appErrors.Clone(appErrors.ErrTimeslotFull, "advising slot is fully booked")
		return err
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.Status = models.RegistrationConfirmed
	session.CreatedAt = time.Now().UTC()
	const insertQuery = `INSERT INTO advising_sessions (id, slot_id, member_id, starts_at, ends_at, ticket_code, status, created_at)
        VALUES (:id, :slot_id, :member_id, :starts_at, :ends_at, :ticket_code, :status, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, session); err != nil {
		if isUniqueViolation(err) {
			err = appErrors.Clone(appErrors.ErrAlreadyRegistered, "member already booked this slot")
			return err
		}
		return fmt.Errorf("insert advising session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit session booking: %w", err)
	}
	return nil
}

// CancelSession releases the slot seat and marks the session cancelled.
func (r *SlotRepository) CancelSession(ctx context.Context, slotID, memberID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session cancellation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const cancelQuery = `UPDATE advising_sessions SET status = $3, cancelled_at = $4
        WHERE slot_id = $1 AND member_id = $2 AND status = $5`
	result, err := tx.ExecContext(ctx, cancelQuery, slotID, memberID,
		models.RegistrationCancelled, now, models.RegistrationConfirmed)
	if err != nil {
		return fmt.Errorf("cancel advising session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel advising session rows: %w", err)
	}
	if affected == 0 {
		err = appErrors.Clone(appErrors.ErrAlreadyCancelled, "no confirmed session to cancel")
		return err
	}

	const releaseQuery = `UPDATE advisor_slots SET booked_count = booked_count - 1
        WHERE id = $1 AND booked_count > 0`
	if _, err = tx.ExecContext(ctx, releaseQuery, slotID); err != nil {
		return fmt.Errorf("release advisor slot: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit session cancellation: %w", err)
	}
	return nil
}

// ListMemberSessions returns a member's advising sessions, newest first.
func (r *SlotRepository) ListMemberSessions(ctx context.Context, memberID string) ([]models.AdvisingSession, error) {
	const query = `SELECT id, slot_id, member_id, starts_at, ends_at, ticket_code, status, created_at, cancelled_at
        FROM advising_sessions WHERE member_id = $1 ORDER BY starts_at DESC`
	var sessions []models.AdvisingSession
	if err := r.db.SelectContext(ctx, &sessions, query, memberID); err != nil {
		return nil, fmt.Errorf("list member sessions: %w", err)
	}
	return sessions, nil
}

// SlotAvailability reads the capacity projection for an advisor slot.
func (r *SlotRepository) SlotAvailability(ctx context.Context, slotID string) (*models.SlotAvailability, error) {
	const query = `SELECT id, capacity, booked_count FROM advisor_slots WHERE id = $1`
	var row struct {
		ID          string `db:"id"`
		Capacity    int    `db:"capacity"`
		BookedCount int    `db:"booked_count"`
	}
	if err := r.db.GetContext(ctx, &row, query, slotID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("slot availability: %w", err)
	}
	return &models.SlotAvailability{
		SlotID:    row.ID,
		Capacity:  row.Capacity,
		Taken:     row.BookedCount,
		Remaining: row.Capacity - row.BookedCount,
		AsOf:      time.Now().UTC(),
	}, nil
}

// CreateCareerTimeslot persists a recurring career-services window.
func (r *SlotRepository) CreateCareerTimeslot(ctx context.Context, slot *models.CareerTimeslot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	slot.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO career_timeslots (id, service, day_of_week, start_time, end_time, capacity, subscriber_count, created_at)
        VALUES (:id, :service, :day_of_week, :start_time, :end_time, :capacity, :subscriber_count, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create career timeslot: %w", err)
	}
	return nil
}

// FindCareerTimeslot returns a career window by its ID.
func (r *SlotRepository) FindCareerTimeslot(ctx context.Context, id string) (*models.CareerTimeslot, error) {
	const query = `SELECT id, service, day_of_week, start_time, end_time, capacity, subscriber_count, created_at
        FROM career_timeslots WHERE id = $1`
	var slot models.CareerTimeslot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListCareerTimeslots returns all career windows ordered by weekday and time.
func (r *SlotRepository) ListCareerTimeslots(ctx context.Context) ([]models.CareerTimeslot, error) {
	const query = `SELECT id, service, day_of_week, start_time, end_time, capacity, subscriber_count, created_at
        FROM career_timeslots ORDER BY day_of_week ASC, start_time ASC`
	var slots []models.CareerTimeslot
	if err := r.db.SelectContext(ctx, &slots, query); err != nil {
		return nil, fmt.Errorf("list career timeslots: %w", err)
	}
	return slots, nil
}

// Subscribe claims a career seat and records the subscription in one
// transaction.
func (r *SlotRepository) Subscribe(ctx context.Context, subscription *models.CareerSubscription) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin career subscription: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const claimQuery = `UPDATE career_timeslots SET subscriber_count = subscriber_count + 1
        WHERE id = $1 AND subscriber_count < capacity`
	result, err := tx.ExecContext(ctx, claimQuery, subscription.TimeslotID)
	if err != nil {
		return fmt.Errorf("claim career seat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim career seat rows: %w", err)
	}
	if affected == 0 {
		err = appErrors.Clone(appErrors.ErrTimeslotFull, "career timeslot is fully booked")
		return err
	}

	if subscription.ID == "" {
		subscription.ID = uuid.NewString()
	}
	subscription.Status = models.RegistrationConfirmed
	subscription.CreatedAt = time.Now().UTC()
	const insertQuery = `INSERT INTO career_subscriptions (id, timeslot_id, member_id, ticket_code, status, created_at)
        VALUES (:id, :timeslot_id, :member_id, :ticket_code, :status, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, subscription); err != nil {
		if isUniqueViolation(err) {
			err = appErrors.Clone(appErrors.ErrDuplicateSubscription, "member already subscribed to this timeslot")
			return err
		}
		return fmt.Errorf("insert career subscription: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit career subscription: %w", err)
	}
	return nil
}

// Unsubscribe releases the career seat and marks the subscription cancelled.
func (r *SlotRepository) Unsubscribe(ctx context.Context, timeslotID, memberID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin career unsubscription: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const cancelQuery = `UPDATE career_subscriptions SET status = $3, cancelled_at = $4
        WHERE timeslot_id = $1 AND member_id = $2 AND status = $5`
	result, err := tx.ExecContext(ctx, cancelQuery, timeslotID, memberID,
		models.RegistrationCancelled, now, models.RegistrationConfirmed)
	if err != nil {
		return fmt.Errorf("cancel career subscription: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel career subscription rows: %w", err)
	}
	if affected == 0 {
		err = appErrors.Clone(appErrors.ErrAlreadyCancelled, "no confirmed subscription to cancel")
		return err
	}

	const releaseQuery = `UPDATE career_timeslots SET subscriber_count = subscriber_count - 1
        WHERE id = $1 AND subscriber_count > 0`
	if _, err = tx.ExecContext(ctx, releaseQuery, timeslotID); err != nil {
		return fmt.Errorf("release career seat: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit career unsubscription: %w", err)
	}
	return nil
}

// ListMemberSubscriptions returns a member's career subscriptions.
func (r *SlotRepository) ListMemberSubscriptions(ctx context.Context, memberID string) ([]models.CareerSubscription, error) {
	const query = `SELECT id, timeslot_id, member_id, ticket_code, status, created_at, cancelled_at
        FROM career_subscriptions WHERE member_id = $1 ORDER BY created_at DESC`
	var subscriptions []models.CareerSubscription
	if err := r.db.SelectContext(ctx, &subscriptions, query, memberID); err != nil {
		return nil, fmt.Errorf("list member subscriptions: %w", err)
	}
	return subscriptions, nil
}

// TimeslotAvailability reads the capacity projection for a career window.
func (r *SlotRepository) TimeslotAvailability(ctx context.Context, timeslotID string) (*models.SlotAvailability, error) {
	const query = `SELECT id, capacity, subscriber_count FROM career_timeslots WHERE id = $1`
	var row struct {
		ID              string `db:"id"`
		Capacity        int    `db:"capacity"`
		SubscriberCount int    `db:"subscriber_count"`
	}
	if err := r.db.GetContext(ctx, &row, query, timeslotID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("timeslot availability: %w", err)
	}
	return &models.SlotAvailability{
		SlotID:    row.ID,
		Capacity:  row.Capacity,
		Taken:     row.SubscriberCount,
		Remaining: row.Capacity - row.SubscriberCount,
		AsOf:      time.Now().UTC(),
	}, nil
}
