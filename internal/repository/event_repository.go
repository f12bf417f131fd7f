package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/open-alumni/portal-api/internal/models"
	appErrors "github.com/open-alumni/portal-api/pkg/errors"
)

// EventRepository handles persistence of events and seat registrations.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, title, description, venue, starts_at, ends_at, capacity, registered_count, created_at, updated_at`

// Create persists a new event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	const query = `INSERT INTO events (id, title, description, venue, starts_at, ends_at, capacity, registered_count, created_at, updated_at)
        VALUES (:id, :title, :description, :venue, :starts_at, :ends_at, :capacity, :registered_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// FindByID returns an event by its ID.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE id = $1`, eventColumns)
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// List returns events filtered by the provided criteria.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	base := `FROM events e`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(e.title ILIKE $%d OR e.venue ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("e.starts_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("e.starts_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"starts_at": "e.starts_at",
		"title":     "e.title",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.starts_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.title, e.description, e.venue, e.starts_at, e.ends_at, e.capacity, e.registered_count, e.created_at, e.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// Update persists the editable fields of an event. Capacity can grow but the
// WHERE guard refuses shrinking below the seats already claimed.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET title = :title, description = :description, venue = :venue,
        starts_at = :starts_at, ends_at = :ends_at, capacity = :capacity, updated_at = :updated_at
        WHERE id = :id AND capacity >= registered_count`
	result, err := r.db.NamedExecContext(ctx, query, event)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event rows: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "capacity cannot drop below registered seats")
	}
	return nil
}

// Register claims a seat and records the registration in one transaction.
// The conditional counter increment is the capacity guard: if the event is
// full the UPDATE affects zero rows and the booking fails before any insert.
func (r *EventRepository) Register(ctx context.Context, registration *models.EventRegistration) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event registration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const claimQuery = `UPDATE events SET registered_count = registered_count + 1, updated_at = $2
        WHERE id = $1 AND registered_count < capacity`
	result, err := tx.ExecContext(ctx, claimQuery, registration.EventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("claim event seat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim event seat rows: %w", err)
	}
	if affected == 0 {
		err = appErrors.Clone(appErrors.ErrTimeslotFull, "event is fully booked")
		return err
	}

	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}
	registration.Status = models.RegistrationConfirmed
	registration.CreatedAt = time.Now().UTC()
	const insertQuery = `INSERT INTO event_registrations (id, event_id, member_id, ticket_code, status, created_at)
        VALUES (:id, :event_id, :member_id, :ticket_code, :status, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, registration); err != nil {
		if isUniqueViolation(err) {
			err = appErrors.Clone(appErrors.ErrAlreadyRegistered, "member already registered for this event")
			return err
		}
		return fmt.Errorf("insert event registration: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit event registration: %w", err)
	}
	return nil
}

// CancelRegistration releases the seat and marks the registration cancelled.
// The status guard makes a double cancel a no-op error instead of a double
// decrement.
func (r *EventRepository) CancelRegistration(ctx context.Context, eventID, memberID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event cancellation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const cancelQuery = `UPDATE event_registrations SET status = $3, cancelled_at = $4
        WHERE event_id = $1 AND member_id = $2 AND status = $5`
	result, err := tx.ExecContext(ctx, cancelQuery, eventID, memberID,
		models.RegistrationCancelled, now, models.RegistrationConfirmed)
	if err != nil {
		return fmt.Errorf("cancel event registration: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel event registration rows: %w", err)
	}
	if affected == 0 {
		err = appErrors.Clone(appErrors.ErrAlreadyCancelled, "no confirmed registration to cancel")
		return err
	}

	const releaseQuery = `UPDATE events SET registered_count = registered_count - 1, updated_at = $2
        WHERE id = $1 AND registered_count > 0`
	if _, err = tx.ExecContext(ctx, releaseQuery, eventID, now); err != nil {
		return fmt.Errorf("release event seat: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit event cancellation: %w", err)
	}
	return nil
}

// FindRegistration returns a member's registration for an event.
func (r *EventRepository) FindRegistration(ctx context.Context, eventID, memberID string) (*models.EventRegistration, error) {
	const query = `SELECT id, event_id, member_id, ticket_code, status, created_at, cancelled_at
        FROM event_registrations WHERE event_id = $1 AND member_id = $2 LIMIT 1`
	var registration models.EventRegistration
	if err := r.db.GetContext(ctx, &registration, query, eventID, memberID); err != nil {
		return nil, err
	}
	return &registration, nil
}

// ListRegistrations returns all registrations for an event.
func (r *EventRepository) ListRegistrations(ctx context.Context, eventID string) ([]models.EventRegistration, error) {
	const query = `SELECT id, event_id, member_id, ticket_code, status, created_at, cancelled_at
        FROM event_registrations WHERE event_id = $1 ORDER BY created_at ASC`
	var registrations []models.EventRegistration
	if err := r.db.SelectContext(ctx, &registrations, query, eventID); err != nil {
		return nil, fmt.Errorf("list event registrations: %w", err)
	}
	return registrations, nil
}

// ListMemberRegistrations returns a member's registrations across events.
func (r *EventRepository) ListMemberRegistrations(ctx context.Context, memberID string) ([]models.EventRegistration, error) {
	const query = `SELECT id, event_id, member_id, ticket_code, status, created_at, cancelled_at
        FROM event_registrations WHERE member_id = $1 ORDER BY created_at DESC`
	var registrations []models.EventRegistration
	if err := r.db.SelectContext(ctx, &registrations, query, memberID); err != nil {
		return nil, fmt.Errorf("list member registrations: %w", err)
	}
	return registrations, nil
}

// Availability reads the capacity projection for an event.
func (r *EventRepository) Availability(ctx context.Context, eventID string) (*models.EventAvailability, error) {
	const query = `SELECT id, capacity, registered_count FROM events WHERE id = $1`
	var row struct {
		ID              string `db:"id"`
		Capacity        int    `db:"capacity"`
		RegisteredCount int    `db:"registered_count"`
	}
	if err := r.db.GetContext(ctx, &row, query, eventID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("event availability: %w", err)
	}
	return &models.EventAvailability{
		EventID:   row.ID,
		Capacity:  row.Capacity,
		Taken:     row.RegisteredCount,
		Remaining: row.Capacity - row.RegisteredCount,
		AsOf:      time.Now().UTC(),
	}, nil
}
