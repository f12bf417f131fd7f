package models

import "time"

// Event is a bookable alumni event with a fixed seat capacity.
type Event struct {
	ID              string    `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description"`
	Venue           string    `db:"venue" json:"venue"`
	StartsAt        time.Time `db:"starts_at" json:"starts_at"`
	EndsAt          time.Time `db:"ends_at" json:"ends_at"`
	Capacity        int       `db:"capacity" json:"capacity"`
	RegisteredCount int       `db:"registered_count" json:"registered_count"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Remaining returns the number of free seats.
func (e *Event) Remaining() int {
	return e.Capacity - e.RegisteredCount
}

// RegistrationStatus is the state of a seat or slot registration.
type RegistrationStatus string

const (
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
)

// EventRegistration ties a member to an event seat. The (event, member) pair
// and the ticket code are unique at the storage layer.
type EventRegistration struct {
	ID          string             `db:"id" json:"id"`
	EventID     string             `db:"event_id" json:"event_id"`
	MemberID    string             `db:"member_id" json:"member_id"`
	TicketCode  string             `db:"ticket_code" json:"ticket_code"`
	Status      RegistrationStatus `db:"status" json:"status"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	CancelledAt *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// EventFilter narrows event listings.
type EventFilter struct {
	Search    string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// EventAvailability is the cached availability projection for an event.
type EventAvailability struct {
	EventID   string    `json:"event_id"`
	Capacity  int       `json:"capacity"`
	Taken     int       `json:"taken"`
	Remaining int       `json:"remaining"`
	AsOf      time.Time `json:"as_of"`
}
