package models

import "time"

// AdvisorSlot is a bookable advising window offered by one advisor.
type AdvisorSlot struct {
	ID          string    `db:"id" json:"id"`
	AdvisorName string    `db:"advisor_name" json:"advisor_name"`
	Topic       string    `db:"topic" json:"topic"`
	StartsAt    time.Time `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time `db:"ends_at" json:"ends_at"`
	Capacity    int       `db:"capacity" json:"capacity"`
	BookedCount int       `db:"booked_count" json:"booked_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AdvisingSession is a member's confirmed booking of an advisor slot.
type AdvisingSession struct {
	ID          string             `db:"id" json:"id"`
	SlotID      string             `db:"slot_id" json:"slot_id"`
	MemberID    string             `db:"member_id" json:"member_id"`
	StartsAt    time.Time          `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time          `db:"ends_at" json:"ends_at"`
	TicketCode  string             `db:"ticket_code" json:"ticket_code"`
	Status      RegistrationStatus `db:"status" json:"status"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	CancelledAt *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// Overlaps applies the half-open interval test used for advising bookings:
// existing.start < new.end AND new.start < existing.end.
func (s AdvisingSession) Overlaps(start, end time.Time) bool {
	return s.StartsAt.Before(end) && start.Before(s.EndsAt)
}

// CareerTimeslot is a recurring career-services window with limited seats.
type CareerTimeslot struct {
	ID              string    `db:"id" json:"id"`
	Service         string    `db:"service" json:"service"`
	DayOfWeek       int       `db:"day_of_week" json:"day_of_week"`
	StartTime       string    `db:"start_time" json:"start_time"`
	EndTime         string    `db:"end_time" json:"end_time"`
	Capacity        int       `db:"capacity" json:"capacity"`
	SubscriberCount int       `db:"subscriber_count" json:"subscriber_count"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// CareerSubscription ties a member to a career timeslot. The (timeslot, member)
// pair is unique at the storage layer.
type CareerSubscription struct {
	ID          string             `db:"id" json:"id"`
	TimeslotID  string             `db:"timeslot_id" json:"timeslot_id"`
	MemberID    string             `db:"member_id" json:"member_id"`
	TicketCode  string             `db:"ticket_code" json:"ticket_code"`
	Status      RegistrationStatus `db:"status" json:"status"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	CancelledAt *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// SlotAvailability is the cached availability projection for slots/timeslots.
type SlotAvailability struct {
	SlotID    string    `json:"slot_id"`
	Capacity  int       `json:"capacity"`
	Taken     int       `json:"taken"`
	Remaining int       `json:"remaining"`
	AsOf      time.Time `json:"as_of"`
}
