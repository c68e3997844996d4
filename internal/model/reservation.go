package model

import "time"

// Status is the lifecycle state of a reservation.  Confirmed is the only
// state with outgoing transitions; every other state is terminal.
type Status string

const (
	StatusConfirmed          Status = "confirmed"
	StatusCheckedIn          Status = "checked_in"
	StatusCancelled          Status = "cancelled"
	StatusCancelledByTeacher Status = "cancelled_by_teacher"
	StatusNoShow             Status = "no_show"
)

// Active reports whether a reservation in this status occupies capacity.
func (s Status) Active() bool {
	return s == StatusConfirmed || s == StatusCheckedIn
}

// Reservation records a user's booking of a single slot.
//
// Fields:
//
//	ID          – primary key identifier.
//	UserAccount – user who holds the booking.
//	SlotID      – booked time slot.
//	Status      – lifecycle state, see Status.
//	CreatedAt   – when the booking was made.
//	CancelledAt – when it was cancelled (nil unless cancelled).
type Reservation struct {
	ID          int64      // reservations.id
	UserAccount string     // reservations.user_account
	SlotID      int64      // reservations.slot_id
	Status      Status     // reservations.status
	CreatedAt   time.Time  // reservations.created_at
	CancelledAt *time.Time // reservations.cancelled_at (nullable)
}
