// Package queue defines the domain events exchanged over RabbitMQ, the
// publisher that emits them after a booking transaction commits, and the
// audit consumer that appends them to a log file.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Event types double as routing keys on the topic exchange.
const (
	EventReservationBooked      = "reservation.booked"
	EventReservationCancelled   = "reservation.cancelled"
	EventReservationCheckedIn   = "reservation.checked_in"
	EventReservationDisplaced   = "reservation.cancelled_by_teacher"
	EventReservationNoShow      = "reservation.no_show"
	EventCreditRestored         = "credit.restored"
	EventCreditAdjusted         = "credit.adjusted"
	EventScheduleAdded          = "schedule.added"
	EventScheduleRemoved        = "schedule.removed"
	EventReconciliationFinished = "reconciliation.finished"
)

// Event is the single envelope for every domain event.  Fields that do not
// apply to a type are left zero and omitted from the JSON.  ID is unique
// per event so consumers can drop redeliveries.
type Event struct {
	ID            string    `json:"event_id"`
	Type          string    `json:"type"`
	Account       string    `json:"account,omitempty"`
	ReservationID int64     `json:"reservation_id,omitempty"`
	SlotID        int64     `json:"slot_id,omitempty"`
	ScheduleID    int64     `json:"schedule_id,omitempty"`
	CreditDelta   int       `json:"credit_delta,omitempty"`
	CreditScore   *int      `json:"credit_score,omitempty"`
	Count         int       `json:"count,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh id and the occurrence time.
func NewEvent(typ string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: typ, OccurredAt: at.UTC()}
}
