package booking

import (
	"errors"
	"fmt"

	"github.com/iliyamo/court-booking/internal/model"
)

// DenialError is an expected business-rule refusal.  Its Message is meant
// for the end user; Code is a stable identifier for clients.
type DenialError struct {
	Code    string
	Message string
}

func (e *DenialError) Error() string { return e.Message }

func deny(code, msg string) *DenialError { return &DenialError{Code: code, Message: msg} }

var (
	ErrUserNotFound        = deny("user_not_found", "user not found")
	ErrSuspended           = deny("credit_suspended", "credit score too low: booking suspended for one week")
	ErrHotSlotCredit       = deny("credit_hot_slot", "credit score too low for a peak-hour slot")
	ErrSlotNotFound        = deny("slot_not_found", "slot not found")
	ErrSlotFull            = deny("slot_full", "slot full")
	ErrDuplicateBooking    = deny("duplicate_booking", "duplicate booking: you already hold this slot")
	ErrReservationNotFound = deny("reservation_not_found", "reservation not found")
	ErrNotOwner            = deny("not_owner", "not your reservation")
	ErrNotInstructor       = deny("not_instructor", "only instructors can manage recurring schedules")
	ErrVenueNotFound       = deny("venue_not_found", "venue not found")
	ErrNoCourts            = deny("no_courts", "venue has no courts")
	ErrScheduleNotFound    = deny("schedule_not_found", "schedule not found")
	ErrNotScheduleOwner    = deny("not_schedule_owner", "not your schedule")
	ErrNotAdministrator    = deny("not_administrator", "administrator role required")
	ErrAccountExists       = deny("account_exists", "account already exists")
	ErrInvalidCredentials  = deny("invalid_credentials", "invalid account or password")
	ErrRoleNotAllowed      = deny("role_not_allowed", "administrator accounts cannot self-register")
)

// StatusDenial refuses an action on a reservation that has left the
// confirmed state.
func StatusDenial(action string, s model.Status) *DenialError {
	return &DenialError{
		Code:    "invalid_status",
		Message: fmt.Sprintf("reservation is %s and cannot be %s", s, action),
	}
}

// ValidationError rejects malformed input before any transaction opens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + " " + e.Reason }

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsDenial reports whether err is a business-rule refusal.
func IsDenial(err error) bool {
	var d *DenialError
	return errors.As(err, &d)
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err denies because an entity is missing.
func IsNotFound(err error) bool {
	var d *DenialError
	if !errors.As(err, &d) {
		return false
	}
	switch d.Code {
	case ErrUserNotFound.Code, ErrSlotNotFound.Code, ErrReservationNotFound.Code,
		ErrScheduleNotFound.Code, ErrVenueNotFound.Code:
		return true
	}
	return false
}
