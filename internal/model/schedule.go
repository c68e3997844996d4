package model

import "time"

// RecurringSchedule is an instructor's standing weekly lock on every court
// of a venue.  DayOfWeek is Monday-based (0 = Monday … 6 = Sunday).
// HorizonEndDate is empty for legacy rows written before the horizon was
// recorded.
type RecurringSchedule struct {
	ID                int64     // recurring_schedules.id
	InstructorAccount string    // recurring_schedules.instructor_account
	VenueID           int64     // recurring_schedules.venue_id
	DayOfWeek         int       // recurring_schedules.day_of_week
	StartTime         string    // recurring_schedules.start_time
	EndTime           string    // recurring_schedules.end_time
	HorizonEndDate    string    // recurring_schedules.horizon_end_date (nullable)
	CreatedAt         time.Time // recurring_schedules.created_at
}
