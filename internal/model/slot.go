package model

// Slot is a bookable (court, date, time range) unit, stored in `time_slots`.
// Date is YYYY-MM-DD and times are HH:MM:SS in the venue's wall clock.
//
// CurrentCount always equals the number of confirmed or checked-in
// reservations on the slot.  IsLocked is set while a recurring schedule
// holds the slot; a locked slot accepts no new bookings regardless of its
// remaining capacity.
type Slot struct {
	ID           int64  // time_slots.id
	CourtID      int64  // time_slots.court_id
	Date         string // time_slots.slot_date
	StartTime    string // time_slots.start_time
	EndTime      string // time_slots.end_time
	MaxCapacity  int    // time_slots.max_capacity
	CurrentCount int    // time_slots.current_count
	IsHot        bool   // time_slots.is_hot
	IsLocked     bool   // time_slots.is_locked
}

// Full reports whether the slot can take no further booking.
func (s *Slot) Full() bool {
	return s.IsLocked || s.CurrentCount >= s.MaxCapacity
}
